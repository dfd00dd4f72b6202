package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email string) User {
	return User{ID: uuid.New(), Email: email, PasswordHash: "hash", JWTSecret: "secret", SecurityStamp: NewSecurityStamp()}
}

func TestMemoryStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u := newUser("Alice@Example.com")
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, newUser("alice@example.com")), ErrEmailTaken)

	got, err := s.UserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = s.UserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateUserDistinguishesAbsentFromNull(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := newUser("bob@example.com")
	u.TOTPSecretTemp = Ptr("TEMP")
	u.PrivateKey = Ptr("2.key|mac")
	require.NoError(t, s.CreateUser(ctx, u))

	updated, err := s.UpdateUser(ctx, u.ID, UserPatch{
		TOTPSecret:     Set(Ptr("TEMP")),
		TOTPSecretTemp: Set[*string](nil),
	})
	require.NoError(t, err)

	assert.Nil(t, updated.TOTPSecretTemp)
	require.NotNil(t, updated.TOTPSecret)
	assert.Equal(t, "TEMP", *updated.TOTPSecret)
	require.NotNil(t, updated.PrivateKey, "absent field must not be cleared")
	assert.Equal(t, "2.key|mac", *updated.PrivateKey)
	assert.Equal(t, u.SecurityStamp, updated.SecurityStamp)

	_, err = s.UpdateUser(ctx, uuid.New(), UserPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDevices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	owner := uuid.New()

	d, err := s.UpsertDevice(ctx, "dev-1", DevicePatch{UserID: Set(&owner), Name: Set("firefox"), Type: Set(3)})
	require.NoError(t, err)
	assert.True(t, d.OwnedBy(owner))
	assert.False(t, d.HasRefreshToken())

	d, err = s.UpsertDevice(ctx, "dev-1", DevicePatch{RefreshToken: Set(Ptr("rt-1"))})
	require.NoError(t, err)
	assert.Equal(t, "firefox", d.Name)
	assert.Equal(t, 3, d.Type)
	assert.True(t, d.OwnedBy(owner))

	found, err := s.DeviceByRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", found.ID)

	_, err = s.DeviceByRefreshToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteDevice(ctx, "dev-1"))
	require.NoError(t, s.DeleteDevice(ctx, "dev-1"))
	_, err = s.DeviceByID(ctx, "dev-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeviceByRefreshToken(ctx, "rt-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserIterationsFallback(t *testing.T) {
	assert.Equal(t, DefaultKdfIterations, User{}.Iterations())
	assert.Equal(t, 100000, User{KdfIterations: 100000}.Iterations())
}

func TestAssignmentsBuildClauses(t *testing.T) {
	owner := uuid.New()
	set := newAssignments("dev-1")
	addField(set, "user_id", Set(&owner))
	addField(set, "name", Field[string]{})
	addField(set, "refresh_token", Set[*string](nil))

	assert.Equal(t, ", user_id, refresh_token", set.insertColumns())
	assert.Equal(t, ", $2, $3", set.insertPlaceholders())
	assert.Equal(t, "user_id = EXCLUDED.user_id, refresh_token = EXCLUDED.refresh_token, updated_at = now()", set.upsertClause())
	assert.Equal(t, "user_id = $2, refresh_token = $3, updated_at = now()", set.updateClause())
	assert.Len(t, set.args, 3)
}
