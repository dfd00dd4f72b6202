package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a user or device does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an e-mail that already exists.
	ErrEmailTaken = errors.New("email already taken")
)

// Store persists users and devices.
type Store interface {
	UserByID(ctx context.Context, id uuid.UUID) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, id uuid.UUID, patch UserPatch) (User, error)

	DeviceByID(ctx context.Context, id string) (Device, error)
	DeviceByRefreshToken(ctx context.Context, token string) (Device, error)
	UpsertDevice(ctx context.Context, id string, patch DevicePatch) (Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

const (
	userColumns = `id, email, name, email_verified, premium, password_hash, password_hint, key,
        jwt_secret, private_key, public_key, totp_secret, totp_secret_temp, security_stamp,
        culture, kdf_iterations, created_at, updated_at`
	deviceColumns = `id, user_id, name, type, push_token, refresh_token, created_at, updated_at`

	uniqueViolation = "23505"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// UserByID fetches a user by identifier.
func (s *PostgresStore) UserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UserByEmail fetches a user by lower-cased e-mail.
func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.Exec(ctx, `INSERT INTO users (id, email, name, email_verified, premium, password_hash,
        password_hint, key, jwt_secret, private_key, public_key, security_stamp, culture, kdf_iterations, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		u.ID, strings.ToLower(u.Email), u.Name, u.EmailVerified, u.Premium, u.PasswordHash,
		u.PasswordHint, u.Key, u.JWTSecret, u.PrivateKey, u.PublicKey, u.SecurityStamp, u.Culture,
		u.KdfIterations, u.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateUser writes the present fields of patch and returns the updated row.
func (s *PostgresStore) UpdateUser(ctx context.Context, id uuid.UUID, patch UserPatch) (User, error) {
	set := newAssignments(id)
	addField(set, "name", patch.Name)
	addField(set, "password_hash", patch.PasswordHash)
	addField(set, "password_hint", patch.PasswordHint)
	addField(set, "key", patch.Key)
	addField(set, "private_key", patch.PrivateKey)
	addField(set, "public_key", patch.PublicKey)
	addField(set, "totp_secret", patch.TOTPSecret)
	addField(set, "totp_secret_temp", patch.TOTPSecretTemp)
	addField(set, "security_stamp", patch.SecurityStamp)
	addField(set, "kdf_iterations", patch.KdfIterations)
	addField(set, "culture", patch.Culture)

	query := `UPDATE users SET ` + set.updateClause() + ` WHERE id = $1 RETURNING ` + userColumns
	return scanUser(s.db.QueryRow(ctx, query, set.args...))
}

// DeviceByID fetches a device by its client-supplied identifier.
func (s *PostgresStore) DeviceByID(ctx context.Context, id string) (Device, error) {
	row := s.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	return scanDevice(row)
}

// DeviceByRefreshToken finds the device currently holding token.
func (s *PostgresStore) DeviceByRefreshToken(ctx context.Context, token string) (Device, error) {
	if token == "" {
		return Device{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE refresh_token = $1`, token)
	return scanDevice(row)
}

// UpsertDevice creates the device if needed and writes the present fields of
// patch. Absent fields keep their stored (or default) values.
func (s *PostgresStore) UpsertDevice(ctx context.Context, id string, patch DevicePatch) (Device, error) {
	set := newAssignments(id)
	addField(set, "user_id", patch.UserID)
	addField(set, "name", patch.Name)
	addField(set, "type", patch.Type)
	addField(set, "push_token", patch.PushToken)
	addField(set, "refresh_token", patch.RefreshToken)

	query := `INSERT INTO devices (id` + set.insertColumns() + `) VALUES ($1` + set.insertPlaceholders() + `)
        ON CONFLICT (id) DO UPDATE SET ` + set.upsertClause() + `
        RETURNING ` + deviceColumns
	return scanDevice(s.db.QueryRow(ctx, query, set.args...))
}

// DeleteDevice removes a device. Deleting a missing device is not an error.
func (s *PostgresStore) DeleteDevice(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.EmailVerified, &u.Premium, &u.PasswordHash,
		&u.PasswordHint, &u.Key, &u.JWTSecret, &u.PrivateKey, &u.PublicKey, &u.TOTPSecret,
		&u.TOTPSecretTemp, &u.SecurityStamp, &u.Culture, &u.KdfIterations, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func scanDevice(row pgx.Row) (Device, error) {
	var (
		d     Device
		owner uuid.NullUUID
	)
	err := row.Scan(&d.ID, &owner, &d.Name, &d.Type, &d.PushToken, &d.RefreshToken, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("scan device: %w", err)
	}
	if owner.Valid {
		d.UserID = &owner.UUID
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

// assignments accumulates column/argument pairs; $1 is always the row key.
type assignments struct {
	cols []string
	args []any
}

func newAssignments(key any) *assignments {
	return &assignments{args: []any{key}}
}

func addField[T any](a *assignments, col string, f Field[T]) {
	v, ok := f.Get()
	if !ok {
		return
	}
	a.cols = append(a.cols, col)
	a.args = append(a.args, v)
}

func (a *assignments) updateClause() string {
	parts := make([]string, 0, len(a.cols)+1)
	for i, col := range a.cols {
		parts = append(parts, fmt.Sprintf("%s = $%d", col, i+2))
	}
	parts = append(parts, "updated_at = now()")
	return strings.Join(parts, ", ")
}

func (a *assignments) insertColumns() string {
	var b strings.Builder
	for _, col := range a.cols {
		b.WriteString(", ")
		b.WriteString(col)
	}
	return b.String()
}

func (a *assignments) insertPlaceholders() string {
	var b strings.Builder
	for i := range a.cols {
		fmt.Fprintf(&b, ", $%d", i+2)
	}
	return b.String()
}

func (a *assignments) upsertClause() string {
	parts := make([]string, 0, len(a.cols)+1)
	for _, col := range a.cols {
		parts = append(parts, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	parts = append(parts, "updated_at = now()")
	return strings.Join(parts, ", ")
}
