package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]User
	devices map[string]Device
	now     func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uuid.UUID]User),
		devices: make(map[string]Device),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) UserByID(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	email = strings.ToLower(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, id uuid.UUID, patch UserPatch) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	patch.Apply(&u)
	u.UpdatedAt = s.now()
	s.users[id] = u
	return u, nil
}

func (s *MemoryStore) DeviceByID(_ context.Context, id string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) DeviceByRefreshToken(_ context.Context, token string) (Device, error) {
	if token == "" {
		return Device{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.RefreshToken != nil && *d.RefreshToken == token {
			return d, nil
		}
	}
	return Device{}, ErrNotFound
}

func (s *MemoryStore) UpsertDevice(_ context.Context, id string, patch DevicePatch) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	d, ok := s.devices[id]
	if !ok {
		d = Device{ID: id, CreatedAt: now}
	}
	patch.Apply(&d)
	d.UpdatedAt = now
	s.devices[id] = d
	return d, nil
}

func (s *MemoryStore) DeleteDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	return nil
}
