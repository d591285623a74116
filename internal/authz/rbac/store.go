package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

// Store errors.
var (
	// ErrUserNotFound indicates the user does not exist in the store.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates a user with the same id already exists.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidUser indicates a user without an id.
	ErrInvalidUser = errors.New("user id is required")

	// ErrStoreConflict indicates a write lost an optimistic concurrency race
	// more times than the store retries.
	ErrStoreConflict = errors.New("user store write conflict")
)

// UserStore persists users and their role assignments.
//
// AddRole and RemoveRole report false with a nil error when the user does
// not exist; errors are reserved for backend failures.
type UserStore interface {
	// User returns the user with the given id or ErrUserNotFound.
	User(ctx context.Context, id string) (User, error)

	// Users returns every user sorted by id.
	Users(ctx context.Context) ([]User, error)

	// CreateUser stores a new user or returns ErrUserExists.
	CreateUser(ctx context.Context, user User) error

	// AddRole appends roleID to the user's roles unless already held.
	// It reports whether the user holds the role afterwards.
	AddRole(ctx context.Context, userID, roleID string) (bool, error)

	// RemoveRole deletes roleID from the user's roles. It reports
	// whether the role was held.
	RemoveRole(ctx context.Context, userID, roleID string) (bool, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Seed creates users that do not yet exist. Existing users are left alone so
// that persistent stores keep assignments made at runtime.
func Seed(ctx context.Context, store UserStore, users []User, logger observability.Logger) error {
	if logger == nil {
		logger = observability.NopLogger()
	}
	created := 0
	for _, u := range users {
		err := store.CreateUser(ctx, u)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrUserExists):
			continue
		default:
			return fmt.Errorf("seeding user %q: %w", u.ID, err)
		}
	}
	logger.Info("user store seeded",
		observability.Int("configured", len(users)),
		observability.Int("created", created),
	)
	return nil
}

// MemoryStore is a mutex-guarded in-memory UserStore.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryStore returns a store pre-populated with users.
func NewMemoryStore(users ...User) *MemoryStore {
	s := &MemoryStore{users: make(map[string]*User, len(users))}
	for _, u := range users {
		u = u.clone()
		u.normalize()
		s.users[u.ID] = &u
	}
	return s
}

// User implements UserStore.
func (s *MemoryStore) User(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u.clone(), nil
}

// Users implements UserStore.
func (s *MemoryStore) Users(_ context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateUser implements UserStore.
func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	if user.ID == "" {
		return ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return ErrUserExists
	}
	u := user.clone()
	u.normalize()
	s.users[u.ID] = &u
	return nil
}

// AddRole implements UserStore.
func (s *MemoryStore) AddRole(_ context.Context, userID, roleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	held, _ := u.addRole(roleID)
	return held, nil
}

// RemoveRole implements UserStore.
func (s *MemoryStore) RemoveRole(_ context.Context, userID, roleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	removed, _ := u.removeRole(roleID)
	return removed, nil
}

// Ping implements UserStore.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements UserStore.
func (s *MemoryStore) Close() error { return nil }

var _ UserStore = (*MemoryStore)(nil)
