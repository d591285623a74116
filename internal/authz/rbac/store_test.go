package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a miniredis server for testing.
func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

type storeFactory func(t *testing.T) UserStore

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) UserStore {
			return NewMemoryStore()
		},
		"redis": func(t *testing.T) UserStore {
			mr := setupMiniRedis(t)
			s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"badger": func(t *testing.T) UserStore {
			s, err := NewBadgerStore(BadgerConfig{InMemory: true}, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestUserStores(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			t.Run("create and get", func(t *testing.T) {
				s := factory(t)
				require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Roles: []string{"viewer", "viewer", "editor"}}))

				u, err := s.User(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, "u1", u.ID)
				assert.Equal(t, []string{"viewer", "editor"}, u.Roles)
			})

			t.Run("create duplicate", func(t *testing.T) {
				s := factory(t)
				require.NoError(t, s.CreateUser(ctx, User{ID: "u1"}))
				err := s.CreateUser(ctx, User{ID: "u1", Roles: []string{"admin"}})
				assert.ErrorIs(t, err, ErrUserExists)

				u, err := s.User(ctx, "u1")
				require.NoError(t, err)
				assert.Empty(t, u.Roles)
			})

			t.Run("create without id", func(t *testing.T) {
				s := factory(t)
				assert.ErrorIs(t, s.CreateUser(ctx, User{}), ErrInvalidUser)
			})

			t.Run("unknown user", func(t *testing.T) {
				s := factory(t)
				_, err := s.User(ctx, "ghost")
				assert.ErrorIs(t, err, ErrUserNotFound)

				ok, err := s.AddRole(ctx, "ghost", "admin")
				require.NoError(t, err)
				assert.False(t, ok)

				ok, err = s.RemoveRole(ctx, "ghost", "admin")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("add role is idempotent", func(t *testing.T) {
				s := factory(t)
				require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Roles: []string{"viewer"}}))

				for i := 0; i < 2; i++ {
					ok, err := s.AddRole(ctx, "u1", "editor")
					require.NoError(t, err)
					assert.True(t, ok)
				}

				u, err := s.User(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, []string{"viewer", "editor"}, u.Roles)
			})

			t.Run("remove role", func(t *testing.T) {
				s := factory(t)
				require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Roles: []string{"viewer", "editor"}}))

				ok, err := s.RemoveRole(ctx, "u1", "viewer")
				require.NoError(t, err)
				assert.True(t, ok)

				ok, err = s.RemoveRole(ctx, "u1", "viewer")
				require.NoError(t, err)
				assert.False(t, ok)

				u, err := s.User(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, []string{"editor"}, u.Roles)
			})

			t.Run("list users sorted", func(t *testing.T) {
				s := factory(t)
				for _, id := range []string{"zed", "amy", "kim"} {
					require.NoError(t, s.CreateUser(ctx, User{ID: id}))
				}

				users, err := s.Users(ctx)
				require.NoError(t, err)
				require.Len(t, users, 3)
				assert.Equal(t, "amy", users[0].ID)
				assert.Equal(t, "kim", users[1].ID)
				assert.Equal(t, "zed", users[2].ID)
			})

			t.Run("concurrent assignments do not duplicate", func(t *testing.T) {
				s := factory(t)
				require.NoError(t, s.CreateUser(ctx, User{ID: "u1"}))

				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, _ = s.AddRole(ctx, "u1", "editor")
					}()
				}
				wg.Wait()

				u, err := s.User(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, []string{"editor"}, u.Roles)
			})
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore(User{ID: "u1", Roles: []string{"viewer"}})

	u, err := s.User(ctx, "u1")
	require.NoError(t, err)
	u.Roles[0] = "admin"

	again, err := s.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer"}, again.Roles)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStoreWithClient(client, WithRedisKeyPrefix("test:"))
	require.NoError(t, s.CreateUser(context.Background(), User{ID: "u1", Roles: []string{"viewer"}}))

	assert.True(t, mr.Exists("test:user:u1"))
	members, err := mr.Members("test:users")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, members)
}

func TestRedisStore_CreateUserIndexFailureLeavesNoUser(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// A non-set value at the index key makes SADD fail with WRONGTYPE.
	require.NoError(t, mr.Set(DefaultRedisKeyPrefix+"users", "not-a-set"))

	err = s.CreateUser(ctx, User{ID: "x", Roles: []string{"viewer"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserExists)
	assert.False(t, mr.Exists(DefaultRedisKeyPrefix+"user:x"))

	_, err = s.User(ctx, "x")
	assert.ErrorIs(t, err, ErrUserNotFound)

	mr.Del(DefaultRedisKeyPrefix + "users")
	require.NoError(t, s.CreateUser(ctx, User{ID: "x", Roles: []string{"viewer"}}))

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "x", users[0].ID)
	assert.ErrorIs(t, s.CreateUser(ctx, User{ID: "x"}), ErrUserExists)
}

func TestRedisStore_BreakerOpensOnBackendFailure(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStoreWithClient(client, WithRedisBreaker(2, time.Minute))
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := s.User(ctx, "u1")
		require.Error(t, err)
	}

	_, err := s.User(ctx, "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "expected open circuit, got %v", err)
}

func TestRedisStore_NotFoundDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)
	s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr(), BreakerThreshold: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 5; i++ {
		_, err := s.User(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
	}
}

func TestUserStores_Ping(t *testing.T) {
	t.Parallel()

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.NoError(t, factory(t).Ping(context.Background()))
		})
	}

	t.Run("redis down", func(t *testing.T) {
		t.Parallel()

		mr := setupMiniRedis(t)
		s, err := NewRedisStore(RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		mr.Close()
		assert.Error(t, s.Ping(context.Background()))
	})

	t.Run("badger closed", func(t *testing.T) {
		t.Parallel()

		s, err := NewBadgerStore(BadgerConfig{InMemory: true}, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.Error(t, s.Ping(context.Background()))
	})
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore(User{ID: "bob", Roles: []string{"viewer"}})

	require.NoError(t, Seed(ctx, s, DefaultUsers(), nil))

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, len(DefaultUsers()))

	bob, err := s.User(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer"}, bob.Roles, "existing users keep their runtime roles")
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	mr := setupMiniRedis(t)

	tests := []struct {
		name    string
		cfg     StoreConfig
		want    interface{}
		wantErr bool
	}{
		{name: "default is memory", cfg: StoreConfig{}, want: &MemoryStore{}},
		{name: "redis", cfg: StoreConfig{Type: StoreRedis, Redis: RedisConfig{URL: "redis://" + mr.Addr()}}, want: &RedisStore{}},
		{name: "badger", cfg: StoreConfig{Type: StoreBadger, Badger: BadgerConfig{InMemory: true}}, want: &BadgerStore{}},
		{name: "unknown", cfg: StoreConfig{Type: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := NewStore(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			assert.IsType(t, tt.want, s)
		})
	}
}
