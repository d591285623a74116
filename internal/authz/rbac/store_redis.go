package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

// Redis store defaults.
const (
	DefaultRedisKeyPrefix        = "accessd:"
	DefaultRedisBreakerThreshold = 10
	DefaultRedisBreakerTimeout   = 30 * time.Second

	redisMaxTxRetries = 5
)

// createUserScript writes a new user document and its index entry.
// The index is written first so that a failure leaves no unindexed user.
// KEYS[1] = user key
// KEYS[2] = index key
// ARGV[1] = user document
// ARGV[2] = user id
var createUserScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('SADD', KEYS[2], ARGV[2])
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
`)

// RedisStore keeps users as JSON documents in redis. Role mutations run in
// WATCH/MULTI transactions and every call goes through a circuit breaker.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	breaker   *gobreaker.CircuitBreaker
	logger    observability.Logger
	ownClient bool
}

// RedisStoreOption is a functional option for the redis store.
type RedisStoreOption func(*redisStoreOptions)

type redisStoreOptions struct {
	logger           observability.Logger
	keyPrefix        string
	breakerThreshold int
	breakerTimeout   time.Duration
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisStoreOption {
	return func(o *redisStoreOptions) {
		o.logger = logger
	}
}

// WithRedisKeyPrefix sets the key prefix.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(o *redisStoreOptions) {
		o.keyPrefix = prefix
	}
}

// WithRedisBreaker configures the circuit breaker.
func WithRedisBreaker(threshold int, timeout time.Duration) RedisStoreOption {
	return func(o *redisStoreOptions) {
		o.breakerThreshold = threshold
		o.breakerTimeout = timeout
	}
}

// NewRedisStore connects to the redis server described by cfg.
func NewRedisStore(cfg RedisConfig, opts ...RedisStoreOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	all := make([]RedisStoreOption, 0, len(opts)+2)
	if cfg.KeyPrefix != "" {
		all = append(all, WithRedisKeyPrefix(cfg.KeyPrefix))
	}
	if cfg.BreakerThreshold > 0 || cfg.BreakerTimeout > 0 {
		all = append(all, WithRedisBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout))
	}
	all = append(all, opts...)

	s := NewRedisStoreWithClient(redis.NewClient(redisOpts), all...)
	s.ownClient = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRedisStoreWithClient(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	o := &redisStoreOptions{
		logger:           observability.NopLogger(),
		keyPrefix:        DefaultRedisKeyPrefix,
		breakerThreshold: DefaultRedisBreakerThreshold,
		breakerTimeout:   DefaultRedisBreakerTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.breakerThreshold <= 0 {
		o.breakerThreshold = DefaultRedisBreakerThreshold
	}
	if o.breakerTimeout <= 0 {
		o.breakerTimeout = DefaultRedisBreakerTimeout
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: o.keyPrefix,
		logger:    o.logger,
	}
	s.breaker = newStoreBreaker("redis-user-store", o.breakerThreshold, o.breakerTimeout, o.logger)
	return s
}

// newStoreBreaker trips once threshold requests have been seen with at least
// half of them failing. Business outcomes never count as failures.
func newStoreBreaker(name string, threshold int, timeout time.Duration, logger observability.Logger) *gobreaker.CircuitBreaker {
	limit := uint32(threshold) //nolint:gosec // threshold is validated non-negative
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < limit {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrUserNotFound) ||
				errors.Is(err, ErrUserExists) ||
				errors.Is(err, ErrInvalidUser) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("user store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
}

func (s *RedisStore) userKey(id string) string {
	return s.keyPrefix + "user:" + id
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "users"
}

func (s *RedisStore) do(fn func() (interface{}, error)) (interface{}, error) {
	return s.breaker.Execute(fn)
}

// User implements UserStore.
func (s *RedisStore) User(ctx context.Context, id string) (User, error) {
	v, err := s.do(func() (interface{}, error) {
		data, err := s.client.Get(ctx, s.userKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
		return decodeUser(data)
	})
	if err != nil {
		return User{}, err
	}
	return v.(User), nil
}

// Users implements UserStore.
func (s *RedisStore) Users(ctx context.Context) ([]User, error) {
	v, err := s.do(func() (interface{}, error) {
		ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []User{}, nil
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.userKey(id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		users := make([]User, 0, len(values))
		for _, raw := range values {
			str, ok := raw.(string)
			if !ok {
				continue
			}
			u, err := decodeUser([]byte(str))
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
		sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]User), nil
}

// CreateUser implements UserStore.
func (s *RedisStore) CreateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return ErrInvalidUser
	}
	u := user.clone()
	u.normalize()
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}

	_, err = s.do(func() (interface{}, error) {
		created, err := createUserScript.Run(ctx, s.client,
			[]string{s.userKey(u.ID), s.indexKey()}, payload, u.ID).Int()
		if err != nil {
			return nil, err
		}
		if created == 0 {
			return nil, ErrUserExists
		}
		return nil, nil
	})
	return err
}

// AddRole implements UserStore.
func (s *RedisStore) AddRole(ctx context.Context, userID, roleID string) (bool, error) {
	return s.update(ctx, userID, func(u *User) (bool, bool) { return u.addRole(roleID) })
}

// RemoveRole implements UserStore.
func (s *RedisStore) RemoveRole(ctx context.Context, userID, roleID string) (bool, error) {
	return s.update(ctx, userID, func(u *User) (bool, bool) { return u.removeRole(roleID) })
}

// update applies mutate to the stored user inside an optimistic transaction,
// retrying when another writer touched the key first.
func (s *RedisStore) update(ctx context.Context, userID string, mutate func(*User) (result, dirty bool)) (bool, error) {
	key := s.userKey(userID)

	v, err := s.do(func() (interface{}, error) {
		var result bool
		txf := func(tx *redis.Tx) error {
			result = false
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			u, err := decodeUser(data)
			if err != nil {
				return err
			}
			res, dirty := mutate(&u)
			result = res
			if !dirty {
				return nil
			}
			payload, err := json.Marshal(u)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}

		for attempt := 0; attempt < redisMaxTxRetries; attempt++ {
			err := s.client.Watch(ctx, txf, key)
			if errors.Is(err, redis.TxFailedErr) {
				s.logger.Debug("redis transaction conflict, retrying",
					observability.String("user", userID),
					observability.Int("attempt", attempt+1),
				)
				continue
			}
			if err != nil {
				return nil, err
			}
			return result, nil
		}
		return nil, ErrStoreConflict
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Ping implements UserStore. It bypasses the circuit breaker so that
// readiness reflects the server, not the breaker state.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements UserStore. The client is closed only when the store created it.
func (s *RedisStore) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

func decodeUser(data []byte) (User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return User{}, fmt.Errorf("decoding user: %w", err)
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return u, nil
}

var _ UserStore = (*RedisStore)(nil)
