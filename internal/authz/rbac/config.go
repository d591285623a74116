package rbac

import (
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/accessd/internal/retry"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBadger = "badger"
)

// Config represents RBAC configuration.
type Config struct {
	// Roles replaces the built-in role set when non-empty.
	Roles []Role `yaml:"roles,omitempty" json:"roles,omitempty" validate:"dive"`

	// Users are created in the store at startup if they do not exist.
	Users []User `yaml:"users,omitempty" json:"users,omitempty" validate:"dive"`

	// Store selects the user store backend.
	Store StoreConfig `yaml:"store" json:"store"`
}

// StoreConfig selects and configures a UserStore backend.
type StoreConfig struct {
	// Type is memory, redis or badger.
	Type string `yaml:"type" json:"type" envconfig:"STORE_TYPE" validate:"omitempty,oneof=memory redis badger"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis" json:"redis" ignored:"true"`

	// Badger configures the badger backend.
	Badger BadgerConfig `yaml:"badger" json:"badger" ignored:"true"`

	// Connect controls how long startup waits for the backend to answer.
	Connect retry.Config `yaml:"connect,omitempty" json:"connect,omitempty" ignored:"true"`
}

// RedisConfig configures the redis user store.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string `yaml:"url" json:"url" envconfig:"REDIS_URL"`

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty" envconfig:"REDIS_KEY_PREFIX"`

	// BreakerThreshold is the request count after which a failure ratio of
	// at least one half opens the circuit.
	BreakerThreshold int `yaml:"breakerThreshold,omitempty" json:"breakerThreshold,omitempty" validate:"gte=0"`

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration `yaml:"breakerTimeout,omitempty" json:"breakerTimeout,omitempty" validate:"gte=0"`
}

// BadgerConfig configures the badger user store.
type BadgerConfig struct {
	// Path is the database directory.
	Path string `yaml:"path" json:"path" envconfig:"BADGER_PATH"`

	// InMemory keeps the database in memory only.
	InMemory bool `yaml:"inMemory,omitempty" json:"inMemory,omitempty" envconfig:"BADGER_IN_MEMORY"`
}

// DefaultConfig returns the built-in roles and users with a memory store.
func DefaultConfig() *Config {
	return &Config{
		Roles: DefaultRoles(),
		Users: DefaultUsers(),
		Store: StoreConfig{Type: StoreMemory},
	}
}

// Validate validates the RBAC configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}

	known := make(map[string]struct{}, len(c.Roles))
	for i, role := range c.EffectiveRoles() {
		if role.ID == "" {
			return fmt.Errorf("roles[%d]: id is required", i)
		}
		if _, dup := known[role.ID]; dup {
			return fmt.Errorf("roles[%d]: duplicate role id %q", i, role.ID)
		}
		known[role.ID] = struct{}{}
		if err := validatePermissions(role.Permissions); err != nil {
			return fmt.Errorf("roles[%d]: %w", i, err)
		}
	}

	seen := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("users[%d]: duplicate user id %q", i, u.ID)
		}
		seen[u.ID] = struct{}{}
		for _, r := range u.Roles {
			if _, ok := known[r]; !ok {
				return fmt.Errorf("users[%d]: unknown role %q", i, r)
			}
		}
	}

	return c.Store.Validate()
}

func validatePermissions(perms []Permission) error {
	ids := make(map[string]struct{}, len(perms))
	for j, p := range perms {
		if p.ID == "" || p.Resource == "" || p.Action == "" {
			return fmt.Errorf("permissions[%d]: id, resource and action are required", j)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("permissions[%d]: duplicate permission id %q", j, p.ID)
		}
		ids[p.ID] = struct{}{}
	}
	return nil
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	switch c.GetEffectiveType() {
	case StoreMemory:
		return nil
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("store.redis.url is required")
		}
		return nil
	case StoreBadger:
		if c.Badger.Path == "" && !c.Badger.InMemory {
			return errors.New("store.badger.path is required unless inMemory is set")
		}
		return nil
	default:
		return fmt.Errorf("invalid store type: %s (must be memory, redis or badger)", c.Type)
	}
}

// GetEffectiveType returns the store type, defaulting to memory.
func (c *StoreConfig) GetEffectiveType() string {
	if c.Type != "" {
		return c.Type
	}
	return StoreMemory
}

// EffectiveRoles returns the configured roles or DefaultRoles when none are set.
func (c *Config) EffectiveRoles() []Role {
	if c == nil || len(c.Roles) == 0 {
		return DefaultRoles()
	}
	return c.Roles
}
