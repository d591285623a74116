package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vyrodovalexey/accessd/internal/audit"
	"github.com/vyrodovalexey/accessd/internal/authz/abac"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/observability"
)

// Default server settings.
const (
	DefaultAddress         = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
)

// Config is the complete accessd configuration.
type Config struct {
	Server    ServerConfig               `yaml:"server" json:"server"`
	Log       observability.LogConfig    `yaml:"log" json:"log"`
	Tracing   observability.TracerConfig `yaml:"tracing" json:"tracing"`
	RBAC      rbac.Config                `yaml:"rbac" json:"rbac"`
	ABAC      abac.Config                `yaml:"abac" json:"abac"`
	Audit     audit.Config               `yaml:"audit" json:"audit"`
	RateLimit RateLimitConfig            `yaml:"rateLimit" json:"rateLimit"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// Address is the listen address.
	Address string `yaml:"address" json:"address" envconfig:"SERVER_ADDRESS"`

	// Mode is the gin mode (debug, release, test).
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" envconfig:"SERVER_MODE" validate:"omitempty,oneof=debug release test"`

	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty" envconfig:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty" envconfig:"SERVER_MAX_BODY_BYTES" validate:"gte=0"`

	// TrustedProxies lists the proxies whose X-Forwarded-For header is
	// honored when resolving the client address.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty" envconfig:"SERVER_TRUSTED_PROXIES" validate:"dive,cidr|ip"`
}

// RateLimitConfig represents rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond int  `yaml:"requestsPerSecond" json:"requestsPerSecond" envconfig:"RATE_LIMIT_RPS" validate:"gte=0"`
	Burst             int  `yaml:"burst" json:"burst" envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`
	PerClient         bool `yaml:"perClient,omitempty" json:"perClient,omitempty" envconfig:"RATE_LIMIT_PER_CLIENT"`
}

// DefaultConfig returns a configuration that serves the built-in roles,
// users and ABAC chains from an in-memory store.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultAddress,
			Mode:            "release",
			ReadTimeout:     Duration(DefaultReadTimeout),
			WriteTimeout:    Duration(DefaultWriteTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Log:       observability.DefaultLogConfig(),
		Tracing:   observability.TracerConfig{ServiceName: "accessd", SamplingRate: 1},
		RBAC:      *rbac.DefaultConfig(),
		ABAC:      *abac.DefaultConfig(),
		Audit:     *audit.DefaultConfig(),
		RateLimit: RateLimitConfig{RequestsPerSecond: 100, Burst: 200, PerClient: true},
	}
}

var structValidator = validator.New()

// Validate checks struct constraints and then the semantic rules of
// each section.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond == 0 || c.RateLimit.Burst == 0) {
		return errors.New("rateLimit: requestsPerSecond and burst must be positive when enabled")
	}

	if err := c.RBAC.Validate(); err != nil {
		return fmt.Errorf("rbac: %w", err)
	}
	if err := c.ABAC.Validate(); err != nil {
		return fmt.Errorf("abac: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	return nil
}

// GetEffectiveAddress returns the listen address.
func (s *ServerConfig) GetEffectiveAddress() string {
	if s.Address != "" {
		return s.Address
	}
	return DefaultAddress
}

// GetEffectiveReadTimeout returns the read timeout.
func (s *ServerConfig) GetEffectiveReadTimeout() time.Duration {
	if s.ReadTimeout > 0 {
		return s.ReadTimeout.Duration()
	}
	return DefaultReadTimeout
}

// GetEffectiveWriteTimeout returns the write timeout.
func (s *ServerConfig) GetEffectiveWriteTimeout() time.Duration {
	if s.WriteTimeout > 0 {
		return s.WriteTimeout.Duration()
	}
	return DefaultWriteTimeout
}

// GetEffectiveShutdownTimeout returns the graceful shutdown timeout.
func (s *ServerConfig) GetEffectiveShutdownTimeout() time.Duration {
	if s.ShutdownTimeout > 0 {
		return s.ShutdownTimeout.Duration()
	}
	return DefaultShutdownTimeout
}

// GetEffectiveMaxBodyBytes returns the request body limit.
func (s *ServerConfig) GetEffectiveMaxBodyBytes() int64 {
	if s.MaxBodyBytes > 0 {
		return s.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}
