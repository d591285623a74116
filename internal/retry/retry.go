package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry settings.
const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultJitterFactor   = 0.25

	maxJitterFactor = 1.0
)

// Config controls how often and how patiently an operation is retried.
// MaxRetries and JitterFactor are pointers so that an explicit zero
// disables retries or jitter while an omitted value takes the default.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries *int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty" validate:"omitempty,gte=0"`

	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty" validate:"gte=0"`

	// JitterFactor adds up to this fraction of the backoff at random.
	JitterFactor *float64 `yaml:"jitterFactor,omitempty" json:"jitterFactor,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	maxRetries := DefaultMaxRetries
	jitter := DefaultJitterFactor
	return &Config{
		MaxRetries:     &maxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   &jitter,
	}
}

// GetEffectiveMaxRetries returns the retry count, defaulting when unset.
// Zero means a single attempt.
func (c *Config) GetEffectiveMaxRetries() int {
	if c == nil || c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return max(*c.MaxRetries, 0)
}

// GetEffectiveInitialBackoff returns the first backoff, defaulting when unset.
func (c *Config) GetEffectiveInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetEffectiveMaxBackoff returns the backoff cap, defaulting when unset.
func (c *Config) GetEffectiveMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetEffectiveJitterFactor returns the jitter factor clamped to [0, 1],
// defaulting when unset. Zero disables jitter.
func (c *Config) GetEffectiveJitterFactor() float64 {
	if c == nil || c.JitterFactor == nil {
		return DefaultJitterFactor
	}
	return math.Min(math.Max(*c.JitterFactor, 0), maxJitterFactor)
}

// OnRetryFunc is called before sleeping ahead of another attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Do calls fn until it succeeds, the retries are exhausted or ctx ends.
// It returns the last error from fn, or the context error.
func Do(ctx context.Context, cfg *Config, fn func(context.Context) error, onRetry OnRetryFunc) error {
	maxRetries := cfg.GetEffectiveMaxRetries()
	initial := cfg.GetEffectiveInitialBackoff()
	maxBackoff := cfg.GetEffectiveMaxBackoff()
	jitter := cfg.GetEffectiveJitterFactor()

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		backoff := Backoff(attempt, initial, maxBackoff, jitter)
		if onRetry != nil {
			onRetry(attempt+1, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Backoff returns initial * 2^attempt plus jitter, capped at maxBackoff.
func Backoff(attempt int, initial, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	backoff += backoff * jitterFactor * rand.Float64()
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}
