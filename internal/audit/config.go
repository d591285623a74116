package audit

import (
	"fmt"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config represents the audit logging configuration.
type Config struct {
	// Enabled enables audit logging.
	Enabled bool `yaml:"enabled" json:"enabled" envconfig:"AUDIT_ENABLED"`

	// Output specifies the output destination (stdout, stderr, file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty" envconfig:"AUDIT_OUTPUT"`

	// Format specifies the output format (json, text).
	Format string `yaml:"format,omitempty" json:"format,omitempty" envconfig:"AUDIT_FORMAT" validate:"omitempty,oneof=json text"`

	// Events configures which events to audit.
	Events *EventsConfig `yaml:"events,omitempty" json:"events,omitempty" ignored:"true"`

	// RedactFields specifies metadata keys to redact.
	RedactFields []string `yaml:"redactFields,omitempty" json:"redactFields,omitempty"`

	// SkipResources lists resources whose decisions are not audited.
	// A trailing * matches any suffix.
	SkipResources []string `yaml:"skipResources,omitempty" json:"skipResources,omitempty"`
}

// EventsConfig configures which events to audit.
type EventsConfig struct {
	// Authorization enables access decision auditing.
	Authorization bool `yaml:"authorization" json:"authorization"`

	// Administrative enables user and role change auditing.
	Administrative bool `yaml:"administrative" json:"administrative"`

	// Configuration enables configuration reload auditing.
	Configuration bool `yaml:"configuration" json:"configuration"`
}

// Validate validates the audit configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Format != "" && c.Format != FormatJSON && c.Format != FormatText {
		return fmt.Errorf("invalid audit format: %s (must be 'json' or 'text')", c.Format)
	}

	return nil
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Output:  "stdout",
		Format:  FormatJSON,
		Events: &EventsConfig{
			Authorization:  true,
			Administrative: true,
			Configuration:  true,
		},
	}
}

// GetEffectiveFormat returns the effective output format.
func (c *Config) GetEffectiveFormat() string {
	if c.Format != "" {
		return c.Format
	}
	return FormatJSON
}

// GetEffectiveOutput returns the effective output destination.
func (c *Config) GetEffectiveOutput() string {
	if c.Output != "" {
		return c.Output
	}
	return "stdout"
}

// ShouldAuditAuthorization returns true if authorization events should be audited.
func (c *Config) ShouldAuditAuthorization() bool {
	return c != nil && c.Enabled && (c.Events == nil || c.Events.Authorization)
}

// ShouldAuditAdministrative returns true if administrative events should be audited.
func (c *Config) ShouldAuditAdministrative() bool {
	return c != nil && c.Enabled && (c.Events == nil || c.Events.Administrative)
}

// ShouldAuditConfiguration returns true if configuration events should be audited.
func (c *Config) ShouldAuditConfiguration() bool {
	return c != nil && c.Enabled && (c.Events == nil || c.Events.Configuration)
}

// ShouldSkipResource returns true if decisions on resource should not be audited.
func (c *Config) ShouldSkipResource(resource string) bool {
	for _, pattern := range c.SkipResources {
		if matchPattern(pattern, resource) {
			return true
		}
	}
	return false
}

// matchPattern checks if a name matches a pattern.
func matchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	// Check for wildcard suffix
	if pattern != "" && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return false
}
