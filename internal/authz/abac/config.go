package abac

import (
	"errors"
	"fmt"
	"net/netip"
)

// DefaultTrustedNetworks are the networks sensitive documents may be read from.
var DefaultTrustedNetworks = []string{"192.168.1.0/24", "10.0.0.0/16"}

// Config represents ABAC configuration.
type Config struct {
	// TrustedNetworks are CIDR prefixes accepted by the network origin rule.
	TrustedNetworks []string `yaml:"trustedNetworks,omitempty" json:"trustedNetworks,omitempty" envconfig:"TRUSTED_NETWORKS"`

	// Chains adds CEL rule chains for resources without a built-in chain.
	Chains []ChainConfig `yaml:"chains,omitempty" json:"chains,omitempty" validate:"dive" ignored:"true"`
}

// ChainConfig is a rule chain for one resource.
type ChainConfig struct {
	// Resource is the resource name the chain guards.
	Resource string `yaml:"resource" json:"resource" validate:"required"`

	// Description is a human readable description.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Actions limits the chain to these actions. Empty means every action.
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`

	// Rules are evaluated in order; the first false expression denies.
	Rules []RuleConfig `yaml:"rules" json:"rules" validate:"min=1,dive"`
}

// RuleConfig is a single CEL rule.
type RuleConfig struct {
	// Name is the policy tag recorded in results.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Expression is a CEL expression that must evaluate to a bool.
	Expression string `yaml:"expression" json:"expression" validate:"required"`

	// Reason is reported when the expression evaluates to false.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// DefaultConfig returns a default ABAC configuration.
func DefaultConfig() *Config {
	networks := make([]string, len(DefaultTrustedNetworks))
	copy(networks, DefaultTrustedNetworks)
	return &Config{TrustedNetworks: networks}
}

// Validate validates the ABAC configuration. Expressions are checked for
// syntax when the evaluator compiles them.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}

	for i, n := range c.TrustedNetworks {
		if _, err := netip.ParsePrefix(n); err != nil {
			return fmt.Errorf("trustedNetworks[%d]: invalid prefix %q", i, n)
		}
	}

	seen := make(map[string]struct{}, len(c.Chains))
	for i := range c.Chains {
		chain := &c.Chains[i]
		if err := chain.Validate(); err != nil {
			return fmt.Errorf("chains[%d]: %w", i, err)
		}
		if _, dup := seen[chain.Resource]; dup {
			return fmt.Errorf("chains[%d]: duplicate chain for resource %q", i, chain.Resource)
		}
		seen[chain.Resource] = struct{}{}
	}

	return nil
}

// Validate validates a chain.
func (c *ChainConfig) Validate() error {
	if c.Resource == "" {
		return errors.New("resource is required")
	}
	if IsBuiltinResource(c.Resource) {
		return fmt.Errorf("resource %q has a built-in chain", c.Resource)
	}
	if len(c.Rules) == 0 {
		return errors.New("at least one rule is required")
	}
	for j, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", j)
		}
		if r.Expression == "" {
			return fmt.Errorf("rules[%d]: expression is required", j)
		}
	}
	return nil
}

// GetEffectiveTrustedNetworks returns the configured networks or the defaults.
func (c *Config) GetEffectiveTrustedNetworks() []string {
	if c == nil || len(c.TrustedNetworks) == 0 {
		return DefaultTrustedNetworks
	}
	return c.TrustedNetworks
}

// GetEffectiveReason returns the denial reason for a rule.
func (r *RuleConfig) GetEffectiveReason() string {
	if r.Reason != "" {
		return r.Reason
	}
	return "Access denied by policy " + r.Name
}
