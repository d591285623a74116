package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil", config: nil},
		{name: "default", config: DefaultConfig()},
		{name: "disabled ignores format", config: &Config{Enabled: false, Format: "xml"}},
		{name: "text", config: &Config{Enabled: true, Format: FormatText}},
		{name: "invalid format", config: &Config{Enabled: true, Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Effective(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, FormatJSON, cfg.GetEffectiveFormat())
	assert.Equal(t, "stdout", cfg.GetEffectiveOutput())

	cfg = &Config{Format: FormatText, Output: "stderr"}
	assert.Equal(t, FormatText, cfg.GetEffectiveFormat())
	assert.Equal(t, "stderr", cfg.GetEffectiveOutput())
}

func TestConfig_ShouldAudit(t *testing.T) {
	t.Parallel()

	var nilCfg *Config
	assert.False(t, nilCfg.ShouldAuditAuthorization())

	cfg := &Config{Enabled: true, Events: &EventsConfig{Authorization: true}}
	assert.True(t, cfg.ShouldAuditAuthorization())
	assert.False(t, cfg.ShouldAuditAdministrative())
	assert.False(t, cfg.ShouldAuditConfiguration())

	cfg = &Config{Enabled: true}
	assert.True(t, cfg.ShouldAuditAdministrative())
	assert.True(t, cfg.ShouldAuditConfiguration())
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"documents", "documents", true},
		{"documents", "reports", false},
		{"public-*", "public-wiki", true},
		{"public-*", "public-", true},
		{"public-*", "private", false},
		{"*", "anything", true},
		{"", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.name))
		})
	}
}
