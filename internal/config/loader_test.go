package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
)

const testConfigYAML = `
server:
  address: ":9090"
  readTimeout: 5s
log:
  level: debug
  format: console
rbac:
  store:
    type: memory
  roles:
    - id: reader
      name: Reader
      permissions:
        - id: docs-read
          resource: documents
          action: read
  users:
    - id: zoe
      roles: [reader]
abac:
  trustedNetworks: ["172.16.0.0/12"]
  chains:
    - resource: invoices
      actions: [approve]
      rules:
        - name: finance-only
          expression: 'context.department == "Finance"'
          reason: only finance approves invoices
audit:
  enabled: false
rateLimit:
  enabled: true
  requestsPerSecond: 5
  burst: 10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "accessd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.GetEffectiveReadTimeout())
	assert.Equal(t, DefaultWriteTimeout, cfg.Server.GetEffectiveWriteTimeout())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	require.Len(t, cfg.RBAC.Roles, 1)
	assert.Equal(t, "reader", cfg.RBAC.Roles[0].ID)
	assert.Equal(t, []rbac.User{{ID: "zoe", Roles: []string{"reader"}}}, cfg.RBAC.Users)

	assert.Equal(t, []string{"172.16.0.0/12"}, cfg.ABAC.TrustedNetworks)
	require.Len(t, cfg.ABAC.Chains, 1)
	assert.Equal(t, "invoices", cfg.ABAC.Chains[0].Resource)
	assert.Equal(t, []string{"approve"}, cfg.ABAC.Chains[0].Actions)

	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, RateLimitConfig{Enabled: true, RequestsPerSecond: 5, Burst: 10}, cfg.RateLimit)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantErr: "does not exist",
		},
		{
			name:    "directory",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantErr: "is a directory",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeConfig(t, "server: [\n") },
			wantErr: "failed to parse",
		},
		{
			name:    "unknown key",
			path:    func(t *testing.T) string { return writeConfig(t, "sever:\n  address: :1\n") },
			wantErr: "sever",
		},
		{
			name:    "invalid value",
			path:    func(t *testing.T) string { return writeConfig(t, "rbac:\n  store:\n    type: etcd\n") },
			wantErr: "invalid configuration",
		},
		{
			name:    "bad duration",
			path:    func(t *testing.T) string { return writeConfig(t, "server:\n  readTimeout: soon\n") },
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(tt.path(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Not parallel: modifies the process environment.
	t.Setenv("ACCESSD_SERVER_ADDRESS", ":7070")
	t.Setenv("ACCESSD_SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("ACCESSD_LOG_LEVEL", "warn")
	t.Setenv("ACCESSD_STORE_TYPE", "badger")
	t.Setenv("ACCESSD_BADGER_IN_MEMORY", "true")
	t.Setenv("ACCESSD_TRUSTED_NETWORKS", "10.1.0.0/16,192.168.0.0/24")
	t.Setenv("ACCESSD_AUDIT_FORMAT", "text")
	t.Setenv("ACCESSD_RATE_LIMIT_RPS", "42")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.GetEffectiveShutdownTimeout())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, rbac.StoreBadger, cfg.RBAC.Store.Type)
	assert.True(t, cfg.RBAC.Store.Badger.InMemory)
	assert.Equal(t, []string{"10.1.0.0/16", "192.168.0.0/24"}, cfg.ABAC.TrustedNetworks)
	assert.Equal(t, "text", cfg.Audit.Format)
	assert.Equal(t, 42, cfg.RateLimit.RequestsPerSecond)

	// Event selection is not touched by the environment.
	require.NotNil(t, cfg.Audit.Events)
	assert.True(t, cfg.Audit.Events.Authorization)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	// Not parallel: modifies the process environment.
	t.Setenv("ACCESSD_TEST_REDIS", "redis://cache:6379/2")

	content := `
rbac:
  store:
    type: redis
    redis:
      url: ${ACCESSD_TEST_REDIS}
      keyPrefix: ${ACCESSD_TEST_PREFIX:-acl-}
audit:
  output: $$HOME/audit.log
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/2", cfg.RBAC.Store.Redis.URL)
	assert.Equal(t, "acl-", cfg.RBAC.Store.Redis.KeyPrefix)
	assert.Equal(t, "$HOME/audit.log", cfg.Audit.Output)
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)

	_, err = LoadFromReader(strings.NewReader("rateLimit:\n  burst: -1\n"))
	assert.Error(t, err)
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "configs", "accessd.yaml"))
	require.NoError(t, err)

	assert.Len(t, cfg.RBAC.Roles, 5)
	assert.Len(t, cfg.RBAC.Users, 6)
	assert.Equal(t, rbac.StoreMemory, cfg.RBAC.Store.GetEffectiveType())
	assert.Equal(t, 30*time.Second, cfg.RBAC.Store.Redis.BreakerTimeout)
	assert.Equal(t, 10, cfg.RBAC.Store.Connect.GetEffectiveMaxRetries())
	require.Len(t, cfg.ABAC.Chains, 1)
	assert.Equal(t, "invoices", cfg.ABAC.Chains[0].Resource)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)
}
