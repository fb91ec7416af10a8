package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("auth:\n  jwt_secret: s3cret\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./gheregistry.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "gheregistry", cfg.Database.Redis.KeyPrefix)
	assert.Equal(t, 10*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Probe.MonitorInterval)
	assert.Equal(t, []string{"jenkins"}, cfg.Organizations)
	assert.True(t, cfg.Auth.IsEnabled())
	assert.True(t, cfg.HasOrganization("jenkins"))
	assert.False(t, cfg.HasOrganization("acme"))
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "auth enabled without secret",
			yaml:    "database:\n  driver: memory\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "unknown driver",
			yaml:    "database:\n  driver: mongo\nauth:\n  enabled: false\n",
			wantErr: "unsupported database driver: mongo",
		},
		{
			name:    "postgres without host",
			yaml:    "database:\n  driver: postgres\nauth:\n  enabled: false\n",
			wantErr: "postgres.host is required",
		},
		{
			name:    "duplicate organization",
			yaml:    "organizations: [a, a]\nauth:\n  enabled: false\n",
			wantErr: "duplicate organization: a",
		},
		{
			name:    "blank organization",
			yaml:    "organizations: [\" \"]\nauth:\n  enabled: false\n",
			wantErr: "organization name must not be empty",
		},
		{
			name:    "negative probe timeout",
			yaml:    "probe:\n  timeout: -1s\nauth:\n  enabled: false\n",
			wantErr: "probe.timeout must not be negative",
		},
		{
			name:    "negative public rate limit",
			yaml:    "server:\n  rate_limit:\n    enabled: true\n    public:\n      requests_per_minute: -5\nauth:\n  enabled: false\n",
			wantErr: "server.rate_limit.public.requests_per_minute must be positive",
		},
		{
			name:    "negative authenticated rate limit",
			yaml:    "server:\n  rate_limit:\n    enabled: true\n    authenticated:\n      requests_per_minute: -1\nauth:\n  enabled: false\n",
			wantErr: "server.rate_limit.authenticated.requests_per_minute must be positive",
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRateLimitIgnoredWhenDisabled(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  rate_limit:\n    enabled: false\n    public:\n      requests_per_minute: -5\nauth:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Server.RateLimit.Enabled)
}

func TestAuthCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte("auth:\n  enabled: false\ndatabase:\n  driver: memory\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Auth.IsEnabled())
	assert.Empty(t, cfg.GetDSN())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("GHEREG_TEST_SECRET", "from-env")
	t.Setenv("GHEREG_TEST_HOST", "db.internal")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: postgres
  postgres:
    host: $GHEREG_TEST_HOST
    database: registry
    user: registry
    password: ${GHEREG_TEST_UNSET}
auth:
  jwt_secret: ${GHEREG_TEST_SECRET}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "${GHEREG_TEST_UNSET}", cfg.Database.Postgres.Password)
	assert.Equal(t,
		"host=db.internal port=5432 user=registry password=${GHEREG_TEST_UNSET} dbname=registry sslmode=disable",
		cfg.GetDSN())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestStringOmitsSecrets(t *testing.T) {
	cfg, err := Parse([]byte("auth:\n  jwt_secret: very-secret\nprobe:\n  token: ghp_token\n"))
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "very-secret")
	assert.NotContains(t, s, "ghp_token")
	assert.Contains(t, s, "token=true")
}
