package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ReadsFile(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": "9090", "environment": "production", "log_level": "info"},
		"postgres": {"dsn": "host=db user=q dbname=q"},
		"redis": {"addr": "redis:6379", "db": 2},
		"auth": {"jwt_secret": "s3cret", "expiry_hours": 12},
		"reconciler": {"enabled": true, "interval_seconds": 60, "source_url": "http://engine:8080"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 12, cfg.Auth.ExpiryHours)
	assert.True(t, cfg.Reconciler.Enabled)
	assert.Equal(t, time.Minute, cfg.Reconciler.Interval())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": "8082"},
		"postgres": {"dsn": "host=localhost"},
		"auth": {"jwt_secret": "from-file"}
	}`)

	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "host=prod-db user=quotad")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "host=prod-db user=quotad", cfg.Postgres.DSN)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestReconcilerInterval_DefaultsWhenUnset(t *testing.T) {
	var r ReconcilerConfig
	assert.Equal(t, 5*time.Minute, r.Interval())
}
