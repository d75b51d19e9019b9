package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "payouts.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.FraudOracleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RateCacheTTL)
	assert.Equal(t, "payouts.settlement", cfg.EventsExchange)
	assert.False(t, cfg.SkipSettledLeads)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	env := "PORT=9000\nDB_PATH=/tmp/file.db\nSKIP_SETTLED_LEADS=true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("FRAUD_ORACLE_TIMEOUT", "750ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, https://app.example.com")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "/tmp/file.db", cfg.DBPath)
	assert.True(t, cfg.SkipSettledLeads)
	assert.Equal(t, 750*time.Millisecond, cfg.FraudOracleTimeout)
	assert.Equal(t, []string{"https://admin.example.com", "https://app.example.com"}, cfg.CORSAllowedOrigins)
}
