package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port       int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	LogLevel   string        `env:"TEST_CFG_LOG_LEVEL" envDefault:"info"`
	CODEnabled bool          `env:"TEST_CFG_COD_ENABLED" envDefault:"true"`
	LockTTL    time.Duration `env:"TEST_CFG_LOCK_TTL" envDefault:"30s"`
	Gateways   []string      `env:"TEST_CFG_GATEWAYS" envSeparator:","`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.CODEnabled)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Empty(t, cfg.Gateways)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_COD_ENABLED", "false")
	t.Setenv("TEST_CFG_GATEWAYS", "stripe,razorpay")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.CODEnabled)
	assert.Equal(t, []string{"stripe", "razorpay"}, cfg.Gateways)
}

func TestLoadFromMap(t *testing.T) {
	var cfg testConfig
	err := LoadFromMap(&cfg, map[string]string{
		"TEST_CFG_LOCK_TTL": "2m",
		"TEST_CFG_GATEWAYS": "stripe",
	})

	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.Equal(t, []string{"stripe"}, cfg.Gateways)
	assert.Equal(t, 8080, cfg.Port, "defaults still apply")
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_WEBHOOK_SECRET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := LoadFromMap(&cfg, map[string]string{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidValue(t *testing.T) {
	var cfg testConfig
	err := LoadFromMap(&cfg, map[string]string{"TEST_CFG_PORT": "not-a-number"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
