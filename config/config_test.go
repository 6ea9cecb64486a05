package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("PLATFORM_FEE_RATE", "")

	cfg := LoadConfig()

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
	assert.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, "log", cfg.NotifyBackend)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("PLATFORM_FEE_RATE", "0.075")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg := LoadConfig()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 50, cfg.DBMaxOpenConns)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "0.075", cfg.PlatformFeeRate.String())
	assert.True(t, cfg.AutoMigrate)
}

func TestLoadConfig_BadValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("NOTIFY_TIMEOUT", "soon")
	t.Setenv("PLATFORM_FEE_RATE", "five percent")

	cfg := LoadConfig()

	assert.Equal(t, 20, cfg.DBMaxOpenConns)
	assert.Equal(t, 15*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, "0.05", cfg.PlatformFeeRate.String())
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		DBDriver:          "sqlite",
		DBDSN:             "file::memory:",
		PaystackSecretKey: "sk_test",
		JWTSecret:         "secret",
		PlatformFeeRate:   decimal.RequireFromString("0.05"),
		NotifyBackend:     "log",
	}
	require.NoError(t, cfg.Validate())

	cfg.DBDSN = ""
	cfg.JWTSecret = ""
	cfg.PlatformFeeRate = decimal.NewFromInt(1)
	cfg.NotifyBackend = "pigeon"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "PLATFORM_FEE_RATE")
	assert.Contains(t, err.Error(), "NOTIFY_BACKEND")
}
