package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost/library_test")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsProduction)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "./data/files", cfg.StorageDir)
	assert.Equal(t, 14, cfg.DefaultLoanDays)
}

func TestLoadRequiredVars(t *testing.T) {
	t.Run("missing DB_DSN", func(t *testing.T) {
		t.Setenv("DB_DSN", "")
		t.Setenv("JWT_SECRET", "test-secret")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing JWT_SECRET", func(t *testing.T) {
		t.Setenv("DB_DSN", "postgres://localhost/library_test")
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "1h")
	t.Setenv("DEFAULT_LOAN_DAYS", "21")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction)
	assert.Equal(t, "1h0m0s", cfg.JWTAccessTokenTTL.String())
	assert.Equal(t, 21, cfg.DefaultLoanDays)
}

func TestLoadInvalidValues(t *testing.T) {
	t.Run("bad TTL", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("JWT_ACCESS_TOKEN_TTL", "soon")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("loan days below one", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DEFAULT_LOAN_DAYS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
