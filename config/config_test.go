package config

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	for _, k := range []string{"DATABASE_DSN", "REDIS_URL", "PORT", "LOG_LEVEL", "JWT_SECRET_OLD",
		"ACCESS_TOKEN_TTL", "LOCKOUT_THRESHOLD", "ADMIN_EMAIL", "ADMIN_PASSWORD", "APP_BASE_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5005", cfg.Port)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.VerifyTokenTTL)
	assert.Equal(t, 5, cfg.LockoutThreshold)
	assert.Equal(t, 15*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, "ExamPortal", cfg.TOTPIssuer)
	assert.Equal(t, "http://localhost:5005", cfg.AppBaseURL)
	assert.Nil(t, cfg.JWTSecretOld)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), cfg.JWTSecret)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_SECRET_OLD", base64.StdEncoding.EncodeToString([]byte("previous-key")))
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	t.Setenv("ADMIN_PASSWORD", "Adm1n!pass")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.LockoutThreshold)
	assert.Equal(t, []byte("previous-key"), cfg.JWTSecretOld)
	assert.Equal(t, "root@example.com", cfg.AdminEmail)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("RESET_TOKEN_TTL", "soon")
	t.Setenv("LOCKOUT_THRESHOLD", "-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.ResetTokenTTL)
	assert.Equal(t, 5, cfg.LockoutThreshold)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", base64.StdEncoding.EncodeToString([]byte("short")))
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("secret not base64", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef!!")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("old secret not base64", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("JWT_SECRET_OLD", "%%%")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("admin email without password", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("JWT_SECRET_OLD", "")
		t.Setenv("ADMIN_EMAIL", "root@example.com")
		t.Setenv("ADMIN_PASSWORD", "")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_RateLimit(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"", 5},
		{"0", 0},
		{"0.5", 0.5},
		{"20", 20},
		{"-1", 5},
		{"fast", 5},
		{"NaN", 5},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			t.Setenv("RATE_LIMIT_PER_SECOND", tt.value)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.RateLimitPerSecond)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXAM_DOTENV_CHECK=loaded\n"), 0o600))
	t.Setenv("EXAM_DOTENV_CHECK", "")
	require.NoError(t, os.Unsetenv("EXAM_DOTENV_CHECK"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("EXAM_DOTENV_CHECK"))
}
