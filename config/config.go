// Package config reads the service configuration from the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/utils"
	"github.com/joho/godotenv"
)

const minSecretLen = 32

type Config struct {
	// Empty DatabaseDSN selects the in-memory user store, empty RedisURL the
	// in-memory key-value store. Both mean a single instance.
	DatabaseDSN string
	RedisURL    string
	Port        string
	LogLevel    slog.Level
	LogFile     string

	JWTSecret    []byte
	JWTSecretOld []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	VerifyTokenTTL  time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration

	TOTPIssuer string
	AppBaseURL string
	BcryptCost int

	RateLimitPerSecond float64
	MailQueue          string

	AdminEmail    string
	AdminPassword string
}

// LoadDotEnv loads path into the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDSN: os.Getenv(utils.EnvDatabaseDSN),
		RedisURL:    os.Getenv(utils.EnvRedisURL),
		Port:        os.Getenv(utils.EnvPort),
		LogFile:     os.Getenv(utils.EnvLogFile),
		TOTPIssuer:  os.Getenv(utils.EnvTOTPIssuer),
		AppBaseURL:  os.Getenv(utils.EnvAppBaseURL),
		MailQueue:   os.Getenv(utils.EnvMailQueue),
		AdminEmail:  os.Getenv(utils.EnvAdminEmail),
	}
	if cfg.Port == "" {
		cfg.Port = utils.DefaultPort
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = utils.DefaultTOTPIssuer
	}
	if cfg.AppBaseURL == "" {
		cfg.AppBaseURL = "http://localhost:" + cfg.Port
	}
	cfg.LogLevel = parseLevel(os.Getenv(utils.EnvLogLevel))

	secret, err := decodeSecret(utils.EnvJWTSecret)
	if err != nil {
		return nil, err
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("%s must decode to at least %d bytes", utils.EnvJWTSecret, minSecretLen)
	}
	cfg.JWTSecret = secret
	if cfg.JWTSecretOld, err = decodeSecret(utils.EnvJWTSecretOld); err != nil {
		return nil, err
	}

	cfg.AccessTokenTTL = envDuration(utils.EnvAccessTokenTTL, utils.DefaultAccessTokenMins*time.Minute)
	cfg.RefreshTokenTTL = envDuration(utils.EnvRefreshTokenTTL, utils.DefaultRefreshTokenDays*24*time.Hour)
	cfg.ResetTokenTTL = envDuration(utils.EnvResetTokenTTL, utils.DefaultResetTokenMins*time.Minute)
	cfg.VerifyTokenTTL = envDuration(utils.EnvVerifyTokenTTL, utils.DefaultVerifyTokenHours*time.Hour)
	cfg.LockoutThreshold = envInt(utils.EnvLockoutThreshold, utils.DefaultLockoutThreshold)
	cfg.LockoutDuration = envDuration(utils.EnvLockoutDuration, utils.DefaultLockoutMins*time.Minute)
	cfg.BcryptCost = envInt(utils.EnvBcryptCost, 12)
	cfg.RateLimitPerSecond = envRate(utils.EnvRateLimitPerSec, 5)

	cfg.AdminPassword = os.Getenv(utils.EnvAdminPassword)
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("%s and %s must be set together", utils.EnvAdminEmail, utils.EnvAdminPassword)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// decodeSecret reads key as a base64 signing key. Unset yields nil.
func decodeSecret(key string) ([]byte, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be base64: %w", key, err)
	}
	return decoded, nil
}

// envRate reads key as requests per second. Zero is allowed and disables
// limiting.
func envRate(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

// envInt reads key as a positive int, returning def if missing or invalid.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads key as a positive duration, returning def if missing or invalid.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
