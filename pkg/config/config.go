package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"

	EnvDevelopment = "development"
)

type Config struct {
	ListenAddr         string
	DatabaseURL        string
	Environment        string
	LogLevel           string
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RegistryBackend    string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SweepInterval      time.Duration
	StorageTimeout     time.Duration
}

// Load reads .env when it exists and falls back to the OS environment otherwise.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ListenAddr:         getString("LISTEN_ADDR", ":8080"),
		DatabaseURL:        getString("DATABASE_URL", ""),
		Environment:        getString("APP_ENV", "production"),
		LogLevel:           getString("LOG_LEVEL", "info"),
		AccessTokenSecret:  getString("ACCESS_TOKEN_SECRET", ""),
		RefreshTokenSecret: getString("REFRESH_TOKEN_SECRET", ""),
		RegistryBackend:    getString("REGISTRY_BACKEND", BackendPostgres),
		RedisAddr:          getString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getString("REDIS_PASSWORD", ""),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = getDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StorageTimeout, err = getDuration("STORAGE_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.RegistryBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown REGISTRY_BACKEND %q", c.RegistryBackend)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	valueStr := getString(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q", key, valueStr)
	}
	return value, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getString(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, valueStr)
	}
	return value, nil
}
