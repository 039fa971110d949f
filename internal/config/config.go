// Package config loads the linker's settings from the environment, an
// optional .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds every setting. Each key can be given in config.yaml or as
// the upper-case environment variable of the same name (PORT, DATABASE_URL).
type Config struct {
	Port            int           `mapstructure:"port"`
	Origin          string        `mapstructure:"origin"`
	Storage         string        `mapstructure:"storage"`
	DatabaseURL     string        `mapstructure:"database_url"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	SeedFile        string        `mapstructure:"seed_file"`
	LogLevel        string        `mapstructure:"log_level"`
	ErrorSampleRate int           `mapstructure:"error_sample_rate"`
}

var defaults = map[string]any{
	"port":              8080,
	"origin":            "",
	"storage":           StorageMemory,
	"database_url":      "",
	"redis_addr":        "",
	"redis_password":    "",
	"redis_db":          0,
	"cache_ttl":         "30s",
	"seed_file":         "",
	"log_level":         "INFO",
	"error_sample_rate": 1,
}

// Load reads .env (if present), then config.yaml from the given directories
// (default "." and "./configs"), then the environment, which wins.
func Load(configPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{".", "./configs"}
	}
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage %q (expected %s or %s)", c.Storage, StorageMemory, StoragePostgres)
	}

	if c.Origin != "" {
		u, err := url.Parse(c.Origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("origin %q must be an absolute URL", c.Origin)
		}
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative")
	}

	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
