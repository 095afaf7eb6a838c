// Package config loads service configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the tradescript service.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Service  ServiceConfig  `json:"service"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	Enabled  bool   `json:"enabled"`
}

// ConnString builds a PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	DB            int    `json:"db"`
	Password      string `json:"password"`
	ChannelPrefix string `json:"channel_prefix"`
	Enabled       bool   `json:"enabled"`
}

// Addr returns host:port for Redis.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServiceConfig holds operational parameters.
type ServiceConfig struct {
	ListenAddr     string  `json:"listen_addr"`
	LogLevel       string  `json:"log_level"`
	InitialCapital float64 `json:"initial_capital"`
}

// Load reads config from a JSON file, then overrides with environment
// variables. A missing file is fine; env vars and defaults apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	overrideFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "tradescript",
			User: "tradescript",
		},
		Redis: RedisConfig{
			Host:          "localhost",
			Port:          6379,
			ChannelPrefix: "tradescript",
		},
		Service: ServiceConfig{
			ListenAddr:     ":8080",
			LogLevel:       "info",
			InitialCapital: 1000,
		},
	}
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_ENABLED"); v != "" {
		cfg.Database.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("SERVICE_LISTEN_ADDR"); v != "" {
		cfg.Service.ListenAddr = v
	}
	if v := os.Getenv("SERVICE_LOG_LEVEL"); v != "" {
		cfg.Service.LogLevel = v
	}
	if v := os.Getenv("SERVICE_INITIAL_CAPITAL"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Service.InitialCapital = c
		}
	}
}

func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", cfg.Service.LogLevel)
	}
	if cfg.Service.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be > 0, got %v", cfg.Service.InitialCapital)
	}
	if cfg.Service.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	return nil
}
