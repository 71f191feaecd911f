package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration, loaded from an optional YAML file
// and overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Cache    CacheConfig    `yaml:"cache"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type CacheConfig struct {
	// PlanTTL bounds how stale cached baseline plan lines may be. Amendments
	// and submission states are never cached.
	PlanTTL time.Duration `yaml:"plan_ttl"`
	// PlanSize is the maximum number of cached (week, store) plan sets.
	PlanSize int `yaml:"plan_size"`
}

// Load reads CONFIG_PATH (if set) and applies environment overrides on top of
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        "be-plan-amendments",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "replenishment",
			SSLMode:     "disable",
			MaxConns:    10,
			MinConns:    2,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Enabled: false,
		},
		Cache: CacheConfig{
			PlanTTL:  20 * time.Minute,
			PlanSize: 512,
		},
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Cache.PlanTTL <= 0 {
		return nil, fmt.Errorf("cache plan_ttl must be positive, got %s", cfg.Cache.PlanTTL)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Service.Environment, "ENVIRONMENT")
	setString(&cfg.Service.Version, "SERVICE_VERSION")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Database, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSL_MODE")
	setString(&cfg.NATS.URL, "NATS_URL")
	if v := os.Getenv("NATS_ENABLED"); v != "" {
		cfg.NATS.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PLAN_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.PlanTTL = d
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
