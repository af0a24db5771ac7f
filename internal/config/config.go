package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv   string     `envconfig:"APP_ENV" default:"dev"`
	LogLevel slog.Level `ignored:"true"`
	// LogLevelName is the raw LOG_LEVEL value; LogLevel holds the parsed level.
	LogLevelName string `envconfig:"LOG_LEVEL" default:"info"`

	HTTPAddr              string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`

	Driver string `envconfig:"DB_DRIVER" default:"sqlite3"`
	// DSN, when set, is used verbatim and Path is ignored.
	DSN             string        `envconfig:"DB_DSN"`
	Path            string        `envconfig:"SQLITE_PATH" default:"data/hawaii.sqlite"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"4"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"0s"`
	ConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`
	LogSQL          bool          `envconfig:"DB_LOG_SQL" default:"false"`

	BreakerFailures uint32        `envconfig:"DB_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"DB_BREAKER_TIMEOUT" default:"30s"`
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	cfg.AppEnv = strings.TrimSpace(cfg.AppEnv)
	if cfg.AppEnv == "" {
		cfg.AppEnv = "dev"
	}
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	if strings.TrimSpace(cfg.LogLevelName) == "" {
		cfg.LogLevelName = "info"
	}
	level, err := parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.Driver = strings.TrimSpace(cfg.Driver)
	if cfg.Driver == "" {
		cfg.Driver = "sqlite3"
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Path = strings.TrimSpace(cfg.Path)
	if cfg.DSN == "" && cfg.Path == "" {
		return Config{}, fmt.Errorf("one of DB_DSN or SQLITE_PATH is required")
	}

	if cfg.MaxOpenConns < 0 {
		return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %d: must be >= 0", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS %d: must be >= 0", cfg.MaxIdleConns)
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid DB_CONNECT_TIMEOUT %s: must be > 0", cfg.ConnectTimeout)
	}
	if cfg.BreakerFailures == 0 {
		return Config{}, fmt.Errorf("invalid DB_BREAKER_FAILURES: must be > 0")
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
