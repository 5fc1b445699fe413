package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL      string `env:"DATABASE_URL,required"`
	JWTSecret        string `env:"JWT_SECRET,required"`
	Port             int    `env:"PORT" envDefault:"8080"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogIncludeCaller bool   `env:"LOG_INCLUDE_CALLER" envDefault:"false"`
	AppEnv           string `env:"APP_ENV" envDefault:"production"`

	LockTimeoutMS   int `env:"LOCK_TIMEOUT_MS" envDefault:"2000"`
	IdempotencyTTLH int `env:"IDEMPOTENCY_TTL_H" envDefault:"24"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	// Graph publishing is off when GraphURI is empty.
	GraphURI              string `env:"GRAPH_URI"`
	GraphUsername         string `env:"GRAPH_USERNAME"`
	GraphPassword         string `env:"GRAPH_PASSWORD"`
	GraphDatabase         string `env:"GRAPH_DATABASE"`
	GraphPublishIntervalS int    `env:"GRAPH_PUBLISH_INTERVAL_S" envDefault:"30"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

var ErrInvalidConfig = errors.New("invalid config")

// validate rejects settings that would disable a bound. A zero lock timeout
// lets a transfer wait forever and a zero interval panics the ticker.
func (c *Config) validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"PORT", c.Port},
		{"LOCK_TIMEOUT_MS", c.LockTimeoutMS},
		{"IDEMPOTENCY_TTL_H", c.IdempotencyTTLH},
		{"DB_MAX_OPEN_CONNS", c.DBMaxOpenConns},
		{"DB_CONN_MAX_LIFETIME_S", c.DBConnMaxLifetimeS},
		{"DB_CONN_MAX_IDLE_TIME_S", c.DBConnMaxIdleTimeS},
		{"GRAPH_PUBLISH_INTERVAL_S", c.GraphPublishIntervalS},
	}
	var errs []error
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d: %w", p.name, p.value, ErrInvalidConfig))
		}
	}
	if c.DBMaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS must not be negative, got %d: %w", c.DBMaxIdleConns, ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLH) * time.Hour
}

func (c *Config) GraphPublishInterval() time.Duration {
	return time.Duration(c.GraphPublishIntervalS) * time.Second
}
