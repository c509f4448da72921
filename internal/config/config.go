// Package config loads costledger configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COSTLEDGER_DATABASE_DSN.
const EnvPrefix = "COSTLEDGER"

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Lock     LockConfig     `mapstructure:"lock"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Stock    StockConfig    `mapstructure:"stock"`
	Recalc   RecalcConfig   `mapstructure:"recalc"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// AppConfig holds application settings.
type AppConfig struct {
	Name string `mapstructure:"name" validate:"required"`
	Env  string `mapstructure:"env" validate:"oneof=development testing production"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig holds the Postgres connection and pool settings.
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn" validate:"required"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"min=1"`
	MinConns         int32         `mapstructure:"min_conns" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" validate:"min=0"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout" validate:"min=0"`
}

// Lock backends.
const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

// LockConfig selects how (item, warehouse) scopes are serialized.
type LockConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=postgres redis"`
	TTL     time.Duration `mapstructure:"ttl"`
	Retries int           `mapstructure:"retries" validate:"min=0"`
	Backoff time.Duration `mapstructure:"backoff"`
}

// RedisConfig holds the Redis connection used by the redis lock backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// StockConfig holds costing settings.
type StockConfig struct {
	// NegativeRule is a CEL expression; true tolerates a negative position.
	NegativeRule string `mapstructure:"negative_rule" validate:"required"`
}

// RecalcConfig holds recalculation settings.
type RecalcConfig struct {
	Parallelism int `mapstructure:"parallelism" validate:"min=1,max=64"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// TransitionRetries is how often a transition is retried after a
	// serialization failure or lock timeout.
	TransitionRetries int `mapstructure:"transition_retries" validate:"min=0,max=10"`
}

// Load reads configuration from config.toml (optional) and environment.
// Priority (highest to lowest):
//  1. Environment variables with the COSTLEDGER_ prefix
//  2. config.toml in the working directory or /etc/costledger
//  3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/costledger")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "costledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.dsn", "postgres://postgres@localhost:5432/costledger?sslmode=disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.lock_timeout", 10*time.Second)

	v.SetDefault("lock.backend", LockBackendPostgres)
	v.SetDefault("lock.ttl", time.Minute)
	v.SetDefault("lock.retries", 100)
	v.SetDefault("lock.backoff", 50*time.Millisecond)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("stock.negative_rule", "true")

	v.SetDefault("recalc.parallelism", 4)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.idempotency_ttl", 24*time.Hour)
	v.SetDefault("http.transition_retries", 3)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Lock.Backend == LockBackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("invalid config: redis.addr is required when lock.backend is redis")
	}
	if c.App.Env == "production" && c.Log.Development {
		return fmt.Errorf("invalid config: log.development must be false in production")
	}
	return nil
}
