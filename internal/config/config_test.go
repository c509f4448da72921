package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "costledger", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, LockBackendPostgres, cfg.Lock.Backend)
	assert.Equal(t, "true", cfg.Stock.NegativeRule)
	assert.Equal(t, 4, cfg.Recalc.Parallelism)
	assert.Equal(t, 3, cfg.HTTP.TransitionRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COSTLEDGER_APP_PORT", "9000")
	t.Setenv("COSTLEDGER_DATABASE_DSN", "postgres://u:p@db:5432/ledger")
	t.Setenv("COSTLEDGER_DATABASE_STATEMENT_TIMEOUT", "5s")
	t.Setenv("COSTLEDGER_LOCK_BACKEND", "redis")
	t.Setenv("COSTLEDGER_REDIS_ADDR", "cache:6379")
	t.Setenv("COSTLEDGER_STOCK_NEGATIVE_RULE", "!backdated")
	t.Setenv("COSTLEDGER_RECALC_PARALLELISM", "8")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "postgres://u:p@db:5432/ledger", cfg.Database.DSN)
	assert.Equal(t, 5*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "!backdated", cfg.Stock.NegativeRule)
	assert.Equal(t, 8, cfg.Recalc.Parallelism)
}

func TestLoad_FromTOML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
[app]
env = "production"

[log]
level = "warn"

[stock]
negative_rule = "doc_type != 'Shipment'"
`)))

	cfg, err := load(v)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "doc_type != 'Shipment'", cfg.Stock.NegativeRule)
	assert.Equal(t, 4, cfg.Recalc.Parallelism)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := load(viper.New())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown env", func(c *Config) { c.App.Env = "staging" }, "Env"},
		{"bad port", func(c *Config) { c.App.Port = 0 }, "Port"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "Level"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "DSN"},
		{"min above max", func(c *Config) { c.Database.MinConns = 50 }, "MinConns"},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "etcd" }, "Backend"},
		{"redis without addr", func(c *Config) {
			c.Lock.Backend = LockBackendRedis
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"zero parallelism", func(c *Config) { c.Recalc.Parallelism = 0 }, "Parallelism"},
		{"empty rule", func(c *Config) { c.Stock.NegativeRule = "" }, "NegativeRule"},
		{"dev logging in production", func(c *Config) {
			c.App.Env = "production"
			c.Log.Development = true
		}, "log.development"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
