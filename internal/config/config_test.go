package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg, err := Load(append([]string{"--config-dir", t.TempDir()}, args...))
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(t)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 2160*time.Hour, cfg.Auction.PaymentDeadline)
	assert.Equal(t, 3, cfg.Auction.MaxFailedAttempts)
	assert.False(t, cfg.Auction.AutoReopen)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "local", cfg.Store.LockDriver)
	assert.Equal(t, []string{"redis", "log"}, cfg.Store.SinkDrivers)
	assert.Equal(t, "lot:timers", cfg.Scheduler.JobKey)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 3, cfg.Redis.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.Redis.ReadTimeout)
	assert.Empty(t, cfg.Store.CatalogFile)
	assert.True(t, cfg.UsesRedis())
	assert.NoError(t, cfg.Validate())
}

func TestFlagsAndEnvironment(t *testing.T) {
	t.Setenv(AuctionMaxFailedAttempts, "5")
	t.Setenv(SinkDrivers, " Log , NATS ")
	t.Setenv(LockDriver, "REDIS")
	t.Setenv(RedisPoolSize, "32")
	t.Setenv(RedisMinIdleConns, "4")
	t.Setenv(RedisReadTimeout, "250ms")

	cfg := loadFrom(t, "--port", "9090", "--store-driver", "memory", "--log-level", "debug", "--catalog-file", "lots.json")

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Auction.MaxFailedAttempts)
	assert.Equal(t, []string{"log", "nats"}, cfg.Store.SinkDrivers)
	assert.True(t, cfg.HasSink("nats"))
	assert.False(t, cfg.HasSink("redis"))
	assert.True(t, cfg.UsesRedis(), "redis lock needs redis")
	assert.Equal(t, 32, cfg.Redis.PoolSize)
	assert.Equal(t, 4, cfg.Redis.MinIdleConns)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.ReadTimeout)
	assert.Equal(t, "lots.json", cfg.Store.CatalogFile)
	assert.NoError(t, cfg.Validate())
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".envrc"), []byte("AUCTION_PAYMENT_DEADLINE=48h\nAUCTION_AUTO_REOPEN=true\n"), 0o600))

	cfg, err := Load([]string{"--config-dir", dir})
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.Auction.PaymentDeadline)
	assert.True(t, cfg.Auction.AutoReopen)
}

func TestUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--nope"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }},
		{"postgres without url", func(c *Config) { c.Database.URL = "" }},
		{"unknown lock", func(c *Config) { c.Store.LockDriver = "zookeeper" }},
		{"unknown sink", func(c *Config) { c.Store.SinkDrivers = []string{"kafka"} }},
		{"nats sink without url", func(c *Config) {
			c.Store.SinkDrivers = []string{"nats"}
			c.NATS.URL = ""
		}},
		{"redis without address", func(c *Config) { c.Redis.Addr = "" }},
		{"empty redis pool", func(c *Config) { c.Redis.PoolSize = 0 }},
		{"idle above pool", func(c *Config) { c.Redis.MinIdleConns = c.Redis.PoolSize + 1 }},
		{"memory without catalog", func(c *Config) { c.Store.Driver = "memory" }},
		{"zero deadline", func(c *Config) { c.Auction.PaymentDeadline = 0 }},
		{"zero attempts", func(c *Config) { c.Auction.MaxFailedAttempts = 0 }},
		{"auto reopen without duration", func(c *Config) {
			c.Auction.AutoReopen = true
			c.Auction.ReopenDuration = 0
		}},
		{"no scheduler workers", func(c *Config) { c.Scheduler.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFrom(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMemoryStoreWithoutRedis(t *testing.T) {
	cfg := loadFrom(t, "--store-driver", "memory")
	cfg.Store.CatalogFile = "lots.json"
	cfg.Store.SinkDrivers = []string{"log"}
	cfg.Redis.Addr = ""

	assert.False(t, cfg.UsesRedis())
	assert.NoError(t, cfg.Validate())
}
