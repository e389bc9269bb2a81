package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgres://localhost/hostel")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("ALLOCATION_LOCK_TIMEOUT", "750ms")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/hostel", cfg.Database.Source)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 750*time.Millisecond, cfg.Allocation.LockTimeout)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 256, cfg.Audit.BufferSize)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
audit:
  sink: log
  buffer_size: 8
redis:
  addr: localhost:6379
`), 0o600))

	cfg, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "log", cfg.Audit.Sink)
	assert.Equal(t, 8, cfg.Audit.BufferSize)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Store.Driver = DriverMemory
		c.Audit.Sink = "log"
		c.JWT.Secret = "x"
		c.Allocation.LockTimeout = time.Second
		return c
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Store.Driver = DriverPostgres
	assert.ErrorContains(t, c.Validate(), "DB_SOURCE")

	c = valid()
	c.Store.Driver = "sqlite"
	assert.Error(t, c.Validate())

	c = valid()
	c.Audit.Sink = DriverPostgres
	assert.ErrorContains(t, c.Validate(), "requires store.driver postgres")

	c = valid()
	c.JWT.Secret = ""
	assert.ErrorContains(t, c.Validate(), "JWT_SECRET")

	c = valid()
	c.Allocation.LockTimeout = 0
	assert.Error(t, c.Validate())
}
