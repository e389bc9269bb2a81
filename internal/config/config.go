package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env string `mapstructure:"environment"`

	Server struct {
		Port               string        `mapstructure:"port"`
		CorsAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
		ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Database struct {
		Source   string `mapstructure:"source"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`

	Store struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"store"`

	Allocation struct {
		LockTimeout time.Duration `mapstructure:"lock_timeout"`
	} `mapstructure:"allocation"`

	Audit struct {
		Sink       string        `mapstructure:"sink"`
		BufferSize int           `mapstructure:"buffer_size"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"audit"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret string        `mapstructure:"secret"`
		Issuer string        `mapstructure:"issuer"`
		TTL    time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads configs/config.yaml when present, then .env, then the
// environment. DB_SOURCE, SERVER_PORT and ENVIRONMENT are honoured as-is.
func Load() (*Config, error) {
	return load("configs/config.yaml")
}

func load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("allocation.lock_timeout", 3*time.Second)
	v.SetDefault("audit.sink", DriverPostgres)
	v.SetDefault("audit.buffer_size", 256)
	v.SetDefault("audit.timeout", 5*time.Second)
	v.SetDefault("redis.ttl", time.Minute)
	v.SetDefault("jwt.issuer", "hostelops")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	// Unprefixed names used by existing deployments.
	_ = v.BindEnv("database.source", "DB_SOURCE")
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("environment", "ENVIRONMENT")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file at %s, using defaults and environment", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.Source == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Store.Driver)
	}
	switch c.Audit.Sink {
	case "log":
	case DriverPostgres:
		if c.Store.Driver != DriverPostgres {
			return fmt.Errorf("audit.sink postgres requires store.driver postgres")
		}
	default:
		return fmt.Errorf("audit.sink must be \"postgres\" or \"log\", got %q", c.Audit.Sink)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Allocation.LockTimeout <= 0 {
		return fmt.Errorf("allocation.lock_timeout must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
