package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Session storage backends.
const (
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendMemory = "memory"
)

type Config struct {
	Port        string `env:"PORT,         default=8080"`
	Env         string `env:"ENV,          default=development"`
	LogLevel    string `env:"LOG_LEVEL,    default=info"`
	ScopeSecret string `env:"SCOPE_SECRET"`
	FlashSecret string `env:"FLASH_SECRET"`

	Gateway GatewayConfig
	Session SessionConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Audit   AuditConfig
}

type GatewayConfig struct {
	BaseURL string        `env:"GATEWAY_BASE_URL, default=http://localhost:8000/api"`
	Timeout time.Duration `env:"GATEWAY_TIMEOUT,  default=15s"`
}

type SessionConfig struct {
	Backend string        `env:"SESSION_BACKEND,    default=redis"`
	Key     string        `env:"SESSION_KEY,        default=authState"`
	Dir     string        `env:"SESSION_DIR,        default=./data/sessions"`
	TTL     time.Duration `env:"SESSION_TTL,        default=168h"`
	IdleTTL time.Duration `env:"WORKSPACE_IDLE_TTL, default=30m"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DB, default=practice_portal"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=2"`
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Development reports whether ENV selects the local developer setup.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Session.Backend {
	case BackendRedis, BackendFile, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND %q: want redis, file or memory", c.Session.Backend))
	}
	if c.Session.Backend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis session backend"))
	}
	if strings.TrimSpace(c.Session.Key) == "" {
		errs = append(errs, errors.New("SESSION_KEY must not be empty"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.Audit.Workers < 1 {
		errs = append(errs, errors.New("AUDIT_WORKERS must be at least 1"))
	}
	if !c.Development() {
		if c.ScopeSecret == "" {
			errs = append(errs, errors.New("SCOPE_SECRET is required outside development"))
		}
		if c.FlashSecret == "" {
			errs = append(errs, errors.New("FLASH_SECRET is required outside development"))
		}
	}
	return errors.Join(errs...)
}
