package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/skills"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQL    = "sql"
)

// SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Logging backends.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete dialogmesh configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`
	Dialogs DialogsConfig `yaml:"dialogs" env:"DIALOGS"`
	OAuth   OAuthConfig   `yaml:"oauth" env:"OAUTH"`
	Skills  SkillsConfig  `yaml:"skills" env:"SKILLS"`
	// Settings is exposed read-only through the "settings" memory scope.
	Settings map[string]any `yaml:"settings" env:"-"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, text (slog) or json, console (zap)
	Format  string `yaml:"format" env:"FORMAT"`
	Backend string `yaml:"backend" env:"BACKEND"`
}

// StorageConfig selects and configures the state store.
type StorageConfig struct {
	// Type: memory, redis, sql
	Type  string      `yaml:"type" env:"TYPE"`
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	SQL   SQLConfig   `yaml:"sql" env:"SQL"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	PoolSize  int           `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// SQLConfig configures the SQL store.
type SQLConfig struct {
	// Driver: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
	Table  string `yaml:"table" env:"TABLE"`
}

// DialogsConfig configures the dialog manager.
type DialogsConfig struct {
	// ExpireAfter drops conversation state idle for longer. Zero disables expiry.
	ExpireAfter time.Duration `yaml:"expire_after" env:"EXPIRE_AFTER"`
}

// OAuthConfig configures sign-in prompts.
type OAuthConfig struct {
	ConnectionName string        `yaml:"connection_name" env:"CONNECTION_NAME"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SkillsConfig configures skill calls.
type SkillsConfig struct {
	// BotID is this bot's app id.
	BotID string `yaml:"bot_id" env:"BOT_ID"`
	// HostEndpoint is where skills send their replies.
	HostEndpoint  string                     `yaml:"host_endpoint" env:"HOST_ENDPOINT"`
	SigningSecret string                     `yaml:"signing_secret" env:"SIGNING_SECRET"`
	Issuer        string                     `yaml:"issuer" env:"ISSUER"`
	Items         []skills.BotFrameworkSkill `yaml:"items" env:"-"`
}

// Skill returns the configured skill with id.
func (c SkillsConfig) Skill(id string) (skills.BotFrameworkSkill, bool) {
	for _, s := range c.Items {
		if s.ID == id {
			return s, true
		}
	}
	return skills.BotFrameworkSkill{}, false
}

// DefaultConfig returns the baseline configuration: JSON slog logging at
// info level with in-memory storage.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Backend: BackendSlog,
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "dialogmesh:",
			},
			SQL: SQLConfig{
				Driver: DriverSQLite,
				DSN:    "file:dialogmesh.db",
			},
		},
		OAuth: OAuthConfig{
			Timeout: 15 * time.Minute,
		},
		Settings: map[string]any{},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Log.Backend {
	case BackendSlog, BackendZap:
	default:
		return fmt.Errorf("%w: unknown log backend %q", ErrInvalidConfig, c.Log.Backend)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("%w: storage.redis.addr is required", ErrInvalidConfig)
		}
	case StorageSQL:
		switch c.Storage.SQL.Driver {
		case DriverSQLite, DriverPostgres, DriverMySQL:
		default:
			return fmt.Errorf("%w: unknown sql driver %q", ErrInvalidConfig, c.Storage.SQL.Driver)
		}
		if c.Storage.SQL.DSN == "" {
			return fmt.Errorf("%w: storage.sql.dsn is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}

	if c.Dialogs.ExpireAfter < 0 {
		return fmt.Errorf("%w: dialogs.expire_after must not be negative", ErrInvalidConfig)
	}
	if c.OAuth.Timeout < 0 {
		return fmt.Errorf("%w: oauth.timeout must not be negative", ErrInvalidConfig)
	}

	seen := map[string]bool{}
	for _, s := range c.Skills.Items {
		if s.ID == "" || s.SkillEndpoint == "" {
			return fmt.Errorf("%w: skills need an id and an endpoint", ErrInvalidConfig)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate skill %q", ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
	}
	if len(c.Skills.Items) > 0 && c.Skills.BotID == "" {
		return fmt.Errorf("%w: skills.bot_id is required when skills are configured", ErrInvalidConfig)
	}
	return nil
}
