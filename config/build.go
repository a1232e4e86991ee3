package config

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/storage"
)

// BuildLogger constructs the logger described by cfg. Zap loggers are
// flushed by the returned sync function; it is a no-op for slog.
func BuildLogger(cfg LogConfig) (logging.Logger, func() error, error) {
	level := logging.ParseLevel(cfg.Level)
	switch cfg.Backend {
	case "", BackendSlog:
		return logging.NewSlogLogger(level, cfg.Format, false), func() error { return nil }, nil
	case BackendZap:
		zcfg := zap.NewProductionConfig()
		if cfg.Format == "console" {
			zcfg = zap.NewDevelopmentConfig()
		}
		zcfg.Level = zapLevel(level)
		zl, err := zcfg.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("build zap logger: %w", err)
		}
		adapter := logging.NewZapAdapter(zl)
		return adapter, adapter.Sync, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown log backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

func zapLevel(l logging.LogLevel) zap.AtomicLevel {
	switch l {
	case logging.LogLevelDebug:
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case logging.LogLevelWarn:
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case logging.LogLevelError:
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

// BuildStorage constructs the state store described by cfg. The returned
// close function releases backend connections.
func BuildStorage(ctx context.Context, cfg StorageConfig, logger logging.Logger) (core.Storage, func() error, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	noop := func() error { return nil }

	switch cfg.Type {
	case "", StorageMemory:
		return storage.NewMemoryStorage(), noop, nil

	case StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		s := storage.NewRedisStorage(client, func(o *storage.RedisOptions) {
			if cfg.Redis.KeyPrefix != "" {
				o.KeyPrefix = cfg.Redis.KeyPrefix
			}
			o.TTL = cfg.Redis.TTL
			o.Logger = logger
		})
		return s, client.Close, nil

	case StorageSQL:
		dialector, err := sqlDialector(cfg.SQL)
		if err != nil {
			return nil, nil, err
		}
		db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s database: %w", cfg.SQL.Driver, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("open %s database: %w", cfg.SQL.Driver, err)
		}
		s, err := storage.NewSQLStorage(db, func(o *storage.SQLOptions) {
			if cfg.SQL.Table != "" {
				o.Table = cfg.SQL.Table
			}
		})
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return s, sqlDB.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, cfg.Type)
	}
}

func sqlDialector(cfg SQLConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return sqlite.Open(cfg.DSN), nil
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("%w: unknown sql driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

// SigningSecretBytes returns the skill signing secret, or nil when skill
// calls are unauthenticated.
func (c SkillsConfig) SigningSecretBytes() []byte {
	if c.SigningSecret == "" {
		return nil
	}
	return []byte(c.SigningSecret)
}
