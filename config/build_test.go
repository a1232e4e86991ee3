package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/storage"
)

func roundTrip(t *testing.T, cfg StorageConfig) {
	t.Helper()
	ctx := context.Background()
	s, closeFn, err := BuildStorage(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	require.NoError(t, s.Write(ctx, map[string]any{"k": map[string]any{"v": "x"}}))
	items, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": "x"}, items["k"])
}

func TestBuildStorage_Memory(t *testing.T) {
	s, _, err := BuildStorage(context.Background(), StorageConfig{Type: StorageMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStorage{}, s)
	roundTrip(t, StorageConfig{Type: StorageMemory})
}

func TestBuildStorage_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig().Storage
	cfg.Type = StorageRedis
	cfg.Redis.Addr = mr.Addr()

	roundTrip(t, cfg)
	assert.True(t, mr.Exists("dialogmesh:k"))
}

func TestBuildStorage_RedisUnreachable(t *testing.T) {
	_, _, err := BuildStorage(context.Background(), StorageConfig{Type: StorageRedis, Redis: RedisConfig{Addr: "127.0.0.1:1"}}, nil)
	assert.Error(t, err)
}

func TestBuildStorage_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "state.db")
	roundTrip(t, StorageConfig{Type: StorageSQL, SQL: SQLConfig{Driver: DriverSQLite, DSN: dsn, Table: "bot_state"}})
}

func TestBuildStorage_Unknown(t *testing.T) {
	_, _, err := BuildStorage(context.Background(), StorageConfig{Type: "etcd"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, _, err = BuildStorage(context.Background(), StorageConfig{Type: StorageSQL, SQL: SQLConfig{Driver: "oracle"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildLogger(t *testing.T) {
	l, sync, err := BuildLogger(LogConfig{Level: "debug", Format: "text", Backend: BackendSlog})
	require.NoError(t, err)
	assert.IsType(t, &logging.DialogLogger{}, l)
	assert.NoError(t, sync())

	l, _, err = BuildLogger(LogConfig{Level: "warn", Backend: BackendZap})
	require.NoError(t, err)
	assert.IsType(t, &logging.ZapAdapter{}, l)

	_, _, err = BuildLogger(LogConfig{Backend: "logrus"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSkillsConfig_SigningSecretBytes(t *testing.T) {
	assert.Nil(t, SkillsConfig{}.SigningSecretBytes())
	assert.Equal(t, []byte("s3cret"), SkillsConfig{SigningSecret: "s3cret"}.SigningSecretBytes())
}
