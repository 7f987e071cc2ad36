package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "notify:tasks", cfg.Queue.Stream)
	assert.Equal(t, "wisefido-notify", cfg.Queue.Group)
	assert.Equal(t, int64(10), cfg.Queue.BatchSize)
	assert.Equal(t, 500, cfg.Cleanup.ErasureBatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("QUEUE_STREAM", "custom:tasks")
	t.Setenv("QUEUE_CONSUMER", "notify-worker-3")
	t.Setenv("CLEANUP_ERASURE_BATCH_SIZE", "100")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, "custom:tasks", cfg.Queue.Stream)
	assert.Equal(t, "notify-worker-3", cfg.Queue.ConsumerName)
	assert.Equal(t, 100, cfg.Cleanup.ErasureBatchSize)
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("CLEANUP_ERASURE_BATCH_SIZE", "-1")

	cfg, err := Load()

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestGetDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "notify")

	cfg, err := Load()
	require.NoError(t, err)

	dsn := cfg.GetDSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=notify")
}
