package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	require.NoError(t, LoadConfig())
	cfg := GetAppConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1:19530", cfg.Milvus.Address())
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, 512, cfg.Embedding.MaxSeqLength)
	assert.Equal(t, "/shared/gpu.lock", cfg.GPU.LockPath)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Retry.BackoffSeconds)
	assert.Equal(t, 10000, cfg.Sync.InsertChunkSize)
	assert.InEpsilon(t, 1.0, cfg.Sync.DedupThreshold, 1e-9)
	assert.Equal(t, []string{"mistral", "deepseek", "openai"}, cfg.Backends.DefaultOrder)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MILVUS_HOST", "milvus.internal")
	t.Setenv("BACKENDS_ORDER", "openai, mistral")
	t.Setenv("GPU_LOCK_PATH", "/tmp/gpu.lock")

	require.NoError(t, LoadConfig())
	cfg := GetAppConfig()

	assert.Equal(t, "milvus.internal:19530", cfg.Milvus.Address())
	assert.Equal(t, []string{"openai", "mistral"}, cfg.Backends.DefaultOrder)
	assert.Equal(t, "/tmp/gpu.lock", cfg.GPU.LockPath)
}

func TestDSNFormats(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "p", Database: "frida"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=frida sslmode=disable", pg.DSN())

	wiki := WikiConfig{Host: "mysql", Port: "3306", User: "u", Password: "p", Database: "bookstack"}
	assert.Equal(t, "u:p@tcp(mysql:3306)/bookstack?charset=utf8mb4&parseTime=True", wiki.DSN())
}
