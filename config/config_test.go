package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("NOTEBASE_TEST", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/api/v1", cfg.Server.Prefix)
	assert.Equal(t, "100M", cfg.Server.BodyLimit)

	assert.Equal(t, "app-docs", cfg.Storage.Bucket)
	assert.Equal(t, "source_changes", cfg.Bus.Topic)
	assert.Equal(t, "indexing-worker-group", cfg.Bus.Group)
	assert.Equal(t, 10*time.Second, cfg.Bus.PublishTimeout)

	assert.Equal(t, "documents", cfg.Vector.Collection)
	assert.Equal(t, 1536, cfg.Vector.Dimension)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)

	assert.Equal(t, 10, cfg.Worker.BatchSize)
	assert.Equal(t, 300*time.Second, cfg.Worker.TaskTimeout)
	assert.Equal(t, 1000, cfg.Worker.ChunkSize)
	assert.Equal(t, 200, cfg.Worker.ChunkOverlap)

	assert.Equal(t, int64(10*1024*1024), cfg.Limits.MaxPDFSizeBytes)
	assert.Equal(t, int64(100), cfg.Limits.MinFileSizeBytes)
	assert.Equal(t, 5, cfg.Limits.MaxConcurrentProcessingPerUser)
	assert.Equal(t, 25*time.Second, cfg.Limits.URLProcessingTimeout)

	assert.Equal(t, 3, cfg.Retry.Blob.MaxAttempts)
	assert.Equal(t, 5, cfg.Retry.Bus.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Retry.Bus.MaxDelay)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("NBTEST_SERVER_PORT", "9090")
	t.Setenv("NBTEST_DATABASE_HOST", "pg.internal")
	t.Setenv("NBTEST_BUS_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig("NBTEST", "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Bus.BrokerList())
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Name:     "notebase",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=notebase sslmode=disable",
		db.DSN())
}

func TestLimitsHelpers(t *testing.T) {
	limits := LimitsConfig{
		MaxPDFSizeBytes:  100,
		MaxDOCXSizeBytes: 200,
		MaxTXTSizeBytes:  300,
		AllowedFileTypes: "pdf, DOCX ,txt",
	}

	assert.Equal(t, []string{"pdf", "docx", "txt"}, limits.AllowedTypes())
	assert.Equal(t, int64(100), limits.MaxSizeFor(".pdf"))
	assert.Equal(t, int64(200), limits.MaxSizeFor("docx"))
	assert.Equal(t, int64(300), limits.MaxSizeFor(".txt"))
	assert.Equal(t, int64(300), limits.MaxSizeFor("md"))
}

func TestValidateConfig(t *testing.T) {
	cfg, err := LoadConfig("NBVAL", "")
	require.NoError(t, err)

	cfg.Server.Port = 0
	assert.Error(t, ValidateConfig(cfg))

	cfg.Server.Port = 8080
	cfg.Worker.ChunkOverlap = cfg.Worker.ChunkSize
	assert.Error(t, ValidateConfig(cfg))

	cfg.Worker.ChunkOverlap = 200
	assert.NoError(t, ValidateConfig(cfg))
}
