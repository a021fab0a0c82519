package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "@GoMarketplace:products", cfg.StorageKey)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.CircuitBreaker)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Zero(t, cfg.MongoSnapshotTTL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("CIRCUIT_BREAKER", "true")
	t.Setenv("SNAPSHOT_VERSIONED", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StorageBackend)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.CircuitBreaker)
	assert.True(t, cfg.VersionedSnapshots)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("STRICT_HYDRATION", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.StrictHydration)
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "etcd")

	_, err := Load()
	assert.ErrorContains(t, err, "unknown STORAGE_BACKEND")
}

func TestLoad_Tracing(t *testing.T) {
	t.Setenv("TRACE_EXPORTER", "OTLP")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("MONGO_SNAPSHOT_TTL", "720h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "otlp", cfg.TraceExporter)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 720*time.Hour, cfg.MongoSnapshotTTL)
}

func TestLoad_UnknownTraceExporter(t *testing.T) {
	t.Setenv("TRACE_EXPORTER", "zipkin")

	_, err := Load()
	assert.ErrorContains(t, err, "unknown TRACE_EXPORTER")
}
