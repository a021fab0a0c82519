package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	StorageBackend string
	StorageKey     string

	RedisAddr      string
	RedisPassword  string
	CacheRedisAddr string
	MongoURI       string
	MongoDBName    string
	SQLitePath     string
	PostgresDSN    string

	KafkaBrokers []string
	KafkaTopic   string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration

	TraceExporter string
	OTLPEndpoint  string

	MongoSnapshotTTL time.Duration

	CircuitBreaker     bool
	VersionedSnapshots bool
	StrictHydration    bool
}

var backends = map[string]bool{
	"memory":   true,
	"redis":    true,
	"mongo":    true,
	"sqlite":   true,
	"postgres": true,
}

var traceExporters = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "50053"),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
		StorageKey:         getEnv("CART_STORAGE_KEY", "@GoMarketplace:products"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CacheRedisAddr:     getEnv("CACHE_REDIS_ADDR", ""),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "cartdb"),
		SQLitePath:         getEnv("SQLITE_PATH", "./cart.db"),
		PostgresDSN:        getEnv("POSTGRES_DSN", "host=localhost port=5432 user=postgres password=postgres dbname=cart sslmode=disable"),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "checkout-completed"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HealthInterval:     getDuration("HEALTH_INTERVAL", 10*time.Second),
		TraceExporter:      strings.ToLower(getEnv("TRACE_EXPORTER", "none")),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MongoSnapshotTTL:   getDuration("MONGO_SNAPSHOT_TTL", 0),
		CircuitBreaker:     getBool("CIRCUIT_BREAKER", false),
		VersionedSnapshots: getBool("SNAPSHOT_VERSIONED", false),
		StrictHydration:    getBool("STRICT_HYDRATION", false),
	}

	if !backends[cfg.StorageBackend] {
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if !traceExporters[cfg.TraceExporter] {
		return nil, fmt.Errorf("unknown TRACE_EXPORTER %q", cfg.TraceExporter)
	}
	if cfg.StorageKey == "" {
		return nil, fmt.Errorf("CART_STORAGE_KEY must not be empty")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
