package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_marketplace/internal/cache"
	"github.com/fjod/go_marketplace/internal/config"
	"github.com/fjod/go_marketplace/internal/health"
	h "github.com/fjod/go_marketplace/internal/http"
	"github.com/fjod/go_marketplace/internal/poller"
	"github.com/fjod/go_marketplace/internal/service"
	"github.com/fjod/go_marketplace/internal/storage"
	"github.com/fjod/go_marketplace/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  "cart-store",
	})
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	if tp != nil {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down tracer provider: %v", err)
			}
		}()
		log.Printf("Tracing spans via %s exporter", cfg.TraceExporter)
	}

	st, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.StorageBackend, err)
	}
	defer closeStorage()
	log.Printf("Using %s storage", cfg.StorageBackend)

	if cfg.CacheRedisAddr != "" {
		cacheClient := redis.NewClient(&redis.Options{Addr: cfg.CacheRedisAddr})
		defer cacheClient.Close()
		if err := cacheClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Redis cache connection failed:", err)
		}
		st = storage.NewCachedStorage(st, cache.NewRedisCache(cacheClient))
		log.Printf("Redis cache enabled at %s", cfg.CacheRedisAddr)
	}

	if cfg.CircuitBreaker {
		st = storage.NewBreakerStorage(st, storage.BreakerSettings{Name: cfg.StorageBackend})
	}

	opts := []service.Option{service.WithTracer(otel.Tracer("cart-store"))}
	if cfg.VersionedSnapshots {
		opts = append(opts, service.WithVersionedSnapshots())
	}
	if cfg.StrictHydration {
		opts = append(opts, service.WithStrictHydration())
	}
	registry := service.NewRegistry(st, cfg.StorageKey, opts...)

	// HTTP API
	cartHandler := h.NewCartHandler(registry, cfg.RequestTimeout)
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: otelhttp.NewHandler(h.NewRouter(cartHandler, cfg.RequestTimeout), "cart-store"),
	}

	go func() {
		log.Printf("Cart store HTTP API listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// gRPC health
	checker := health.NewChecker(st, cfg.HealthInterval)
	go checker.Run(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, checker.Server())
	reflection.Register(grpcServer)

	go func() {
		log.Printf("Health service listening on port %s", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Checkout events
	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(registry, cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Printf("Consuming %s from %v", cfg.KafkaTopic, cfg.KafkaBrokers)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart store...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	log.Println("Cart store stopped")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	switch cfg.StorageBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return storage.NewRedisStorage(client), func() { client.Close() }, nil

	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		ms := storage.NewMongoStorage(db)
		if err := ms.CreateIndexes(ctx, cfg.MongoSnapshotTTL); err != nil {
			log.Printf("failed to create mongo indexes: %v", err)
		}
		return ms, func() { db.Client().Disconnect(context.Background()) }, nil

	case "sqlite", "postgres":
		dialect, dsn := storage.DialectSQLite, cfg.SQLitePath
		if cfg.StorageBackend == "postgres" {
			dialect, dsn = storage.DialectPostgres, cfg.PostgresDSN
		}
		ss, err := storage.NewSQLStorage(dialect, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := ss.RunMigrations(); err != nil {
			ss.Close()
			return nil, nil, err
		}
		return ss, func() { ss.Close() }, nil

	default:
		return storage.NewMemoryStorage(), func() {}, nil
	}
}
