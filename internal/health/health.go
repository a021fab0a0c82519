package health

import (
	"context"
	"log"
	"time"

	"github.com/fjod/go_marketplace/internal/storage"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name the cart store reports under in grpc.health.v1.
const ServiceName = "marketplace.CartStore"

// Checker keeps a grpc health server in line with storage reachability.
type Checker struct {
	storage  storage.Storage
	server   *grpchealth.Server
	interval time.Duration
	timeout  time.Duration
}

func NewChecker(st storage.Storage, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Checker{
		storage:  st,
		server:   grpchealth.NewServer(),
		interval: interval,
		timeout:  2 * time.Second,
	}
}

func (c *Checker) Server() *grpchealth.Server {
	return c.server
}

// Check pings the storage once and publishes the result.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := storage.Ping(ctx, c.storage); err != nil {
		log.Printf("storage health check failed: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	c.server.SetServingStatus(ServiceName, status)
	c.server.SetServingStatus("", status)
	return status
}

// Run checks on every tick until ctx is cancelled, then marks the service
// as shutting down.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.server.Shutdown()
			return
		}
	}
}
