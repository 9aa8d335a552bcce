package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported to gRPC health checks.
const ServiceName = "export_service"

// PingFunc probes the job store backend.
type PingFunc func(ctx context.Context) error

// HealthReporter publishes the job store's reachability through the standard gRPC health service.
type HealthReporter struct {
	health   *health.Server
	ping     PingFunc
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(ping PingFunc, interval time.Duration, logger *slog.Logger) *HealthReporter {
	h := &HealthReporter{
		health:   health.NewServer(),
		ping:     ping,
		interval: interval,
		logger:   logger.With("component", "grpc_health"),
	}
	h.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register adds the health service and server reflection to s.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Check pings the store once and records the result.
func (h *HealthReporter) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	err := h.ping(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.WarnContext(ctx, "Job store health check failed", "error", err)
	}
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
	return err
}

// Run re-checks on every interval until ctx is done, then marks every service NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	_ = h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
			_ = h.Check(ctx)
		}
	}
}
