package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// CatalogService is the grpc health service name tracking catalog reachability.
const CatalogService = "ehp.Catalog"

// HealthReporter keeps the grpc health status in step with a catalog ping.
type HealthReporter struct {
	srv      *health.Server
	ping     func(ctx context.Context) error
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(srv *health.Server, ping func(ctx context.Context) error, interval time.Duration, logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthReporter{srv: srv, ping: ping, interval: interval, logger: logger}
}

// Check pings once and publishes the result for both the overall server and
// CatalogService.
func (h *HealthReporter) Check(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := h.ping(ctx); err != nil {
		h.logger.Warn("catalog health check failed", "error", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(CatalogService, status)
	return status
}

// Run checks every interval until ctx ends, then marks everything not serving.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}
