package observability

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServiceName is the service name reported by the gRPC health server
const GRPCServiceName = "calorie-tracker"

// GRPCHealth exposes the readiness checks over grpc.health.v1
type GRPCHealth struct {
	server    *grpc.Server
	health    *health.Server
	readiness *Readiness
	interval  time.Duration
}

// NewGRPCHealth creates a gRPC health server whose status follows readiness
func NewGRPCHealth(readiness *Readiness, interval time.Duration) *GRPCHealth {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(GRPCServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server:    srv,
		health:    hs,
		readiness: readiness,
		interval:  interval,
	}
}

// Refresh runs the readiness checks once and publishes the result
func (g *GRPCHealth) Refresh(ctx context.Context) bool {
	ready, _ := g.readiness.Evaluate(ctx)

	status := healthpb.HealthCheckResponse_SERVING
	if !ready {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(GRPCServiceName, status)

	return ready
}

// Watch refreshes the serving status until ctx is done
func (g *GRPCHealth) Watch(ctx context.Context) {
	logger := WithComponent("grpc_health")
	g.Refresh(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !g.Refresh(ctx) {
				logger.Warn().Msg("Readiness checks failing, reporting NOT_SERVING")
			}
		}
	}
}

// Serve accepts gRPC connections on lis until Stop is called
func (g *GRPCHealth) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
