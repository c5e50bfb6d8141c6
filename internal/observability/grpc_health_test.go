package observability

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dialBufconn(t *testing.T, lis *bufconn.Listener) healthpb.HealthClient {
	t.Helper()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func TestGRPCHealth_FollowsReadiness(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	readiness := NewReadiness(time.Second, NamedCheck{
		Name: "groq",
		Check: func(ctx context.Context) (bool, error) {
			if healthy.Load() {
				return true, nil
			}
			return false, errors.New("unreachable")
		},
	})

	gh := NewGRPCHealth(readiness, time.Hour)
	lis := bufconn.Listen(1024 * 1024)
	go gh.Serve(lis)
	defer gh.Stop()

	client := dialBufconn(t, lis)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: GRPCServiceName})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING before first refresh, got %v", resp.Status)
	}

	if !gh.Refresh(ctx) {
		t.Fatal("Expected Refresh to report ready")
	}
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: GRPCServiceName})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", resp.Status)
	}

	healthy.Store(false)
	if gh.Refresh(ctx) {
		t.Fatal("Expected Refresh to report not ready")
	}
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after failing check, got %v", resp.Status)
	}
}
