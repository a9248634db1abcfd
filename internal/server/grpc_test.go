package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"sharddist/internal/membership"
	"sharddist/internal/ring"
)

func TestServeGRPC_HealthFollowsMembership(t *testing.T) {
	r, err := ring.New(map[string]float64{"n1": 10}, 4)
	require.NoError(t, err)
	members := membership.NewHandler(r)
	s := New(r, members)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis := bufconn.Listen(1 << 20)
	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.ServeGRPC(serveCtx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))

	require.NoError(t, members.Handle(ctx, membership.Event{Type: membership.Leave, Node: "n1"}))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceName))

	require.NoError(t, members.Handle(ctx, membership.Event{Type: membership.Join, Node: "n2", AvailableResources: 1}))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("ServeGRPC did not return after cancellation")
	}
}

func TestNew_EmptyRingNotServing(t *testing.T) {
	r, err := ring.New(nil, 4)
	require.NoError(t, err)
	s := New(r, membership.NewHandler(r))

	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}
