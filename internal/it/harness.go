package it

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"

	"github.com/sethvargo/go-envconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"sharddist/internal/config"
	"sharddist/internal/membership"
	"sharddist/internal/ring"
	"sharddist/internal/server"
)

// Cluster runs the full service in process: configuration, ring, HTTP API
// and gRPC health, wired the way cmd/sharddist wires them.
type Cluster struct {
	Ring *ring.Ring

	http   *httptest.Server
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	cancel context.CancelFunc
	done   chan error
}

// StartCluster configures the service from env and starts it.
func StartCluster(ctx context.Context, env map[string]string) (*Cluster, error) {
	cfg, err := config.LoadWith(ctx, envconfig.MapLookuper(env))
	if err != nil {
		return nil, err
	}
	r, err := cfg.BuildRing()
	if err != nil {
		return nil, fmt.Errorf("failed to build ring: %w", err)
	}
	srv := server.New(r, membership.NewHandler(r))

	lis := bufconn.Listen(1 << 20)
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.ServeGRPC(serveCtx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to dial health service: %w", err)
	}

	return &Cluster{
		Ring:   r,
		http:   httptest.NewServer(srv),
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cancel: cancel,
		done:   done,
	}, nil
}

// Stop shuts the service down. It reports failures to close the health
// client and the gRPC server's exit error.
func (c *Cluster) Stop() error {
	c.http.Close()
	closeErr := c.conn.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("failed to close health client: %w", closeErr)
	}
	c.cancel()
	return errors.Join(closeErr, <-c.done)
}

// Health returns the serving status of the ring service.
func (c *Cluster) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// AddNode joins a node through the API.
func (c *Cluster) AddNode(ctx context.Context, id string, availableResources float64) error {
	return c.call(ctx, http.MethodPut, "/v1/nodes/"+id, map[string]float64{"available_resources": availableResources}, nil)
}

// UpdateNode overwrites a node's budget through the API.
func (c *Cluster) UpdateNode(ctx context.Context, id string, availableResources float64) error {
	return c.call(ctx, http.MethodPatch, "/v1/nodes/"+id, map[string]float64{"available_resources": availableResources}, nil)
}

// RemoveNode removes a node through the API.
func (c *Cluster) RemoveNode(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/nodes/"+id, nil, nil)
}

// SendEvents posts a batch of membership events.
func (c *Cluster) SendEvents(ctx context.Context, events ...membership.Event) error {
	return c.call(ctx, http.MethodPost, "/v1/events", events, nil)
}

// Nodes returns the node budgets reported by the API.
func (c *Cluster) Nodes(ctx context.Context) (map[string]float64, error) {
	var resp struct {
		Nodes map[string]float64 `json:"nodes"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/nodes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// Distribute asks the API where entity should live.
func (c *Cluster) Distribute(ctx context.Context, entity string, replicas *uint16, consumed *float64) ([]string, error) {
	req := struct {
		Entity            string   `json:"entity"`
		Replicas          *uint16  `json:"replicas,omitempty"`
		ConsumedResources *float64 `json:"consumed_resources,omitempty"`
	}{entity, replicas, consumed}

	var resp struct {
		Nodes []string `json:"nodes"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/distribute", req, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

func (c *Cluster) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.http.URL+path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Client().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
