package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"sharddist/internal/membership"
	"sharddist/internal/metrics"
	"sharddist/internal/ring"
)

// ServiceName is the gRPC health service name reported for the ring.
const ServiceName = "sharddist.Ring"

const maxBodyBytes = 1 << 20

// Server serves placement requests and membership changes for one ring.
type Server struct {
	ring    *ring.Ring
	members *membership.Handler
	health  *health.Server
	mux     *http.ServeMux
}

// New creates a server for r. Membership changes made through the server,
// or through members by anyone else, update the health status. The server
// adds its own callback to members; callbacks registered by others keep
// running.
func New(r *ring.Ring, members *membership.Handler) *Server {
	s := &Server{
		ring:    r,
		members: members,
		health:  health.NewServer(),
		mux:     http.NewServeMux(),
	}
	members.OnMembershipChanged(s.setServing)
	s.setServing(r.NodeIDs())

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/nodes", s.handleListNodes)
	s.mux.HandleFunc("PUT /v1/nodes/{id}", s.handleAddNode)
	s.mux.HandleFunc("PATCH /v1/nodes/{id}", s.handleUpdateNode)
	s.mux.HandleFunc("DELETE /v1/nodes/{id}", s.handleRemoveNode)
	s.mux.HandleFunc("POST /v1/distribute", s.handleDistribute)
	s.mux.HandleFunc("POST /v1/events", s.handleEvents)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves the HTTP API on port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           otelhttp.NewHandler(s, "sharddist"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.FromContext(ctx).Errorf("failed to shut down http server: %v", err)
		}
	}()

	clog.FromContext(ctx).With("port", port).Info("serving ring API")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve http: %w", err)
	}
	return nil
}

// setServing reports SERVING while at least one node can take placements.
func (s *Server) setServing(nodes []string) {
	status := healthpb.HealthCheckResponse_SERVING
	if len(nodes) == 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

type nodesResponse struct {
	Nodes    map[string]float64 `json:"nodes"`
	VNodes   int                `json:"vnodes"`
	Replicas int                `json:"replicas"`
	Hash     string             `json:"hash"`
	Checksum uint64             `json:"checksum,string"`
}

type nodeRequest struct {
	AvailableResources *float64 `json:"available_resources"`
}

type nodeResponse struct {
	Node               string  `json:"node"`
	AvailableResources float64 `json:"available_resources"`
}

type distributeRequest struct {
	Entity            string   `json:"entity"`
	Replicas          *uint16  `json:"replicas"`
	ConsumedResources *float64 `json:"consumed_resources"`
}

type distributeResponse struct {
	Entity string   `json:"entity"`
	Nodes  []string `json:"nodes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, nodesResponse{
		Nodes:    s.ring.Nodes(),
		VNodes:   s.ring.VNodes(),
		Replicas: s.ring.Replicas(),
		Hash:     s.ring.Hasher().Name(),
		Checksum: s.ring.Checksum(),
	})
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	s.applyNodeEvent(w, r, membership.Join)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	if _, exists := s.ring.Budget(r.PathValue("id")); !exists {
		writeError(r.Context(), w, http.StatusNotFound, fmt.Errorf("node %q not found", r.PathValue("id")))
		return
	}
	s.applyNodeEvent(w, r, membership.Update)
}

func (s *Server) applyNodeEvent(w http.ResponseWriter, r *http.Request, eventType membership.EventType) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req nodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if req.AvailableResources == nil {
		writeError(ctx, w, http.StatusBadRequest, errors.New("available_resources is required"))
		return
	}

	event := membership.Event{Type: eventType, Node: id, AvailableResources: *req.AvailableResources}
	if err := s.members.Handle(ctx, event); err != nil {
		writeError(ctx, w, statusFor(err), err)
		return
	}

	avail, _ := s.ring.Budget(id)
	writeJSON(ctx, w, http.StatusOK, nodeResponse{Node: id, AvailableResources: avail})
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.members.Handle(ctx, membership.Event{Type: membership.Leave, Node: r.PathValue("id")}); err != nil {
		writeError(ctx, w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req distributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if req.ConsumedResources != nil && *req.ConsumedResources < 0 {
		writeError(ctx, w, http.StatusBadRequest, errors.New("consumed_resources must not be negative"))
		return
	}

	nodes := s.ring.Distribute(req.Entity, req.Replicas, req.ConsumedResources)

	mode := metrics.ModeLookup
	if req.ConsumedResources != nil {
		mode = metrics.ModePlace
	}
	requested := 0
	if req.Replicas != nil {
		requested = int(*req.Replicas)
	}
	metrics.ObservePlacement(mode, requested, len(nodes))

	clog.FromContext(ctx).With("entity", req.Entity, "mode", mode, "requested", requested, "nodes", nodes).Debug("distributed entity")
	writeJSON(ctx, w, http.StatusOK, distributeResponse{Entity: req.Entity, Nodes: nodes})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var events []membership.Event
	if err := decodeJSON(w, r, &events); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	if err := s.members.Handle(ctx, events...); err != nil {
		writeError(ctx, w, statusFor(err), err)
		return
	}
	s.handleListNodes(w, r)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ring.ErrHashCollision):
		return http.StatusConflict
	case errors.Is(err, ring.ErrEmptyNodeID),
		errors.Is(err, ring.ErrInvalidBudget),
		errors.Is(err, membership.ErrUnknownEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		clog.FromContext(ctx).Errorf("failed to write response: %v", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		clog.FromContext(ctx).Errorf("request failed: %v", err)
	}
	writeJSON(ctx, w, status, errorResponse{Error: err.Error()})
}
