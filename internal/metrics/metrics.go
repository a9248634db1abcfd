package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// ModeLookup labels placements made without a resource charge.
	ModeLookup = "lookup"
	// ModePlace labels placements that charged node budgets.
	ModePlace = "place"
)

var (
	availableResources = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sharddist_node_available_resources",
			Help: "The available resources advertised by each node, net of placements.",
		},
		[]string{"node"},
	)
	ringNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharddist_ring_nodes",
			Help: "The number of physical nodes on the ring.",
		},
	)
	ringVNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharddist_ring_vnodes",
			Help: "The number of virtual node positions on the ring.",
		},
	)
	placements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharddist_placements_total",
			Help: "The number of distribute requests by mode.",
		},
		[]string{"mode"},
	)
	shortfalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharddist_placement_shortfalls_total",
			Help: "The number of distribute requests that found fewer nodes than requested.",
		},
		[]string{"mode"},
	)
	placedReplicas = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharddist_placement_replicas",
			Help:    "A histogram of the number of nodes returned per distribute request.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"mode"},
	)
	membershipEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharddist_membership_events_total",
			Help: "The number of membership events applied, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)
)

// ObservePlacement records one distribute request.
func ObservePlacement(mode string, requested, placed int) {
	placements.WithLabelValues(mode).Inc()
	placedReplicas.WithLabelValues(mode).Observe(float64(placed))
	if placed < requested {
		shortfalls.WithLabelValues(mode).Inc()
	}
}

// ObserveEvent records one membership event.
func ObserveEvent(eventType string, err error) {
	outcome := "applied"
	if err != nil {
		outcome = "rejected"
	}
	membershipEvents.WithLabelValues(eventType, outcome).Inc()
}

// ServeMetrics serves /metrics on port until ctx is done.
func ServeMetrics(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.FromContext(ctx).Errorf("failed to shut down metrics server: %v", err)
		}
	}()

	clog.FromContext(ctx).With("port", port).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve for http /metrics: %w", err)
	}
	return nil
}
