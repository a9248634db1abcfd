package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"sharddist/internal/config"
	"sharddist/internal/membership"
	"sharddist/internal/metrics"
	"sharddist/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logger := clog.FromContext(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	r, err := cfg.BuildRing()
	if err != nil {
		logger.Fatalf("failed to build ring: %v", err)
	}
	logger.With(
		"nodes", r.Len(),
		"replicas", r.Replicas(),
		"hash", r.Hasher().Name(),
		"wrap_around", cfg.WrapAround,
	).Info("ring initialized")

	srv := server.New(r, membership.NewHandler(r))
	reporter := metrics.NewReporter(r, cfg.ReportInterval)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.ListenAndServe(egCtx, cfg.Port) })
	eg.Go(func() error { return srv.ListenAndServeGRPC(egCtx, cfg.GRPCPort) })
	eg.Go(func() error { return metrics.ServeMetrics(egCtx, cfg.MetricsPort) })
	eg.Go(func() error { return reporter.Run(egCtx) })

	if err := eg.Wait(); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
	logger.Info("shut down")
}
