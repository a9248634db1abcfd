package server

import (
	"context"
	"fmt"
	"net"

	"github.com/chainguard-dev/clog"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServeGRPC serves the health service on lis until ctx is done, then stops
// gracefully.
func (s *Server) ServeGRPC(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, s.health)

	// Enable gRPC reflection for grpcurl
	reflection.Register(grpcServer)

	go func() {
		<-ctx.Done()
		clog.FromContext(ctx).Info("stopping gRPC server")
		s.health.Shutdown()
		grpcServer.GracefulStop()
	}()

	clog.FromContext(ctx).With("addr", lis.Addr().String()).Info("serving gRPC health")
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// ListenAndServeGRPC listens on port and calls ServeGRPC.
func (s *Server) ListenAndServeGRPC(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", port, err)
	}
	return s.ServeGRPC(ctx, lis)
}
