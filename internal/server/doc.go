// Package server exposes a ring over HTTP and reports its readiness through
// the gRPC health protocol.
package server
