// Package grpc exposes the standard gRPC health service for voiceloop, so
// orchestrators and health-check clients can check the pipeline, plus server
// reflection for grpcurl.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nadzzz/voiceloop/internal/transport"
)

// ServiceName is the health service name reported for the pipeline.
const ServiceName = "voiceloop.Pipeline"

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	health *health.Server

	mu     sync.Mutex
	server *grpc.Server
}

var _ transport.Transport = (*Transport)(nil)

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port, health: health.NewServer()}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context, p transport.Pipeline) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis, p)
}

// Serve runs the server on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, p transport.Pipeline) error {
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, t.health)
	reflection.Register(server)

	t.mu.Lock()
	t.server = server
	t.mu.Unlock()

	t.setServing(healthpb.HealthCheckResponse_SERVING)
	slog.Debug("grpc health serving", "service", ServiceName, "status", p.Snapshot().Status)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.setServing(healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
	}()

	if err := server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (t *Transport) setServing(status healthpb.HealthCheckResponse_ServingStatus) {
	t.health.SetServingStatus("", status)
	t.health.SetServingStatus(ServiceName, status)
}

// Close marks the service as not serving and stops the server.
func (t *Transport) Close() error {
	t.health.Shutdown()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
