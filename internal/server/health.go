package server

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the grpc.health.v1 service name reported next to the
// overall "" status.
const HealthService = "rosca.Node"

// healthServer answers grpc.health.v1 checks on a listener of its own, for
// orchestrators that check liveness over gRPC.
type healthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

func newHealthServer(addr string) (*healthServer, error) {
	var lc net.ListenConfig
	lis, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)

	h := &healthServer{grpcServer: grpcServer, health: hs, listener: lis}
	h.set(false)
	return h, nil
}

func (h *healthServer) set(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
}

func (h *healthServer) serve() {
	if err := h.grpcServer.Serve(h.listener); err != nil {
		slog.Error("grpc health server stopped", "error", err)
	}
}

func (h *healthServer) stop(ctx context.Context) {
	h.health.Shutdown()

	done := make(chan struct{})
	go func() {
		h.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("grpc health stop timed out, forcing")
		h.grpcServer.Stop()
	}
}
