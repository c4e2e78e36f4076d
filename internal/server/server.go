package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gezibash/arc-rosca/internal/observability"
)

// Options tune the HTTP API.
type Options struct {
	// RateLimit is the sustained requests per second allowed per client
	// host. Zero disables throttling.
	RateLimit float64
	Burst     int
	// HealthAddr, when set, serves grpc.health.v1 on a second listener.
	HealthAddr string
}

type Server struct {
	httpServer *http.Server
	listener   net.Listener
	handler    *Handler
	health     *healthServer
}

func New(addr string, obs *observability.Observability, svc Service, opts Options) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if obs != nil {
		metrics = obs.Metrics
	}

	var hs *healthServer
	if opts.HealthAddr != "" {
		if hs, err = newHealthServer(opts.HealthAddr); err != nil {
			_ = lis.Close()
			return nil, err
		}
	}

	h := NewHandler(svc, metrics, opts)
	h.SetServing(false)

	return &Server{
		httpServer: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: lis,
		handler:  h,
		health:   hs,
	}, nil
}

// SetServing flips both health endpoints between ok and unavailable.
func (s *Server) SetServing(serving bool) {
	s.handler.SetServing(serving)
	if s.health != nil {
		s.health.set(serving)
	}
}

// Serve blocks on the HTTP API. The gRPC health listener, if any, runs
// alongside it.
func (s *Server) Serve() error {
	if s.health != nil {
		go s.health.serve()
	}
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// HealthAddr returns the gRPC health address, or "" when it is disabled.
func (s *Server) HealthAddr() string {
	if s.health == nil {
		return ""
	}
	return s.health.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) {
	s.SetServing(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Warn("graceful stop timed out, forcing", "error", err)
		_ = s.httpServer.Close()
	}
	if s.health != nil {
		s.health.stop(ctx)
	}
}
