// Package health exposes liveness and readiness for the jarvis processes.
//
// The HTTP server answers /healthz and /readyz; the optional gRPC server
// implements grpc.health.v1 so orchestrators that probe over gRPC see the
// same readiness flag.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server reports the readiness of one service.
type Server struct {
	port     int
	grpcPort int
	service  string
	ready    atomic.Bool

	mu   sync.Mutex
	grpc *grpchealth.Server
}

// New creates a health server. A zero grpcPort disables the gRPC endpoint.
// service names the component in gRPC status queries.
func New(port, grpcPort int, service string) *Server {
	return &Server{port: port, grpcPort: grpcPort, service: service}
}

// SetReady marks the process as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grpc != nil {
		s.setServing(ready)
	}
}

// Ready reports the current readiness.
func (s *Server) Ready() bool { return s.ready.Load() }

// Handler returns the HTTP probe routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	probe := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
	mux.HandleFunc("GET /healthz", probe)
	mux.HandleFunc("GET /readyz", probe)
	return mux
}

// ListenAndServe starts the HTTP health server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// ServeGRPC starts the gRPC health service on the configured port.
// It returns immediately when the port is zero.
func (s *Server) ServeGRPC(ctx context.Context) error {
	if s.grpcPort == 0 {
		return nil
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return s.serveGRPC(ctx, lis)
}

func (s *Server) serveGRPC(ctx context.Context, lis net.Listener) error {
	hs := grpchealth.NewServer()
	s.mu.Lock()
	s.grpc = hs
	s.setServing(s.ready.Load())
	s.mu.Unlock()

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	slog.Info("grpc health server listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health serve: %w", err)
	}
	return nil
}

// setServing requires s.mu.
func (s *Server) setServing(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpc.SetServingStatus("", status)
	s.grpc.SetServingStatus(s.service, status)
}
