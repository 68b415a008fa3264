// Package grpcapi serves the auth lookups and the standard health service
// over gRPC, gated by the route guard.
package grpcapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"lawdesk.org/internal/guard"
	"lawdesk.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Server bundles the gRPC server with its health state.
type Server struct {
	grpc      *grpc.Server
	health    *health.Server
	readiness readinessChecker
}

// NewServer builds a server whose unary calls pass through the guard
// interceptor with policy.
func NewServer(r readinessChecker, authSrv *AuthServer, g *guard.Guard, policy Policy, source SourceFunc) *Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor,
		GuardInterceptor(g, policy, source),
	))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if authSrv != nil {
		registerAuthService(gs, authSrv)
	}
	s := &Server{grpc: gs, health: hs, readiness: r}
	s.RefreshHealth(context.Background())
	return s
}

// RefreshHealth sets SERVING or NOT_SERVING from the readiness check.
func (s *Server) RefreshHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			obs.Warn("grpc readiness check failed", map[string]any{"error": err})
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(AuthServiceName, st)
}

func (s *Server) Serve(lis net.Listener) error { return s.grpc.Serve(lis) }

// Stop drains in-flight calls and marks the service as not serving.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := map[string]any{
		"method":      info.FullMethod,
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		fields["error"] = err
	}
	obs.Info("grpc_call", fields)
	return resp, err
}
