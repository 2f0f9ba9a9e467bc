// Package health exposes the standard gRPC health-checking protocol
// (grpc.health.v1.Health) alongside the Gin HTTP surface, so orchestrators
// that expect a gRPC liveness/readiness probe (the same kind of sidecar the
// teacher's own `pkg/agent/llm_grpc.go` dials into) have one to call even
// though this service's primary API is HTTP.
package health

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps a running gRPC health server and the handle used to flip its
// serving status as the Process Supervisor's own dependencies come up or
// down (database connectivity, LLM gateway reachability).
type Server struct {
	grpcServer *grpc.Server
	healthSrv  *health.Server
	listener   net.Listener
}

// Serve starts listening on addr (e.g. "127.0.0.1:9090") and serves the
// gRPC health protocol in a background goroutine. The overall service
// starts in NOT_SERVING until SetServing(true) is called once startup
// (database migration, LLM gateway construction) completes.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for grpc health server: %w", err)
	}

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	s := &Server{grpcServer: grpcServer, healthSrv: healthSrv, listener: ln}

	go grpcServer.Serve(ln) //nolint:errcheck

	return s, nil
}

// SetServing flips the overall service's reported health (the empty service
// name). The named "database" and "llm_gateway" checks are not changed
// here; they are set separately through SetComponentServing.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthSrv.SetServingStatus("", status)
}

// SetComponentServing reports the health of one named dependency
// (e.g. "database", "llm_gateway") independently of the overall status.
func (s *Server) SetComponentServing(component string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthSrv.SetServingStatus(component, status)
}

// Addr returns the address the health server is listening on.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Stop gracefully shuts the gRPC health server down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
