package health_service_api

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/tourbooking/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported through the gRPC health protocol.
const ServiceName = "tourbooking"

// Probe checks one backing dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server publishes dependency health over the standard gRPC health service.
type Server struct {
	health  *health.Server
	probes  []Probe
	timeout time.Duration
	log     logger.Logger

	mu   sync.RWMutex
	last map[string]string
}

func NewServer(log logger.Logger, probes ...Probe) *Server {
	s := &Server{
		health:  health.NewServer(),
		probes:  probes,
		timeout: 2 * time.Second,
		log:     log.With("component", "health"),
		last:    make(map[string]string),
	}
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) Register(grpcSrv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcSrv, s.health)
}

// Refresh runs every probe and updates the serving status. It reports
// whether all probes passed and the per-probe result.
func (s *Server) Refresh(ctx context.Context) (bool, map[string]string) {
	results := make(map[string]string, len(s.probes))
	healthy := true
	for _, p := range s.probes {
		checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := p.Check(checkCtx)
		cancel()
		if err != nil {
			healthy = false
			results[p.Name] = err.Error()
			s.log.Warn("dependency unhealthy", "dependency", p.Name, "error", err)
			continue
		}
		results[p.Name] = "ok"
	}

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)

	s.mu.Lock()
	s.last = results
	s.mu.Unlock()
	return healthy, results
}

// Last returns the result of the most recent refresh.
func (s *Server) Last() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}

// Watch refreshes on every tick until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
