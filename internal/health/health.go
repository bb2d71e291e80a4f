// Package health reports the serving status of the service and its backing
// stores over the gRPC health protocol and a plain HTTP endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Probe checks one dependency. A nil error means serving.
type Probe func(ctx context.Context) error

const probeTimeout = 2 * time.Second

type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	mu       sync.RWMutex
	services map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	probes   map[string]Probe
	watchers map[chan struct{}]struct{}
	logger   *zap.Logger
}

func NewHealthServer(logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{
		services: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
		probes:   make(map[string]Probe),
		watchers: make(map[chan struct{}]struct{}),
		logger:   logger,
	}
}

// AddProbe registers a dependency check. The service starts as UNKNOWN until
// the first check runs.
func (h *HealthServer) AddProbe(service string, probe Probe) {
	h.mu.Lock()
	h.probes[service] = probe
	h.mu.Unlock()
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_UNKNOWN)
}

// Check answers for one service. The empty service name is the overall status:
// serving only when every registered service is serving.
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	st, ok := h.status(req.GetService())
	if !ok {
		return nil, status.Error(codes.NotFound, "service not found")
	}
	return &grpc_health_v1.HealthCheckResponse{Status: st}, nil
}

// Watch streams the status of a service each time it changes.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	changed := make(chan struct{}, 1)
	h.mu.Lock()
	h.watchers[changed] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.watchers, changed)
		h.mu.Unlock()
	}()

	last := grpc_health_v1.HealthCheckResponse_ServingStatus(-1)
	for {
		st, ok := h.status(req.GetService())
		if !ok {
			st = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
		}
		if st != last {
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
				return err
			}
			last = st
		}

		select {
		case <-changed:
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (h *HealthServer) SetServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) SetNotServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Shutdown marks every service as not serving.
func (h *HealthServer) Shutdown() {
	h.mu.RLock()
	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	h.mu.RUnlock()
	for _, name := range names {
		h.SetNotServingStatus(name)
	}
}

// CheckNow runs every probe once.
func (h *HealthServer) CheckNow(ctx context.Context) {
	h.mu.RLock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.RUnlock()

	for name, probe := range probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe(pctx)
		cancel()
		if err != nil {
			h.logger.Warn("[HEALTH] probe failed", zap.String("service", name), zap.Error(err))
			h.SetNotServingStatus(name)
			continue
		}
		h.SetServingStatus(name)
	}
}

// Run checks the probes every interval until ctx is done.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	h.CheckNow(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckNow(ctx)
		}
	}
}

// ServeHTTP writes the status of every service as JSON; 503 when any of them
// is not serving.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	services := make(map[string]string, len(names))
	for _, name := range names {
		st, _ := h.status(name)
		services[name] = st.String()
	}
	overall, _ := h.status("")

	code := http.StatusOK
	if overall != grpc_health_v1.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   overall.String(),
		"services": services,
	})
}

func (h *HealthServer) status(service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if service == "" {
		for _, st := range h.services {
			if st != grpc_health_v1.HealthCheckResponse_SERVING {
				return grpc_health_v1.HealthCheckResponse_NOT_SERVING, true
			}
		}
		return grpc_health_v1.HealthCheckResponse_SERVING, true
	}

	st, ok := h.services[service]
	return st, ok
}

func (h *HealthServer) setStatus(service string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.services[service]; ok && prev == st {
		return
	}
	h.services[service] = st
	for ch := range h.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
