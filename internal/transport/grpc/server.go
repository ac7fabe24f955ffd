package grpcx

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the health service besides the overall "" entry.
const ServiceName = "presence.v1.PresenceService"

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

func NewServer() *grpc.Server {
	return grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
}

type Health struct {
	srv    *health.Server
	checks map[string]Check
}

// RegisterHealth installs grpc.health.v1 on s. Status starts NOT_SERVING until the first Watch pass.
func RegisterHealth(s *grpc.Server, checks map[string]Check) *Health {
	h := &Health{srv: health.NewServer(), checks: checks}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h.srv)

	return h
}

// Watch re-runs the checks every period until ctx is done.
func (h *Health) Watch(ctx context.Context, period time.Duration) {
	h.CheckOnce(ctx)

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.CheckOnce(ctx)
		}
	}
}

func (h *Health) CheckOnce(ctx context.Context) bool {
	ok := true
	for name, check := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		if err != nil {
			ok = false
			slog.Warn("health check failed", "check", name, "err", err)
		}
	}
	if ok {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return ok
}

// Shutdown flips everything to NOT_SERVING so balancers drain before GracefulStop.
func (h *Health) Shutdown() { h.srv.Shutdown() }

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
}
