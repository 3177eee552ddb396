package observability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

type HealthCheck func(context.Context) error

type HealthChecker struct {
	checks    map[string]HealthCheck
	logger    *zap.Logger
	startTime time.Time
	version   string
	mu        sync.RWMutex
}

func NewHealthChecker(logger *zap.Logger, version string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]HealthCheck),
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
}

func (h *HealthChecker) RegisterCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	resp := HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(checks)),
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}

	for name, check := range checks {
		start := time.Now()
		err := check(ctx)
		latency := time.Since(start)

		component := ComponentHealth{
			Status:  StatusHealthy,
			Latency: latency.String(),
		}

		if err != nil {
			component.Status = StatusUnhealthy
			component.Message = err.Error()
			resp.Status = StatusDegraded
			h.logger.Warn("health check failed",
				zap.String("component", name),
				zap.Error(err),
			)
		}

		resp.Components[name] = component
	}

	return resp
}
