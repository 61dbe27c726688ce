package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"notegate/internal/bindings"
)

// HealthService reports liveness and readiness for the relay.
type HealthService struct {
	store   bindings.FastReader
	version string
	started time.Time
	logger  *slog.Logger
}

// HealthStatus is the health endpoint response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessStatus is the readiness endpoint response.
type ReadinessStatus struct {
	Ready bool   `json:"ready"`
	Store string `json:"store"`
}

// VersionInfo is the version endpoint response.
type VersionInfo struct {
	Version string `json:"version"`
}

// NewHealthService creates a health service. store probes the binding store
// over the cheap read-only mirror path.
func NewHealthService(store bindings.FastReader, version string, logger *slog.Logger) *HealthService {
	return &HealthService{
		store:   store,
		version: version,
		started: time.Now(),
		logger:  logger.With(slog.String("service", "health")),
	}
}

// HealthCheck reports process liveness.
func (s *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Version:   s.version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// ReadinessCheck probes the binding store with a short deadline.
func (s *HealthService) ReadinessCheck(ctx context.Context) ReadinessStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.store.ReadFast(ctx)
	if err != nil && !errors.Is(err, bindings.ErrStoreNotFound) {
		s.logger.WarnContext(ctx, "readiness probe failed",
			slog.String("error", err.Error()))
		return ReadinessStatus{Ready: false, Store: "unreachable"}
	}
	// A missing file still means the mirror answered; the store is
	// created on first key issuance.
	return ReadinessStatus{Ready: true, Store: "reachable"}
}

// Version returns build version information.
func (s *HealthService) Version() VersionInfo {
	return VersionInfo{Version: s.version}
}
