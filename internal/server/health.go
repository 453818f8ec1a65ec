package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Yates-Labs/lectern/internal/rag"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the response from health endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

type healthRegistry struct {
	mu     sync.RWMutex
	checks map[string]HealthChecker
	live   bool
}

func newHealthRegistry() *healthRegistry {
	return &healthRegistry{checks: make(map[string]HealthChecker), live: true}
}

// IndexHealthChecker reports healthy when an index is loaded and degraded
// when none has been built yet. Questions are still answered while degraded.
func IndexHealthChecker(index IndexController) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		snap, err := index.Load(ctx)
		if err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "Index load failed: " + err.Error(),
			}
		}
		if snap == nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "Index not built; answering without transcripts",
			}
		}
		m := snap.Manifest()
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "Index loaded",
			Details: map[string]string{
				"engine":          m.Engine,
				"embedding_model": m.EmbeddingModel,
				"chunks":          strconv.Itoa(m.ChunkCount),
				"videos":          strconv.Itoa(m.VideoCount),
				"built_at":        m.BuiltAt.UTC().Format(time.RFC3339),
			},
		}
	}
}

// RegisterCheck adds a health check.
func (s *Server) RegisterCheck(name string, checker HealthChecker) {
	s.health.mu.Lock()
	defer s.health.mu.Unlock()
	s.health.checks[name] = checker
}

// SetLive marks the server as live (or not).
func (s *Server) SetLive(live bool) {
	s.health.mu.Lock()
	defer s.health.mu.Unlock()
	s.health.live = live
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.health.mu.RLock()
	names := make([]string, 0, len(s.health.checks))
	checks := make(map[string]HealthChecker, len(s.health.checks))
	for k, v := range s.health.checks {
		names = append(names, k)
		checks[k] = v
	}
	s.health.mu.RUnlock()
	sort.Strings(names)

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.config.Version,
		Checks:    make([]HealthCheck, 0, len(names)),
	}

	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy {
			response.Status = HealthStatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, response)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.health.mu.RLock()
	live := s.health.live
	s.health.mu.RUnlock()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
	}
	if !live {
		response.Status = HealthStatusUnhealthy
		s.writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	s.writeJSON(w, http.StatusOK, response)
}

var _ IndexController = (*rag.Index)(nil)
