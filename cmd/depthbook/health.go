package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/depthbook/internal/metrics"
	"github.com/rickgao/depthbook/internal/session"
)

// sessionStatus is the part of a session the health handler reports.
type sessionStatus interface {
	State() session.State
	Stats() session.Stats
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
// db may be nil when the recorder is disabled.
func createHealthHandler(sess sessionStatus, gatherer prometheus.Gatherer, metricsPath string, db pinger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, metrics.Handler(gatherer))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		state := sess.State()
		stats := sess.Stats()
		health.Components["session"] = map[string]any{
			"state":            state.String(),
			"frames_received":  stats.FramesReceived,
			"messages_applied": stats.MessagesApplied,
			"parse_errors":     stats.ParseErrors,
		}
		if state != session.StateStreaming {
			health.Status = "unhealthy"
		}

		// Check database
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
