package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/studentfund/studentfund/internal/api/middleware"
	"github.com/studentfund/studentfund/internal/api/response"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency whose reachability /health reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db       Pinger
	sessions Pinger
	version  string
}

// NewHealthHandler creates a new HealthHandler. Nil pingers are reported as disconnected.
func NewHealthHandler(db, sessions Pinger, version string) *HealthHandler {
	return &HealthHandler{
		db:       db,
		sessions: sessions,
		version:  version,
	}
}

type dependencyStatus struct {
	Connected bool `json:"connected"`
}

type healthData struct {
	Status       string           `json:"status"`
	Version      string           `json:"version"`
	Database     dependencyStatus `json:"database"`
	SessionStore dependencyStatus `json:"sessionStore"`
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	data := healthData{
		Status:       "healthy",
		Version:      h.version,
		Database:     dependencyStatus{Connected: ping(r.Context(), h.db)},
		SessionStore: dependencyStatus{Connected: ping(r.Context(), h.sessions)},
	}
	if !data.Database.Connected || !data.SessionStore.Connected {
		data.Status = "degraded"
	}

	response.Success(w, http.StatusOK, data, requestID)
}

func ping(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx) == nil
}
