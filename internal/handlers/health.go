package handlers

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type ConnectionCounter interface {
	Count() int
}

type HealthHandler struct {
	db       Pinger
	sessions ConnectionCounter
}

func NewHealthHandler(db Pinger, sessions ConnectionCounter) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

// HealthCheck returns a simple JSON status
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	resp := map[string]interface{}{"status": status}
	if h.sessions != nil {
		resp["connections"] = h.sessions.Count()
	}
	writeJSON(w, code, resp)
}
