package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   int64  `json:"uptime_seconds"`
	Timezone string `json:"timezone"`
	Facts    *int   `json:"facts,omitempty"`
	Jobs     *int   `json:"jobs,omitempty"`
	Backlog  *int   `json:"backlog,omitempty"`
}

// handleHealth reports store sizes for the enabled features.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.mu.Lock()
		started := g.startedAt
		g.mu.Unlock()

		resp := HealthResponse{
			Status: "ok",
			Uptime: int64(g.now().Sub(started).Truncate(time.Second).Seconds()),
		}
		if g.ops != nil {
			resp.Timezone = g.ops.Timezone().Name()
			if g.ops.MemoryEnabled() {
				n := g.ops.Memory().Len()
				resp.Facts = &n
			}
			if g.ops.SchedulingEnabled() {
				n := g.ops.Jobs().Len()
				resp.Jobs = &n
			}
			if g.ops.BacklogEnabled() {
				n := g.ops.Backlog().Len()
				resp.Backlog = &n
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
