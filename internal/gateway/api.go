package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/memory"
)

// FactsResponse is the JSON response for GET /api/facts.
type FactsResponse struct {
	Facts []memory.Fact `json:"facts"`
	Max   int           `json:"max"`
}

// JobsResponse is the JSON response for GET /api/jobs.
type JobsResponse struct {
	Jobs     []cron.CronJob `json:"jobs"`
	Timezone string         `json:"timezone"`
}

// TestJobResponse is the JSON response for POST /api/jobs/{index}/test.
type TestJobResponse struct {
	Reply      string `json:"reply"`
	Suppressed bool   `json:"suppressed"`
}

func (g *Gateway) handleListFacts() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.ops == nil || !g.ops.MemoryEnabled() {
			writeError(w, http.StatusNotFound, "memory is disabled")
			return
		}
		store := g.ops.Memory()
		facts := store.List()
		if facts == nil {
			facts = []memory.Fact{}
		}
		writeJSON(w, http.StatusOK, FactsResponse{Facts: facts, Max: store.Max()})
	}
}

func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.ops == nil || !g.ops.SchedulingEnabled() {
			writeError(w, http.StatusNotFound, "scheduling is disabled")
			return
		}
		jobs := g.ops.Jobs().List()
		if jobs == nil {
			jobs = []cron.CronJob{}
		}
		writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Timezone: g.ops.Timezone().Name()})
	}
}

// handleTestJob runs the job at the 1-based index now. The request blocks
// for the whole turn.
func (g *Gateway) handleTestJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.tester == nil {
			writeError(w, http.StatusNotFound, "scheduling is disabled")
			return
		}
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil || index < 1 {
			writeError(w, http.StatusBadRequest, "index must be a positive integer")
			return
		}

		out, err := g.tester.TestFire(r.Context(), index)
		switch {
		case errors.Is(err, cron.ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case err != nil:
			g.logger.Warn("gateway: job test failed", "index", index, "error", err)
			writeJSON(w, http.StatusBadGateway, TestJobResponse{Reply: out.Text})
			return
		}
		writeJSON(w, http.StatusOK, TestJobResponse{Reply: out.Text, Suppressed: out.Suppress})
	}
}
