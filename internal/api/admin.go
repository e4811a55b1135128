package api

import (
	"net/http"

	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
)

// handleRecomputeRatings queues a full rating rebuild for the league
func (r *Router) handleRecomputeRatings(w http.ResponseWriter, req *http.Request) {
	leagueID := req.PathValue("league")
	if _, err := r.store.GetLeague(req.Context(), leagueID); err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	r.enqueue(w, req, jobs.RatingRecompute(leagueID))
}

// handleRecomputeStats queues a stats rebuild for one season, the active
// one unless ?season= names another
func (r *Router) handleRecomputeStats(w http.ResponseWriter, req *http.Request) {
	leagueID := req.PathValue("league")
	seasonID, err := r.parseSeason(req, leagueID)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	r.enqueue(w, req, jobs.StatsRecompute(leagueID, seasonID))
}

func (r *Router) enqueue(w http.ResponseWriter, req *http.Request, entry storage.OutboxEntry) {
	if err := r.relay.Enqueue(req.Context(), entry); err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	logging.Info(r.logFromRequest(req), "job queued", logging.FieldJobID, entry.ID, logging.FieldJobKind, entry.Kind)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": entry.ID, "kind": entry.Kind})
}

// handleJobFailures lists dead-lettered jobs, newest first
func (r *Router) handleJobFailures(w http.ResponseWriter, req *http.Request) {
	failures, err := r.store.ListJobFailures(req.Context(), parseLimit(req, 50, 500))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if failures == nil {
		failures = []storage.JobFailure{}
	}
	writeJSON(w, http.StatusOK, failures)
}
