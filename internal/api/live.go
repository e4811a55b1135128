package api

import (
	"net/http"

	"github.com/foospulse/foospulse/internal/domain"
)

// createSessionResponse carries the one-time scorer secret next to the session
type createSessionResponse struct {
	*domain.LiveSession
	ScorerSecret string `json:"scorer_secret,omitempty"`
}

// handleCreateSession opens a live session in the path's league
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	var in domain.CreateSessionInput
	if !decodeBody(w, req, &in) {
		return
	}
	in.LeagueID = req.PathValue("league")

	sess, secret, err := r.live.Create(req.Context(), in, r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{LiveSession: sess, ScorerSecret: secret})
}

// handleListSessions lists the league's sessions that are still running
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	sessions, err := r.live.ListActive(req.Context(), req.PathValue("league"), r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if sessions == nil {
		sessions = []domain.LiveSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleGetSession returns the full session to league members
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	sess, err := r.live.GetByID(req.Context(), req.PathValue("id"), r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if sess.LeagueID != req.PathValue("league") {
		writeError(w, req, http.StatusNotFound, "not_found", "live session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (r *Router) handleDeleteSession(w http.ResponseWriter, req *http.Request) {
	if err := r.live.Delete(req.Context(), req.PathValue("id"), r.actor(req)); err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetLiveSession is the spectator view behind a share link
func (r *Router) handleGetLiveSession(w http.ResponseWriter, req *http.Request) {
	view, err := r.live.GetByShareToken(req.Context(), req.PathValue("token"), r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type recordEventResponse struct {
	Event *domain.SessionEvent `json:"event"`
	domain.ScoreUpdate
}

func (r *Router) handleRecordEvent(w http.ResponseWriter, req *http.Request) {
	var in domain.EventInput
	if !decodeBody(w, req, &in) {
		return
	}
	ev, score, err := r.live.RecordEvent(req.Context(), req.PathValue("token"), in, r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordEventResponse{Event: ev, ScoreUpdate: score})
}

func (r *Router) handleUndoEvent(w http.ResponseWriter, req *http.Request) {
	score, err := r.live.UndoEvent(req.Context(), req.PathValue("token"), req.PathValue("event"), r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (r *Router) handleSetScore(w http.ResponseWriter, req *http.Request) {
	var body domain.ScoreUpdate
	if !decodeBody(w, req, &body) {
		return
	}
	score, err := r.live.SetScore(req.Context(), req.PathValue("token"), body.ScoreA, body.ScoreB, r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (r *Router) handleChangeStatus(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Status domain.SessionStatus `json:"status"`
	}
	if !decodeBody(w, req, &body) {
		return
	}
	sess, err := r.live.ChangeStatus(req.Context(), req.PathValue("token"), body.Status, r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleFinalize turns the session into a match. The body must carry
// confirm=true.
func (r *Router) handleFinalize(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if !decodeBody(w, req, &body) {
		return
	}
	m, err := r.live.Finalize(req.Context(), req.PathValue("token"), body.Confirm, r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (r *Router) handleAbandon(w http.ResponseWriter, req *http.Request) {
	sess, err := r.live.Abandon(req.Context(), req.PathValue("token"), r.actor(req))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
