package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/foospulse/foospulse/internal/auth"
	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/storage"
)

// ErrorBody is the error envelope every failed request answers with
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, req *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message, RequestID: requestID(req.Context())}})
}

// writeDomainError maps the domain error taxonomy onto status codes.
func (r *Router) writeDomainError(w http.ResponseWriter, req *http.Request, err error) {
	detail := ErrorDetail{Message: err.Error(), RequestID: requestID(req.Context())}
	status := http.StatusInternalServerError

	var verr *domain.ValidationError
	var cerr *domain.ConflictError
	switch {
	case errors.As(err, &verr):
		status, detail.Code, detail.Details = http.StatusBadRequest, "validation_error", verr.Fields
	case errors.As(err, &cerr):
		status, detail.Code = http.StatusConflict, cerr.Reason
	case errors.Is(err, domain.ErrValidation):
		status, detail.Code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrConflict):
		status, detail.Code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrForbidden):
		status, detail.Code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, detail.Code = http.StatusNotFound, "not_found"
	default:
		logging.Error(r.logFromRequest(req), "request failed", err)
		detail.Code, detail.Message = "internal_error", "internal server error"
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

func (r *Router) logFromRequest(req *http.Request) *slog.Logger {
	return logging.FromContext(req.Context(), r.logger)
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, 1<<20)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeError(w, req, http.StatusBadRequest, "validation_error", "invalid request body")
		return false
	}
	return true
}

// handleHealth reports whether the database answers
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetMatch returns a single match
func (r *Router) handleGetMatch(w http.ResponseWriter, req *http.Request) {
	m, ok := r.memberMatch(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleGetTimeline returns the live events behind a finalized match
func (r *Router) handleGetTimeline(w http.ResponseWriter, req *http.Request) {
	m, ok := r.memberMatch(w, req)
	if !ok {
		return
	}
	tl, err := r.live.Timeline(req.Context(), m.ID)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// memberMatch loads the {id} match for a member of its league. Other
// callers get the same 404 as for an unknown id.
func (r *Router) memberMatch(w http.ResponseWriter, req *http.Request) (*domain.Match, bool) {
	m, err := r.store.GetMatch(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeDomainError(w, req, err)
		return nil, false
	}
	ok, err := r.isMember(req, m.LeagueID)
	if err != nil {
		r.writeDomainError(w, req, err)
		return nil, false
	}
	if !ok {
		writeError(w, req, http.StatusNotFound, "not_found", "match not found")
		return nil, false
	}
	return m, true
}

// handleVoidMatch voids a match and queues the rebuilds it requires. League
// admins and operator tokens with matches:void may do this.
func (r *Router) handleVoidMatch(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, req, &body) {
		return
	}
	if body.Reason == "" {
		r.writeDomainError(w, req, domain.NewValidationError("reason", "required"))
		return
	}

	m, err := r.store.GetMatch(ctx, req.PathValue("id"))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if !r.canVoid(req, m.LeagueID) {
		writeError(w, req, http.StatusForbidden, "forbidden", "league admin or matches:void scope required")
		return
	}

	entries := []storage.OutboxEntry{jobs.RatingRecompute(m.LeagueID), jobs.StatsRecompute(m.LeagueID, m.SeasonID)}
	if err := r.store.VoidMatch(ctx, m.ID, body.Reason, entries); err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	r.relay.Kick(ctx)

	r.logFromRequest(req).Info("match voided", logging.FieldMatchID, m.ID, logging.FieldLeagueID, m.LeagueID)
	writeJSON(w, http.StatusOK, map[string]any{"match_id": m.ID, "status": domain.MatchVoid})
}

func (r *Router) canVoid(req *http.Request, leagueID string) bool {
	if r.hasScope(req, auth.ScopeMatchesVoid) {
		return true
	}
	a := r.actor(req)
	if a.Admin {
		return true
	}
	if a.Anonymous() {
		return false
	}
	ok, err := r.store.IsLeagueAdmin(req.Context(), leagueID, a.UserID)
	return err == nil && ok
}
