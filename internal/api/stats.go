package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foospulse/foospulse/internal/domain"
	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/logging"
)

// handleGetStats serves a cached stats payload. The source hash doubles as
// the ETag, so unchanged stats answer 304. A missing snapshot queues a
// recompute and answers 202.
func (r *Router) handleGetStats(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	leagueID := req.PathValue("league")
	kind := domain.StatsKind(req.PathValue("kind"))

	seasonID, err := r.parseSeason(req, leagueID)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}

	snap, err := r.stats.Snapshot(ctx, leagueID, seasonID, kind)
	if errors.Is(err, domain.ErrNotFound) {
		if err := r.relay.Enqueue(ctx, jobs.StatsRecompute(leagueID, seasonID)); err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		logging.Info(r.logFromRequest(req), "stats snapshot missing, recompute queued",
			logging.FieldLeagueID, leagueID, logging.FieldSeasonID, seasonID)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "computing"})
		return
	}
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}

	etag := `"` + snap.SourceHash + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=60")
	if etagMatches(req.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// etagMatches handles the comma separated list form of If-None-Match
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (r *Router) handleGetRatings(w http.ResponseWriter, req *http.Request) {
	mode, err := parseMode(req)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	ratings, err := r.ratings.CurrentRatings(req.Context(), req.PathValue("league"), mode)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if ratings == nil {
		ratings = []domain.PlayerRating{}
	}
	writeJSON(w, http.StatusOK, ratings)
}

// handlePredict estimates win probabilities for a pairing
func (r *Router) handlePredict(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Mode  domain.Mode `json:"mode"`
		TeamA []string    `json:"team_a"`
		TeamB []string    `json:"team_b"`
	}
	if !decodeBody(w, req, &body) {
		return
	}
	if body.Mode == "" {
		body.Mode = domain.Mode1v1
	}
	if !body.Mode.Valid() {
		r.writeDomainError(w, req, domain.NewValidationError("mode", "must be 1v1, 2v2 or 2v1"))
		return
	}
	p, err := r.ratings.Predict(req.Context(), req.PathValue("league"), body.Mode, body.TeamA, body.TeamB)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (r *Router) handleGetAchievements(w http.ResponseWriter, req *http.Request) {
	awards, err := r.stats.PlayerAchievements(req.Context(), req.PathValue("player"), req.PathValue("league"))
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if awards == nil {
		awards = []domain.Achievement{}
	}
	writeJSON(w, http.StatusOK, awards)
}

// handleGetRatingHistory returns a player's snapshots, oldest first, capped
// by limit from the most recent end
func (r *Router) handleGetRatingHistory(w http.ResponseWriter, req *http.Request) {
	mode, err := parseMode(req)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	history, err := r.store.PlayerRatingHistory(req.Context(), req.PathValue("player"), mode)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	if limit := parseLimit(req, 100, 1000); len(history) > limit {
		history = history[len(history)-limit:]
	}
	if history == nil {
		history = []domain.RatingSnapshot{}
	}
	writeJSON(w, http.StatusOK, history)
}
