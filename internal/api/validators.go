package api

import (
	"net/http"
	"strconv"

	"github.com/foospulse/foospulse/internal/domain"
)

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// parseMode reads the mode query parameter, defaulting to 1v1
func parseMode(r *http.Request) (domain.Mode, error) {
	m := r.URL.Query().Get("mode")
	if m == "" {
		return domain.Mode1v1, nil
	}
	mode := domain.Mode(m)
	if !mode.Valid() {
		return "", domain.NewValidationError("mode", "must be 1v1, 2v2 or 2v1")
	}
	return mode, nil
}

// parseSeason reads the season query parameter, falling back to the
// league's active season
func (r *Router) parseSeason(req *http.Request, leagueID string) (string, error) {
	if s := req.URL.Query().Get("season"); s != "" {
		season, err := r.store.GetSeason(req.Context(), s)
		if err != nil {
			return "", err
		}
		if season.LeagueID != leagueID {
			return "", domain.NewValidationError("season", "season not found in league")
		}
		return season.ID, nil
	}
	season, err := r.store.ActiveSeason(req.Context(), leagueID)
	if err != nil {
		return "", err
	}
	return season.ID, nil
}
