package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/foospulse/foospulse/internal/auth"
	"github.com/foospulse/foospulse/internal/domain"
)

// scorerSecretHeader carries the capability secret for anonymous scorers
const scorerSecretHeader = "X-Scorer-Secret"

// getAuthClaims extracts and validates JWT from Authorization header
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	token, ok := bearerToken(req)
	if !ok {
		return nil
	}
	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil
	}
	return claims
}

func bearerToken(req *http.Request) (string, bool) {
	authHeader := req.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(authHeader, "Bearer "), true
}

// actor builds the request's identity from a user token and the scorer
// secret header. Operator tokens carry no user and yield an anonymous actor.
func (r *Router) actor(req *http.Request) domain.Actor {
	a := domain.Actor{ScorerSecret: req.Header.Get(scorerSecretHeader)}
	if claims := r.getAuthClaims(req); claims != nil && claims.UserID != "" {
		a.UserID = claims.UserID
		a.Admin = claims.IsAdmin
	}
	return a
}

// requireAuth is middleware that validates a user JWT before calling the handler
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.actor(req).Anonymous() {
			writeError(w, req, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next(w, req)
	}
}

// requireMember is requireAuth plus an active membership in the path's league
func (r *Router) requireMember(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		ok, err := r.isMember(req, req.PathValue("league"))
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		if !ok {
			writeError(w, req, http.StatusForbidden, "forbidden", "not a member of this league")
			return
		}
		next(w, req)
	})
}

// isMember reports whether the caller may read the league's data.
// Global admins read every league.
func (r *Router) isMember(req *http.Request, leagueID string) (bool, error) {
	a := r.actor(req)
	if a.Admin {
		return true, nil
	}
	if a.UserID == "" {
		return false, nil
	}
	return r.store.IsActiveMember(req.Context(), leagueID, a.UserID)
}

// requireScope admits operator tokens that carry scope
func (r *Router) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		token, ok := bearerToken(req)
		if !ok {
			writeError(w, req, http.StatusUnauthorized, "unauthorized", "operator token required")
			return
		}
		claims, err := r.auth.RequireScope(token, scope)
		switch {
		case errors.Is(err, auth.ErrMissingScope):
			writeError(w, req, http.StatusForbidden, "forbidden", "token lacks scope "+scope)
			return
		case err != nil:
			writeError(w, req, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		r.logFromRequest(req).Info("operator request", "subject", claims.Subject, "scope", scope)
		next(w, req)
	}
}

// hasScope reports whether the request carries an operator token with scope.
func (r *Router) hasScope(req *http.Request, scope string) bool {
	token, ok := bearerToken(req)
	if !ok {
		return false
	}
	_, err := r.auth.RequireScope(token, scope)
	return err == nil
}
