package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foospulse/foospulse/internal/auth"
	"github.com/foospulse/foospulse/internal/broadcast"
	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/live"
	"github.com/foospulse/foospulse/internal/metrics"
	"github.com/foospulse/foospulse/internal/rating"
	"github.com/foospulse/foospulse/internal/stats"
	"github.com/foospulse/foospulse/internal/storage"
)

// Deps are the services the HTTP surface is built on
type Deps struct {
	Store     *storage.Store
	Live      *live.Engine
	Ratings   *rating.Engine
	Stats     *stats.Engine
	Relay     *jobs.Relay
	Hub       *broadcast.Hub
	Auth      *auth.Service
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	StaticDir string

	// PingInterval is how often websocket connections are pinged
	PingInterval time.Duration
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux          *http.ServeMux
	store        *storage.Store
	live         *live.Engine
	ratings      *rating.Engine
	stats        *stats.Engine
	relay        *jobs.Relay
	hub          *broadcast.Hub
	auth         *auth.Service
	logger       *slog.Logger
	metrics      *metrics.Recorder
	staticDir    string
	pingInterval time.Duration
}

// NewRouter creates a new HTTP router
func NewRouter(d Deps) *Router {
	if d.PingInterval <= 0 {
		d.PingInterval = 30 * time.Second
	}
	r := &Router{
		mux:          http.NewServeMux(),
		store:        d.Store,
		live:         d.Live,
		ratings:      d.Ratings,
		stats:        d.Stats,
		relay:        d.Relay,
		hub:          d.Hub,
		auth:         d.Auth,
		logger:       d.Logger,
		metrics:      d.Metrics,
		staticDir:    d.StaticDir,
		pingInterval: d.PingInterval,
	}

	// Public live session routes, addressed by share token
	r.mux.HandleFunc("GET /api/live/{token}", r.handleGetLiveSession)
	r.mux.HandleFunc("GET /api/live/{token}/ws", r.handleLiveWebSocket)
	r.mux.HandleFunc("GET /api/live/{token}/stream", r.handleLiveStream)
	r.mux.HandleFunc("POST /api/live/{token}/events", r.handleRecordEvent)
	r.mux.HandleFunc("POST /api/live/{token}/events/{event}/undo", r.handleUndoEvent)
	r.mux.HandleFunc("POST /api/live/{token}/score", r.handleSetScore)
	r.mux.HandleFunc("POST /api/live/{token}/status", r.handleChangeStatus)
	r.mux.HandleFunc("POST /api/live/{token}/finalize", r.handleFinalize)
	r.mux.HandleFunc("DELETE /api/live/{token}", r.handleAbandon)

	// League routes (authenticated members)
	r.mux.HandleFunc("POST /api/leagues/{league}/live-sessions", r.requireAuth(r.handleCreateSession))
	r.mux.HandleFunc("GET /api/leagues/{league}/live-sessions", r.requireAuth(r.handleListSessions))
	r.mux.HandleFunc("GET /api/leagues/{league}/live-sessions/{id}", r.requireAuth(r.handleGetSession))
	r.mux.HandleFunc("DELETE /api/leagues/{league}/live-sessions/{id}", r.requireAuth(r.handleDeleteSession))

	r.mux.HandleFunc("GET /api/leagues/{league}/stats/{kind}", r.requireMember(r.handleGetStats))
	r.mux.HandleFunc("GET /api/leagues/{league}/ratings", r.requireMember(r.handleGetRatings))
	r.mux.HandleFunc("POST /api/leagues/{league}/ratings/predict", r.requireMember(r.handlePredict))
	r.mux.HandleFunc("GET /api/leagues/{league}/players/{player}/achievements", r.requireMember(r.handleGetAchievements))
	r.mux.HandleFunc("GET /api/leagues/{league}/players/{player}/ratings", r.requireMember(r.handleGetRatingHistory))

	r.mux.HandleFunc("GET /api/matches/{id}", r.requireAuth(r.handleGetMatch))
	r.mux.HandleFunc("GET /api/matches/{id}/timeline", r.requireAuth(r.handleGetTimeline))
	r.mux.HandleFunc("POST /api/matches/{id}/void", r.handleVoidMatch)

	// Operator routes, scoped JWTs only
	r.mux.HandleFunc("POST /api/admin/leagues/{league}/ratings/recompute", r.requireScope(auth.ScopeRatingsRecompute, r.handleRecomputeRatings))
	r.mux.HandleFunc("POST /api/admin/leagues/{league}/stats/recompute", r.requireScope(auth.ScopeStatsRecompute, r.handleRecomputeStats))
	r.mux.HandleFunc("GET /api/admin/jobs/failures", r.requireScope(auth.ScopeJobsRead, r.handleJobFailures))

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if r.staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	return r
}

// Handler returns the router wrapped with request logging and metrics.
func (r *Router) Handler() http.Handler {
	return LoggingMiddleware(r.logger, r.metrics, r)
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Scorer-Secret, If-None-Match")
	w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// handleStatic serves static files from the configured directory
// For SPA support, serves index.html for any path that doesn't match a file
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Clean(req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}
	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		fullPath = filepath.Join(r.staticDir, "index.html")
		if _, err = os.Stat(fullPath); err != nil {
			http.NotFound(w, req)
			return
		}
	}
	http.ServeFile(w, req, fullPath)
}
