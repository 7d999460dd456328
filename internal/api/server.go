// Package api wires the HTTP routes of the tournament server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knightclub/tournament-app/pkg/auth"
	"github.com/knightclub/tournament-app/pkg/cache"
	"github.com/knightclub/tournament-app/pkg/client"
	"github.com/knightclub/tournament-app/pkg/ratelimit"
	"github.com/knightclub/tournament-app/pkg/store"
)

const (
	// DefaultCalendarLimit is used when the limit query parameter is absent.
	DefaultCalendarLimit = 20

	// MaxCalendarLimit caps the limit query parameter.
	MaxCalendarLimit = 100

	// DefaultPageLimit and MaxPageLimit bound leaderboard and user search pages.
	DefaultPageLimit = 50
	MaxPageLimit     = 200

	// MinSearchQuery is the shortest accepted user search query.
	MinSearchQuery = 2
)

// CalendarClient is the part of client.Client the routes use.
type CalendarClient interface {
	Fetch(ctx context.Context, limit int) (client.Result, error)
	Metrics() *cache.Metrics
}

// TournamentStore is the part of store.Store the routes use.
type TournamentStore interface {
	GetTournament(ctx context.Context, id int64) (*store.Tournament, error)
	FinalizeTournament(ctx context.Context, id int64) (*store.Tournament, error)
	ListLeaderboard(ctx context.Context, tournamentID int64, limit int) ([]store.LeaderboardEntry, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]store.User, error)
	Ping(ctx context.Context) error
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the server's collaborators. Only Calendar is required.
type Deps struct {
	Calendar CalendarClient

	// Store backs the tournament and user routes. Nil answers 503.
	Store TournamentStore

	// Auth guards admin routes. Nil answers 503 on them.
	Auth *auth.Authenticator

	// Webhook receives Telegram updates. Nil leaves the route unregistered.
	Webhook http.Handler

	// Limiter throttles /api routes per client. Nil disables limiting.
	Limiter ratelimit.Limiter

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	// Checks are pinged by /ready in addition to Store.
	Checks map[string]Pinger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server holds the route handlers.
type Server struct {
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a Server.
func New(deps Deps) *Server {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		deps:   deps,
		now:    now,
		logger: log.With().Str("component", "api").Logger(),
	}
}

// Router builds the route table with its middleware chain.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.accessLogMiddleware, metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	if s.deps.Webhook != nil {
		r.Handle("/telegram/webhook", s.deps.Webhook).Methods(http.MethodPost)
	}

	api := r.PathPrefix("/api").Subrouter()
	if s.deps.Auth != nil {
		api.Use(s.identifyMiddleware)
	}
	if s.deps.Limiter != nil {
		api.Use(ratelimit.Middleware(s.deps.Limiter, rateLimitKey, s.logger))
	}

	api.HandleFunc("/tournaments/calendar", s.handleCalendar).Methods(http.MethodGet)
	api.HandleFunc("/tournaments/{id:[0-9]+}", s.handleGetTournament).Methods(http.MethodGet)
	api.Handle("/tournaments/{id:[0-9]+}/finalize", s.adminOnly(http.HandlerFunc(s.handleFinalize))).Methods(http.MethodPost)
	api.HandleFunc("/tournaments/{id:[0-9]+}/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	api.Handle("/users/search", s.adminOnly(http.HandlerFunc(s.handleSearchUsers))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	if s.deps.Auth == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "admin authentication is not configured")
		})
	}
	return s.deps.Auth.AdminOnly(next)
}

// identifyMiddleware attaches the Telegram user when the request carries
// valid initData. Anonymous requests pass through unchanged.
func (s *Server) identifyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			if user, err := s.deps.Auth.Authenticate(r); err == nil {
				r = r.WithContext(auth.WithUser(r.Context(), user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitKey scopes limits to the Telegram user when initData parses,
// falling back to the client IP.
func rateLimitKey(r *http.Request) string {
	if user := auth.UserFromContext(r.Context()); user != nil {
		return "user:" + formatID(user.ID)
	}
	return ratelimit.ClientIP(r)
}
