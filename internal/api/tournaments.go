package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/knightclub/tournament-app/pkg/auth"
	"github.com/knightclub/tournament-app/pkg/logging"
	"github.com/knightclub/tournament-app/pkg/store"
)

// storeOrUnavailable returns the store, writing 503 when none is configured.
func (s *Server) storeOrUnavailable(w http.ResponseWriter) (TournamentStore, bool) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "database is not configured")
		return nil, false
	}
	return s.deps.Store, true
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeOrUnavailable(w)
	if !ok {
		return
	}
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := st.GetTournament(r.Context(), id)
	if err != nil {
		writeStoreError(w, *logging.FromContext(r.Context()), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleFinalize locks in the standings of a tournament. Admin only.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeOrUnavailable(w)
	if !ok {
		return
	}
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := logging.FromContext(r.Context()).With().Int64("tournament_id", id).Logger()
	if user := auth.UserFromContext(r.Context()); user != nil {
		logger = logger.With().Int64("admin_id", user.ID).Logger()
	}

	t, err := st.FinalizeTournament(r.Context(), id)
	if err != nil {
		logger.Warn().Err(err).Msg("Finalize rejected")
		writeStoreError(w, logger, err)
		return
	}

	logger.Info().Msg("Tournament finalized")
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeOrUnavailable(w)
	if !ok {
		return
	}
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), DefaultPageLimit, MaxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := st.ListLeaderboard(r.Context(), id, limit)
	if err != nil {
		writeStoreError(w, *logging.FromContext(r.Context()), err)
		return
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSearchUsers finds users by username or name prefix. Admin only.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeOrUnavailable(w)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(strings.TrimPrefix(q, "@"))) < MinSearchQuery {
		writeError(w, http.StatusBadRequest, "q must be at least 2 characters")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), DefaultPageLimit, MaxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := st.SearchUsers(r.Context(), q, limit)
	if err != nil {
		writeStoreError(w, *logging.FromContext(r.Context()), err)
		return
	}
	if users == nil {
		users = []store.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
