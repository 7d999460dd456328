package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/knightclub/tournament-app/pkg/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors surface after the status is sent; nothing to add.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps store errors to status codes.
func writeStoreError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "tournament not found")
	case errors.Is(err, store.ErrAlreadyFinalized):
		writeError(w, http.StatusConflict, "tournament is already finalized")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	default:
		logger.Error().Err(err).Msg("Store operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseLimit reads a positive limit no greater than max. Empty uses def.
func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", max)
	}
	return n, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
