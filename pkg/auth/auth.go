package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey struct{}

// Authenticator checks Telegram launch data against a bot token.
type Authenticator struct {
	botToken string
	maxAge   time.Duration
	admins   map[int64]struct{}
	now      func() time.Time
	logger   zerolog.Logger
}

// NewAuthenticator creates an authenticator. A non-positive maxAge uses DefaultMaxAge.
func NewAuthenticator(botToken string, maxAge time.Duration, adminIDs []int64) *Authenticator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Authenticator{
		botToken: botToken,
		maxAge:   maxAge,
		admins:   admins,
		now:      time.Now,
		logger:   log.With().Str("component", "auth").Logger(),
	}
}

// IsAdmin reports whether the Telegram user ID is configured as an admin.
func (a *Authenticator) IsAdmin(telegramID int64) bool {
	_, ok := a.admins[telegramID]
	return ok
}

// Authenticate validates the request's "Authorization: tma <initData>" header.
// All failures wrap ErrUnauthorized.
func (a *Authenticator) Authenticate(r *http.Request) (*User, error) {
	if a.botToken == "" {
		return nil, fmt.Errorf("%w: bot token not configured", ErrUnauthorized)
	}

	scheme, raw, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	if !strings.EqualFold(scheme, "tma") {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrMissingInitData)
	}

	data, err := ValidateInitData(raw, a.botToken, a.maxAge, a.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return &data.User, nil
}

// RequireAdmin returns the authenticated user if they are an admin.
// Returns an error wrapping ErrUnauthorized or ErrForbidden otherwise.
func (a *Authenticator) RequireAdmin(r *http.Request) (*User, error) {
	user, err := a.Authenticate(r)
	if err != nil {
		return nil, err
	}
	if !a.IsAdmin(user.ID) {
		return nil, fmt.Errorf("%w: user %d is not an admin", ErrForbidden, user.ID)
	}
	return user, nil
}

// AdminOnly wraps next so it runs only for admins. The user is available
// to next via UserFromContext.
func (a *Authenticator) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.RequireAdmin(r)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrForbidden) {
				status = http.StatusForbidden
			}
			a.logger.Warn().
				Err(err).
				Str("path", r.URL.Path).
				Int("status", status).
				Msg("Rejected admin request")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user stored by AdminOnly, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(contextKey{}).(*User)
	return user
}
