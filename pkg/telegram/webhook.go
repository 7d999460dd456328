package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knightclub/tournament-app/pkg/store"
)

// SecretTokenHeader carries the secret registered with SetWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Sender sends bot messages.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error
}

// UserStore records users who talk to the bot.
type UserStore interface {
	UpsertUser(ctx context.Context, u store.User) (*store.User, error)
}

// WebhookConfig configures the webhook handler.
type WebhookConfig struct {
	// Secret must match the X-Telegram-Bot-Api-Secret-Token header. With no
	// Secret every update is rejected.
	Secret string

	// WebAppURL is opened by the reply button.
	WebAppURL string

	// ReplyTimeout bounds sending the reply (default: 15s).
	ReplyTimeout time.Duration
}

// WebhookHandler answers bot commands with a button opening the Mini App.
type WebhookHandler struct {
	sender Sender
	users  UserStore
	config WebhookConfig
	logger zerolog.Logger
}

// NewWebhookHandler creates a webhook handler. users may be nil.
func NewWebhookHandler(sender Sender, users UserStore, cfg WebhookConfig) *WebhookHandler {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 15 * time.Second
	}
	return &WebhookHandler{
		sender: sender,
		users:  users,
		config: cfg,
		logger: log.With().Str("component", "telegram-webhook").Logger(),
	}
}

// ServeHTTP implements http.Handler. Valid updates are always acknowledged
// with 200 so Telegram does not redeliver them.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.config.Secret == "" {
		h.logger.Error().Str("remote_addr", r.RemoteAddr).Msg("Webhook request rejected: no secret token configured")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	got := r.Header.Get(SecretTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.config.Secret)) != 1 {
		h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Webhook request with invalid secret token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update Update
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	if update.Message != nil {
		h.handleMessage(r.Context(), update.Message)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleMessage(ctx context.Context, msg *Message) {
	command := parseCommand(msg.Text)
	if command != "/start" && command != "/tournaments" {
		return
	}

	// The reply must not be cut short if Telegram drops the connection.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.ReplyTimeout)
	defer cancel()

	logger := h.logger.With().Int64("chat_id", msg.Chat.ID).Str("command", command).Logger()

	if h.users != nil && msg.From != nil && !msg.From.IsBot {
		if _, err := h.users.UpsertUser(ctx, store.User{
			TelegramID: msg.From.ID,
			Username:   msg.From.Username,
			FirstName:  msg.From.FirstName,
			LastName:   msg.From.LastName,
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to record bot user")
		}
	}

	if h.config.WebAppURL == "" {
		logger.Warn().Msg("Web app URL not configured, ignoring command")
		return
	}

	markup := WebAppKeyboard("Open tournaments", h.config.WebAppURL)
	if err := h.sender.SendMessage(ctx, msg.Chat.ID, "Club tournaments", markup); err != nil {
		logger.Error().Err(err).Msg("Failed to send web app button")
		return
	}
	logger.Debug().Msg("Sent web app button")
}

// parseCommand returns the leading bot command of text without any
// @botname suffix, e.g. "/start@club_bot payload" -> "/start".
func parseCommand(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	command, _, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command)
}
