package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knightclub/tournament-app/pkg/retry"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// BotConfig holds the bot client configuration.
type BotConfig struct {
	// Token is the bot token issued by @BotFather.
	Token string

	// BaseURL overrides the Bot API endpoint (default: DefaultBaseURL).
	BaseURL string

	// HTTPClient overrides the HTTP client (default: 10s timeout).
	HTTPClient *http.Client

	// RetryPolicy overrides the retry policy (default: retry.DefaultPolicy).
	RetryPolicy retry.Policy
}

// Bot is a minimal Telegram Bot API client.
type Bot struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     zerolog.Logger
}

// NewBot creates a Bot API client.
func NewBot(cfg BotConfig) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Bot{
		token:      cfg.Token,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		retrier:    retry.New("telegram", cfg.RetryPolicy),
		logger:     log.With().Str("component", "telegram-bot").Logger(),
	}, nil
}

// SendMessage sends text to chatID with an optional inline keyboard.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return b.call(ctx, "sendMessage", payload)
}

// SetWebhook registers webhookURL for updates. Telegram echoes secretToken in the
// X-Telegram-Bot-Api-Secret-Token header of every webhook request.
func (b *Bot) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"allowed_updates": []string{"message"},
	}
	if secretToken != "" {
		payload["secret_token"] = secretToken
	}
	if err := b.call(ctx, "setWebhook", payload); err != nil {
		return err
	}
	b.logger.Info().Str("url", webhookURL).Msg("Telegram webhook registered")
	return nil
}

// call posts payload to method, retrying server, rate limit and network errors.
func (b *Bot) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	return b.retrier.Do(ctx, func() error {
		return b.post(ctx, method, body)
	}, classifyError)
}

func (b *Bot) post(ctx context.Context, method string, body []byte) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		// The URL contains the token; never surface it.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		b.logger.Warn().Err(err).Str("method", method).Msg("Telegram request failed")
		return &networkError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &networkError{err: fmt.Errorf("read response: %w", err)}
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode == http.StatusOK {
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if resp.StatusCode == http.StatusOK && envelope.OK {
		return nil
	}

	apiErr := &APIError{
		StatusCode:  resp.StatusCode,
		Description: envelope.Description,
	}
	if envelope.Parameters != nil {
		apiErr.RetryAfter = envelope.Parameters.RetryAfter
	}
	if apiErr.Description == "" {
		apiErr.Description = resp.Status
	}

	b.logger.Warn().
		Str("method", method).
		Int("status", resp.StatusCode).
		Str("description", apiErr.Description).
		Msg("Telegram API error")
	return apiErr
}

// networkError marks transport failures for classification.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// classifyError maps Bot API failures onto retry classes.
func classifyError(err error) retry.ErrorClass {
	var netErr *networkError
	if errors.As(err, &netErr) {
		return retry.ErrorClassNetwork
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if class := retry.ClassifyStatus(apiErr.StatusCode); class != "" {
			return class
		}
	}
	return retry.ErrorClassClient
}
