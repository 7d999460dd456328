package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knightclub/tournament-app/pkg/store"
)

type sentMessage struct {
	chatID int64
	text   string
	markup *InlineKeyboardMarkup
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, markup: markup})
	return f.err
}

// MockUserStore is a testify mock for UserStore.
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) UpsertUser(ctx context.Context, u store.User) (*store.User, error) {
	args := m.Called(ctx, u)
	if v := args.Get(0); v != nil {
		return v.(*store.User), args.Error(1)
	}
	return nil, args.Error(1)
}

const startUpdate = `{"update_id":1,"message":{"message_id":10,"from":{"id":555,"is_bot":false,"first_name":"Judit","username":"judit"},"chat":{"id":555,"type":"private"},"text":"/start"}}`

func postUpdate(h http.Handler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretTokenHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_StartSendsWebAppButton(t *testing.T) {
	sender := &fakeSender{}
	users := &MockUserStore{}
	users.On("UpsertUser", mock.Anything, store.User{TelegramID: 555, Username: "judit", FirstName: "Judit"}).
		Return(&store.User{ID: 1, TelegramID: 555}, nil).Once()

	h := NewWebhookHandler(sender, users, WebhookConfig{Secret: "s3cret", WebAppURL: "https://app.example.org"})

	rec := postUpdate(h, startUpdate, "s3cret")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(555), sender.sent[0].chatID)
	require.NotNil(t, sender.sent[0].markup)
	assert.Equal(t, "https://app.example.org", sender.sent[0].markup.InlineKeyboard[0][0].WebApp.URL)
	users.AssertExpectations(t)
}

func TestWebhook_InvalidSecret(t *testing.T) {
	sender := &fakeSender{}
	h := NewWebhookHandler(sender, nil, WebhookConfig{Secret: "s3cret", WebAppURL: "https://app.example.org"})

	assert.Equal(t, http.StatusUnauthorized, postUpdate(h, startUpdate, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, postUpdate(h, startUpdate, "").Code)
	assert.Empty(t, sender.sent)
}

func TestWebhook_RejectsWhenSecretUnset(t *testing.T) {
	sender := &fakeSender{}
	users := &MockUserStore{}
	h := NewWebhookHandler(sender, users, WebhookConfig{WebAppURL: "https://app.example.org"})

	assert.Equal(t, http.StatusUnauthorized, postUpdate(h, startUpdate, "").Code)
	assert.Equal(t, http.StatusUnauthorized, postUpdate(h, startUpdate, "anything").Code)
	assert.Empty(t, sender.sent)
	users.AssertNotCalled(t, "UpsertUser", mock.Anything, mock.Anything)
}

func TestWebhook_InvalidBody(t *testing.T) {
	h := NewWebhookHandler(&fakeSender{}, nil, WebhookConfig{Secret: "s3cret"})

	assert.Equal(t, http.StatusBadRequest, postUpdate(h, "{not json", "s3cret").Code)
}

func TestWebhook_IgnoresOtherMessages(t *testing.T) {
	sender := &fakeSender{}
	h := NewWebhookHandler(sender, nil, WebhookConfig{Secret: "s3cret", WebAppURL: "https://app.example.org"})

	body := `{"update_id":2,"message":{"message_id":11,"chat":{"id":5,"type":"private"},"text":"hello"}}`
	assert.Equal(t, http.StatusOK, postUpdate(h, body, "s3cret").Code)
	assert.Empty(t, sender.sent)
}

func TestWebhook_SendFailureStillAcknowledged(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	users := &MockUserStore{}
	users.On("UpsertUser", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	h := NewWebhookHandler(sender, users, WebhookConfig{Secret: "s3cret", WebAppURL: "https://app.example.org"})

	assert.Equal(t, http.StatusOK, postUpdate(h, startUpdate, "s3cret").Code)
	assert.Len(t, sender.sent, 1)
}

func TestParseCommand(t *testing.T) {
	tests := map[string]string{
		"/start":                   "/start",
		"/start@club_bot":          "/start",
		"/Tournaments now":         "/tournaments",
		"/start@club_bot deeplink": "/start",
		"hello":                    "",
		"":                         "",
	}

	for input, expected := range tests {
		assert.Equal(t, expected, parseCommand(input), "parseCommand(%q)", input)
	}
}
