// Package auth validates Telegram Mini App launch data and gates admin routes.
//
// Clients send the raw initData string as "Authorization: tma <initData>".
// The data is signed by Telegram with a key derived from the bot token:
//
//	secret = HMAC_SHA256(key="WebAppData", msg=botToken)
//	hash   = hex(HMAC_SHA256(key=secret, msg=data_check_string))
//
// where data_check_string is every field except hash, sorted by key and
// joined as "key=value" lines.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how long signed launch data stays valid.
const DefaultMaxAge = 24 * time.Hour

// Common errors returned by the authenticator.
var (
	// ErrUnauthorized is returned when no valid launch data is presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated user is not an admin.
	ErrForbidden = errors.New("forbidden")

	ErrMissingInitData  = errors.New("missing init data")
	ErrInvalidSignature = errors.New("invalid init data signature")
	ErrExpired          = errors.New("init data expired")
)

// User is the Telegram user embedded in launch data.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData is validated Mini App launch data.
type InitData struct {
	User     User
	AuthDate time.Time
	QueryID  string
}

// ValidateInitData checks the signature and age of raw initData.
// A maxAge of zero disables the age check.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingInitData
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrInvalidSignature
	}
	values.Del("hash")

	expected := sign(values, botToken)
	got, err := hex.DecodeString(hash)
	if err != nil || !hmac.Equal(got, expected) {
		return nil, ErrInvalidSignature
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse auth_date: %w", err)
	}
	authDate := time.Unix(authUnix, 0)
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return nil, ErrExpired
	}

	data := &InitData{
		AuthDate: authDate,
		QueryID:  values.Get("query_id"),
	}
	if userJSON := values.Get("user"); userJSON != "" {
		if err := json.Unmarshal([]byte(userJSON), &data.User); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
	}
	if data.User.ID == 0 {
		return nil, fmt.Errorf("init data has no user")
	}

	return data, nil
}

// SignInitData returns values encoded with a valid hash for botToken.
// Used by tests and local tooling that impersonate Telegram.
func SignInitData(values url.Values, botToken string) string {
	clean := url.Values{}
	for k, v := range values {
		if k != "hash" {
			clean[k] = v
		}
	}
	clean.Set("hash", hex.EncodeToString(sign(clean, botToken)))
	return clean.Encode()
}

func sign(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	return hmacSHA256(secret, []byte(strings.Join(lines, "\n")))
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
