// Package store reads and writes tournaments, users and results in PostgreSQL.
// The schema is managed outside this service.
package store

import (
	"errors"
	"time"
)

// Common errors returned by the store.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFinalized is returned when finalizing a finalized tournament.
	ErrAlreadyFinalized = errors.New("tournament already finalized")

	// ErrConflict is returned when a transaction lost a concurrent update and may be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

// TournamentStatus is the lifecycle state of a tournament.
type TournamentStatus string

const (
	StatusDraft     TournamentStatus = "draft"
	StatusOpen      TournamentStatus = "open"
	StatusRunning   TournamentStatus = "running"
	StatusFinalized TournamentStatus = "finalized"
)

// Tournament is a club tournament.
type Tournament struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	StartsAt    time.Time        `json:"startsAt"`
	EndsAt      *time.Time       `json:"endsAt,omitempty"`
	Location    string           `json:"location,omitempty"`
	Status      TournamentStatus `json:"status"`
	FinalizedAt *time.Time       `json:"finalizedAt,omitempty"`
}

// User is a club member known by their Telegram account.
type User struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegramId"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName,omitempty"`
	Rating     int    `json:"rating"`
	IsAdmin    bool   `json:"isAdmin"`
}

// LeaderboardEntry is one ranked participant of a tournament.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	UserID   int64   `json:"userId"`
	Username string  `json:"username,omitempty"`
	Points   float64 `json:"points"`
	Wins     int     `json:"wins"`
	Draws    int     `json:"draws"`
	Losses   int     `json:"losses"`
}
