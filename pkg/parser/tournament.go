// Package parser turns calendar events into tournament records.
//
// ParseCalendarEvents is pure: the same input always yields the same output,
// in the same order. Events are skipped when they are malformed (blank title,
// missing start, end before start) or when the title does not name a
// tournament.
package parser

import "time"

// Category is the speed class of a tournament.
type Category string

const (
	CategoryBullet    Category = "bullet"
	CategoryBlitz     Category = "blitz"
	CategoryRapid     Category = "rapid"
	CategoryClassical Category = "classical"
)

// SourceCalendar marks tournaments parsed from calendar events.
const SourceCalendar = "calendar"

// Tournament is a tournament announced in the club calendar.
type Tournament struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	AllDay          bool      `json:"allDay"`
	Location        string    `json:"location,omitempty"`
	Description     string    `json:"description,omitempty"`
	Category        Category  `json:"category,omitempty"`
	TimeControl     string    `json:"timeControl,omitempty"`
	Format          string    `json:"format,omitempty"`
	Rounds          int       `json:"rounds,omitempty"`
	Rated           bool      `json:"rated"`
	RegistrationURL string    `json:"registrationUrl,omitempty"`
	Source          string    `json:"source"`
}
