package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// EventsLister lists raw Google Calendar events. It is satisfied by the
// calendar/v3 service wrapper and by test fakes.
type EventsLister interface {
	ListEvents(ctx context.Context, calendarID, timeMin string, maxResults int64) ([]*calendarapi.Event, error)
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	// CalendarID is the Google calendar to read (e.g. "club@group.calendar.google.com").
	CalendarID string

	// CredentialsJSON is a service account key. Takes precedence over APIKey.
	CredentialsJSON []byte

	// APIKey is used for public calendars when no service account is configured.
	APIKey string

	// Location is used for all-day events (default: UTC).
	Location *time.Location

	// Endpoint overrides the API base URL (tests and proxies).
	Endpoint string
}

// GoogleProvider reads upcoming events from Google Calendar.
type GoogleProvider struct {
	lister     EventsLister
	calendarID string
	location   *time.Location
	now        func() time.Time
	logger     zerolog.Logger
}

// NewGoogleProvider creates a provider backed by the Google Calendar API.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.CalendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}

	var opts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, calendarapi.CalendarReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("load google credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, fmt.Errorf("google credentials or api key is required")
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := calendarapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return NewGoogleProviderWithLister(serviceLister{service: service}, cfg.CalendarID, cfg.Location), nil
}

// NewGoogleProviderWithLister creates a provider over an arbitrary EventsLister.
func NewGoogleProviderWithLister(lister EventsLister, calendarID string, loc *time.Location) *GoogleProvider {
	if loc == nil {
		loc = time.UTC
	}
	return &GoogleProvider{
		lister:     lister,
		calendarID: calendarID,
		location:   loc,
		now:        time.Now,
		logger:     log.With().Str("component", "google-calendar").Str("calendar_id", calendarID).Logger(),
	}
}

// UpcomingEvents lists single (expanded) events from now on, ordered by start time.
func (p *GoogleProvider) UpcomingEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return []Event{}, nil
	}

	timeMin := p.now().In(p.location).Format(time.RFC3339)
	items, err := p.lister.ListEvents(ctx, p.calendarID, timeMin, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", p.calendarID, err)
	}

	events := make([]Event, 0, len(items))
	for _, item := range items {
		ev, err := p.convertEvent(item)
		if err != nil {
			p.logger.Warn().Err(err).Str("event_id", item.Id).Msg("Skipping unconvertible calendar event")
			continue
		}
		events = append(events, ev)
	}

	p.logger.Debug().Int("limit", limit).Int("events", len(events)).Msg("Fetched upcoming events")
	return events, nil
}

// convertEvent maps a Google Calendar event to an Event.
func (p *GoogleProvider) convertEvent(item *calendarapi.Event) (Event, error) {
	if item == nil {
		return Event{}, fmt.Errorf("nil event")
	}
	if item.Status == "cancelled" {
		return Event{}, fmt.Errorf("event is cancelled")
	}

	ev := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Location:    item.Location,
		Description: item.Description,
	}

	start, allDay, err := p.parseEventTime(item.Start)
	if err != nil {
		return Event{}, fmt.Errorf("parse start: %w", err)
	}
	end, _, err := p.parseEventTime(item.End)
	if err != nil {
		return Event{}, fmt.Errorf("parse end: %w", err)
	}

	ev.Start = start
	ev.End = end
	ev.AllDay = allDay
	return ev, nil
}

// parseEventTime handles timed (DateTime) and all-day (Date) values.
func (p *GoogleProvider) parseEventTime(t *calendarapi.EventDateTime) (time.Time, bool, error) {
	if t == nil {
		return time.Time{}, false, fmt.Errorf("time is not set")
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return parsed.In(p.location), false, nil
	}
	if t.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", t.Date, p.location)
		if err != nil {
			return time.Time{}, true, err
		}
		return parsed, true, nil
	}
	return time.Time{}, false, fmt.Errorf("time is not set")
}

// serviceLister adapts *calendarapi.Service to EventsLister.
type serviceLister struct {
	service *calendarapi.Service
}

func (s serviceLister) ListEvents(ctx context.Context, calendarID, timeMin string, maxResults int64) ([]*calendarapi.Event, error) {
	events, err := s.service.Events.List(calendarID).
		Context(ctx).
		TimeMin(timeMin).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Do()
	if err != nil {
		return nil, err
	}
	return events.Items, nil
}
