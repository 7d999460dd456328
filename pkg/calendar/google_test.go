package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	calendarapi "google.golang.org/api/calendar/v3"
)

// MockEventsLister is a testify mock for EventsLister.
type MockEventsLister struct {
	mock.Mock
}

func (m *MockEventsLister) ListEvents(ctx context.Context, calendarID, timeMin string, maxResults int64) ([]*calendarapi.Event, error) {
	args := m.Called(calendarID, timeMin, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*calendarapi.Event), args.Error(1)
}

func newTestGoogleProvider(lister EventsLister) *GoogleProvider {
	p := NewGoogleProviderWithLister(lister, "club", time.UTC)
	p.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return p
}

func TestGoogleProvider_UpcomingEvents(t *testing.T) {
	lister := new(MockEventsLister)
	lister.On("ListEvents", "club", "2025-03-01T09:00:00Z", int64(20)).Return([]*calendarapi.Event{
		{
			Id:       "1",
			Summary:  "Blitz Arena",
			Location: "Online",
			Start:    &calendarapi.EventDateTime{DateTime: "2025-03-02T18:00:00+01:00"},
			End:      &calendarapi.EventDateTime{DateTime: "2025-03-02T20:00:00+01:00"},
		},
		{
			Id:      "2",
			Summary: "Club Championship",
			Start:   &calendarapi.EventDateTime{Date: "2025-03-08"},
			End:     &calendarapi.EventDateTime{Date: "2025-03-10"},
		},
		{
			Id:      "3",
			Summary: "Broken",
			Start:   &calendarapi.EventDateTime{},
			End:     &calendarapi.EventDateTime{DateTime: "2025-03-02T20:00:00Z"},
		},
	}, nil)

	events, err := newTestGoogleProvider(lister).UpcomingEvents(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "1", events[0].ID)
	assert.False(t, events[0].AllDay)
	assert.Equal(t, 17, events[0].Start.Hour())
	assert.Equal(t, "Online", events[0].Location)

	assert.Equal(t, "2", events[1].ID)
	assert.True(t, events[1].AllDay)
	assert.Equal(t, 8, events[1].Start.Day())
	lister.AssertExpectations(t)
}

func TestGoogleProvider_UpcomingEvents_Error(t *testing.T) {
	lister := new(MockEventsLister)
	upstream := errors.New("boom")
	lister.On("ListEvents", "club", mock.Anything, int64(5)).Return(nil, upstream)

	_, err := newTestGoogleProvider(lister).UpcomingEvents(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
}

func TestGoogleProvider_UpcomingEvents_NonPositiveLimit(t *testing.T) {
	lister := new(MockEventsLister)

	events, err := newTestGoogleProvider(lister).UpcomingEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	lister.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestConvertEvent_Cancelled(t *testing.T) {
	p := newTestGoogleProvider(nil)

	_, err := p.convertEvent(&calendarapi.Event{
		Id:     "x",
		Status: "cancelled",
		Start:  &calendarapi.EventDateTime{DateTime: "2025-03-02T18:00:00Z"},
		End:    &calendarapi.EventDateTime{DateTime: "2025-03-02T19:00:00Z"},
	})
	assert.Error(t, err)
}

func TestConvertEvent_MissingEnd(t *testing.T) {
	p := newTestGoogleProvider(nil)

	_, err := p.convertEvent(&calendarapi.Event{
		Id:    "x",
		Start: &calendarapi.EventDateTime{DateTime: "2025-03-02T18:00:00Z"},
	})
	assert.Error(t, err)
}

func TestNewGoogleProvider_Validation(t *testing.T) {
	_, err := NewGoogleProvider(context.Background(), GoogleConfig{})
	assert.EqualError(t, err, "calendar id is required")

	_, err = NewGoogleProvider(context.Background(), GoogleConfig{CalendarID: "club"})
	assert.EqualError(t, err, "google credentials or api key is required")
}
