package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eventdomain "mailcal/internal/event/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func testEvent(t *testing.T) eventdomain.NormalizedEvent {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	start := time.Date(2024, 6, 2, 15, 0, 0, 0, loc)
	return eventdomain.NormalizedEvent{
		Title:    "Meeting with Bob",
		Location: "Room 4",
		Start:    start,
		End:      start.Add(time.Hour),
		TimeZone: "Asia/Kolkata",
	}
}

func TestInsert(t *testing.T) {
	var got calendar.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/work@example.com/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"ev1","htmlLink":"https://calendar/ev1"}`))
	}))
	defer srv.Close()

	s, err := NewService(context.Background(), srv.Client(), "work@example.com", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	require.NoError(t, s.Insert(context.Background(), testEvent(t)))
	assert.Equal(t, "Meeting with Bob", got.Summary)
	assert.Equal(t, "Room 4", got.Location)
	assert.Equal(t, "2024-06-02T15:00:00+05:30", got.Start.DateTime)
	assert.Equal(t, "2024-06-02T16:00:00+05:30", got.End.DateTime)
	assert.Equal(t, "Asia/Kolkata", got.Start.TimeZone)
}

func TestInsertFailureIsCalendarInsertError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"bad time range"}}`))
	}))
	defer srv.Close()

	s, err := NewService(context.Background(), srv.Client(), "", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	err = s.Insert(context.Background(), testEvent(t))
	var insertErr *eventdomain.CalendarInsertError
	require.True(t, errors.As(err, &insertErr))
	assert.Equal(t, "Meeting with Bob", insertErr.Title)
	assert.False(t, eventdomain.IsFatal(err))
}
