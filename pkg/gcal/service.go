package gcal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	eventdomain "mailcal/internal/event/domain"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// DefaultCalendarID is the authenticated user's primary calendar
const DefaultCalendarID = "primary"

type Service struct {
	srv        *calendar.Service
	calendarID string
}

func NewService(ctx context.Context, client *http.Client, calendarID string, opts ...option.ClientOption) (*Service, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return &Service{srv: srv, calendarID: calendarID}, nil
}

// Insert creates ev in the configured calendar. No retry.
func (s *Service) Insert(ctx context.Context, ev eventdomain.NormalizedEvent) error {
	created, err := s.srv.Events.Insert(s.calendarID, toCalendarEvent(ev)).Context(ctx).Do()
	if err != nil {
		return &eventdomain.CalendarInsertError{Title: ev.Title, Err: err}
	}
	log.Info().
		Str("event_id", created.Id).
		Str("link", created.HtmlLink).
		Msg("gcal: event created")
	return nil
}

func toCalendarEvent(ev eventdomain.NormalizedEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
	}
}
