package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	eventdomain "mailcal/internal/event/domain"
	maildomain "mailcal/internal/mail/domain"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user        = "me"
	unreadQuery = "is:unread"
	// Gmail API maximum
	pageSize = 500
)

type Service struct {
	srv *gmail.Service
}

// NewService creates a Gmail service on top of an authorized HTTP client
func NewService(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*Service, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &Service{srv: srv}, nil
}

// ListUnread returns every unread message across all result pages
func (s *Service) ListUnread(ctx context.Context) ([]maildomain.MessageRef, error) {
	refs := make([]maildomain.MessageRef, 0)
	err := s.srv.Users.Messages.List(user).
		Q(unreadQuery).
		MaxResults(pageSize).
		Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, m := range resp.Messages {
				refs = append(refs, maildomain.MessageRef{ID: m.Id})
			}
			return nil
		})
	if err != nil {
		return nil, wrapAPIError("unable to list unread messages", err)
	}
	return refs, nil
}

// Fetch retrieves the full message and converts its MIME tree
func (s *Service) Fetch(ctx context.Context, ref maildomain.MessageRef) (*maildomain.Payload, error) {
	msg, err := s.srv.Users.Messages.Get(user, ref.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError(fmt.Sprintf("unable to get message %s", ref.ID), err)
	}
	if msg.Payload == nil {
		return &maildomain.Payload{}, nil
	}
	return convertPart(msg.Payload), nil
}

// ValidateToken checks the credentials with a cheap profile call
func (s *Service) ValidateToken(ctx context.Context) error {
	profile, err := s.srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return &eventdomain.AuthError{Service: "gmail", Err: err}
	}
	log.Debug().Str("email", profile.EmailAddress).Msg("gmail: token valid")
	return nil
}

// Watch sets up push notifications for the INBOX on the given Pub/Sub topic
func (s *Service) Watch(ctx context.Context, topicName string) (uint64, error) {
	// Only one push client per user is allowed, clear the previous one first
	_ = s.srv.Users.Stop(user).Context(ctx).Do()

	resp, err := s.srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, wrapAPIError("unable to watch mailbox", err)
	}
	log.Info().
		Int64("expiration", resp.Expiration).
		Uint64("history_id", resp.HistoryId).
		Msg("gmail: watch started")
	return resp.HistoryId, nil
}

// Stop stops push notifications for the mailbox
func (s *Service) Stop(ctx context.Context) error {
	if err := s.srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return wrapAPIError("unable to stop mailbox watch", err)
	}
	return nil
}

func convertPart(part *gmail.MessagePart) *maildomain.Payload {
	p := &maildomain.Payload{MimeType: part.MimeType}
	if part.Body != nil && part.Body.Data != "" {
		p.Body = &maildomain.Body{Data: part.Body.Data}
	}
	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		p.Parts = append(p.Parts, convertPart(child))
	}
	return p
}

func wrapAPIError(msg string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &eventdomain.AuthError{Service: "gmail", Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
