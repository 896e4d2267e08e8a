package fcm

import (
	"context"
	"fmt"
	"time"

	eventdomain "mailcal/internal/event/domain"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Client wraps Firebase Cloud Messaging functionality
type Client struct {
	messagingClient *messaging.Client
	tokens          []string
}

// NewClient creates a new FCM client that notifies the given device tokens
func NewClient(ctx context.Context, credentialsFile string, tokens []string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Info().Int("devices", len(tokens)).Msg("fcm: client initialized")
	return &Client{
		messagingClient: messagingClient,
		tokens:          tokens,
	}, nil
}

// NotificationData contains the data to send in a push notification
type NotificationData struct {
	Title string
	Body  string
	Data  map[string]string // Custom data payload
}

// EventCreated pushes an "event added" notification. Failures are logged only.
func (c *Client) EventCreated(ctx context.Context, mailID string, ev eventdomain.NormalizedEvent) {
	if len(c.tokens) == 0 {
		return
	}
	failed, err := c.SendToDevices(ctx, c.tokens, EventNotification(mailID, ev))
	if err != nil {
		log.Warn().Err(err).Str("mail_id", mailID).Msg("fcm: event notification failed")
		return
	}
	if len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Str("mail_id", mailID).Msg("fcm: some devices were not notified")
	}
}

// EventNotification builds the push payload for a newly inserted event
func EventNotification(mailID string, ev eventdomain.NormalizedEvent) NotificationData {
	body := ev.Start.Format("Mon Jan 2, 15:04")
	if ev.Location != "" {
		body += " @ " + ev.Location
	}
	return NotificationData{
		Title: "Event added: " + ev.Title,
		Body:  body,
		Data: map[string]string{
			"type":     "event_created",
			"mailId":   mailID,
			"start":    ev.Start.Format(time.RFC3339),
			"end":      ev.End.Format(time.RFC3339),
			"timeZone": ev.TimeZone,
		},
	}
}

// SendToDevices sends a push notification to multiple device tokens
// Returns a list of tokens that failed to receive the notification
func (c *Client) SendToDevices(ctx context.Context, tokens []string, notification NotificationData) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
	}

	response, err := c.messagingClient.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM multicast message: %w", err)
	}

	log.Debug().
		Int("success", response.SuccessCount).
		Int("failure", response.FailureCount).
		Msg("fcm: multicast sent")

	// Collect failed tokens
	var failedTokens []string
	for i, resp := range response.Responses {
		if !resp.Success {
			failedTokens = append(failedTokens, tokens[i])
			log.Debug().Err(resp.Error).Str("token", shortToken(tokens[i])).Msg("fcm: send failed")
		}
	}

	return failedTokens, nil
}

func shortToken(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
