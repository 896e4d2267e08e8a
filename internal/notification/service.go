package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes on every mailbox change
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Trigger wakes the poll loop early
type Trigger interface {
	Trigger() bool
}

// Watcher renews the Gmail push registration
type Watcher interface {
	Watch(ctx context.Context, topicName string) (uint64, error)
}

// Service listens on a Pub/Sub subscription and triggers a poll cycle per new mailbox change
type Service struct {
	pubsubClient *pubsub.Client
	trigger      Trigger
	watcher      Watcher
	projectID    string
	topicName    string
	subName      string

	mu sync.Mutex
	// Deduplication: Gmail may publish the same or an older historyId more than once
	lastHistoryID map[string]uint64
}

func NewService(ctx context.Context, projectID, topicName string, trigger Trigger, watcher Watcher, credentialsFile string) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(trigger, watcher)
	s.pubsubClient = client
	s.projectID = projectID
	s.topicName = topicName
	s.subName = topicName + "-sub" // Convention: topic-sub
	return s, nil
}

func newService(trigger Trigger, watcher Watcher) *Service {
	return &Service{
		trigger:       trigger,
		watcher:       watcher,
		lastHistoryID: make(map[string]uint64),
	}
}

// Start registers the Gmail watch and blocks receiving messages until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("topic", s.topicName).Str("subscription", s.subName).Msg("pubsub: starting notification service")

	topicPath := fmt.Sprintf("projects/%s/topics/%s", s.projectID, s.topicName)
	if s.watcher != nil {
		if _, err := s.watcher.Watch(ctx, topicPath); err != nil {
			return fmt.Errorf("registering gmail watch: %w", err)
		}
		go s.renewWatch(ctx, topicPath)
	}

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("subscription", s.subName).Msg("pubsub: listening")
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.HandleMessage(msg.Data)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receiving pubsub messages: %w", err)
	}
	return nil
}

// Close releases the Pub/Sub client
func (s *Service) Close() error {
	if s.pubsubClient == nil {
		return nil
	}
	return s.pubsubClient.Close()
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking subscription %s: %w", s.subName, err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking topic %s: %w", s.topicName, err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription %s: %w", s.subName, err)
	}
	log.Info().Str("subscription", s.subName).Msg("pubsub: created subscription")
	return sub, nil
}

// renewWatch re-registers daily; Gmail expires watches after seven days
func (s *Service) renewWatch(ctx context.Context, topicPath string) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.watcher.Watch(ctx, topicPath); err != nil {
				log.Warn().Err(err).Msg("pubsub: gmail watch renewal failed")
			}
		}
	}
}

// HandleMessage decodes a Gmail notification and triggers a poll cycle when it is new.
// It reports whether a cycle was requested.
func (s *Service) HandleMessage(data []byte) bool {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.Warn().Err(err).Msg("pubsub: failed to unmarshal notification")
		return false
	}

	if !s.seen(notification.EmailAddress, notification.HistoryID) {
		log.Debug().
			Str("email", notification.EmailAddress).
			Uint64("history_id", notification.HistoryID).
			Msg("pubsub: skipping duplicate notification")
		return false
	}

	log.Debug().
		Str("email", notification.EmailAddress).
		Uint64("history_id", notification.HistoryID).
		Msg("pubsub: mailbox changed")
	s.trigger.Trigger()
	return true
}

// seen records historyID and reports whether it is newer than the last one
func (s *Service) seen(email string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, exists := s.lastHistoryID[email]
	if exists && historyID <= last {
		return false
	}
	s.lastHistoryID[email] = historyID
	return true
}
