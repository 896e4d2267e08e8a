package imap

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	eventdomain "mailcal/internal/event/domain"
	maildomain "mailcal/internal/mail/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/rs/zerolog/log"
)

// Config holds IMAP connection settings
type Config struct {
	Addr     string // host:port
	Username string
	Password string
	Mailbox  string
	TLS      bool
}

// Service reads unread mail over IMAP. A connection is opened per call.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Service{cfg: cfg}
}

// session is an authenticated connection with the mailbox selected read-only
type session struct {
	c           *client.Client
	uidValidity uint32
	stop        func() bool
}

func (s *session) close() {
	s.stop()
	if err := s.c.Logout(); err != nil {
		log.Debug().Err(err).Msg("imap: logout failed")
	}
}

func (s *Service) connect(ctx context.Context) (*session, error) {
	var (
		c   *client.Client
		err error
	)
	if s.cfg.TLS {
		c, err = client.DialTLS(s.cfg.Addr, nil)
	} else {
		c, err = client.Dial(s.cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", s.cfg.Addr, err)
	}

	// go-imap v1 has no context support, drop the connection on cancel
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		stop()
		_ = c.Logout()
		return nil, &eventdomain.AuthError{
			Service: "imap",
			Err:     fmt.Errorf("authentication failed for %s: %w", s.cfg.Username, err),
		}
	}

	mbox, err := c.Select(s.cfg.Mailbox, true)
	if err != nil {
		stop()
		_ = c.Logout()
		return nil, fmt.Errorf("selecting %s: %w", s.cfg.Mailbox, err)
	}

	return &session{c: c, uidValidity: mbox.UidValidity, stop: stop}, nil
}

// ValidateToken checks that the credentials can log in and open the mailbox
func (s *Service) ValidateToken(ctx context.Context) error {
	sess, err := s.connect(ctx)
	if err != nil {
		return err
	}
	sess.close()
	return nil
}

// ListUnread returns messages without the \Seen flag
func (s *Service) ListUnread(ctx context.Context) ([]maildomain.MessageRef, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := sess.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	refs := make([]maildomain.MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, maildomain.MessageRef{ID: formatID(sess.uidValidity, uid)})
	}
	return refs, nil
}

// Fetch downloads the message without setting \Seen and converts it to a Payload tree
func (s *Service) Fetch(ctx context.Context, ref maildomain.MessageRef) (*maildomain.Payload, error) {
	validity, uid, err := parseID(ref.ID)
	if err != nil {
		return nil, err
	}

	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if validity != sess.uidValidity {
		return nil, fmt.Errorf("message %s belongs to a previous UIDVALIDITY (now %d)", ref.ID, sess.uidValidity)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.c.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if msg == nil {
			continue
		}
		if body := msg.GetBody(section); body != nil {
			if raw, err = io.ReadAll(body); err != nil {
				return nil, fmt.Errorf("reading message %s: %w", ref.ID, err)
			}
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", ref.ID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %s not found", ref.ID)
	}

	return ParseMessage(raw)
}

// ParseMessage converts an RFC 5322 message into a Payload tree.
// Transfer encodings and charsets are decoded, leaf bodies are re-encoded as base64url.
func ParseMessage(raw []byte) (*maildomain.Payload, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	return convertEntity(entity)
}

func convertEntity(e *message.Entity) (*maildomain.Payload, error) {
	mediaType, _, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	p := &maildomain.Payload{MimeType: mediaType}

	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, fmt.Errorf("reading part: %w", err)
			}
			child, err := convertEntity(part)
			if err != nil {
				return nil, err
			}
			p.Parts = append(p.Parts, child)
		}
		return p, nil
	}

	b, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(b) > 0 {
		p.Body = &maildomain.Body{Data: base64.URLEncoding.EncodeToString(b)}
	}
	return p, nil
}

func formatID(uidValidity, uid uint32) string {
	return fmt.Sprintf("%d-%d", uidValidity, uid)
}

func parseID(id string) (uint32, uint32, error) {
	v, u, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid IMAP message id %q", id)
	}
	validity, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid IMAP message id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(u, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid IMAP message id %q: %w", id, err)
	}
	return uint32(validity), uint32(uid), nil
}
