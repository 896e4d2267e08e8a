package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventdomain "mailcal/internal/event/domain"
	maildomain "mailcal/internal/mail/domain"
	mailusecase "mailcal/internal/mail/usecase"
	"mailcal/internal/processed/domain"
	"mailcal/internal/processed/repository"

	"github.com/rs/zerolog/log"
)

// Mailbox lists unread mail and fetches message payloads
type Mailbox interface {
	ListUnread(ctx context.Context) ([]maildomain.MessageRef, error)
	Fetch(ctx context.Context, ref maildomain.MessageRef) (*maildomain.Payload, error)
}

// Extractor turns a mail body into a raw event extraction.
// The second return value is the raw model output.
type Extractor interface {
	Extract(ctx context.Context, body string) (eventdomain.RawExtraction, string, error)
}

// Materializer resolves a raw extraction, false means skip
type Materializer interface {
	Materialize(raw eventdomain.RawExtraction) (eventdomain.NormalizedEvent, bool)
}

// Calendar inserts events
type Calendar interface {
	Insert(ctx context.Context, ev eventdomain.NormalizedEvent) error
}

// Notifier is told about every inserted event
type Notifier interface {
	EventCreated(ctx context.Context, mailID string, ev eventdomain.NormalizedEvent)
}

// Outcome of handling a single mail
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
	OutcomeProcessed Outcome = "already_processed"
)

// CycleStats summarizes one poll cycle
type CycleStats struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Unread    int           `json:"unread"`
	Inserted  int           `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Empty     int           `json:"empty"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

func (s *CycleStats) record(o Outcome) {
	switch o {
	case OutcomeInserted:
		s.Inserted++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeEmpty:
		s.Empty++
	case OutcomeFailed:
		s.Failed++
	}
}

// Status is a snapshot readable from other goroutines
type Status struct {
	Running        bool          `json:"running"`
	Cycles         int           `json:"cycles"`
	ProcessedCount int           `json:"processed_count"`
	Interval       time.Duration `json:"interval"`
	LastCycle      *CycleStats   `json:"last_cycle,omitempty"`
}

// Poller runs the poll loop. It owns the processed set; mails are handled
// sequentially and cycles never overlap.
type Poller struct {
	mailbox      Mailbox
	extractor    Extractor
	materializer Materializer
	calendar     Calendar
	store        repository.ProcessedRepository
	notifier     Notifier
	interval     time.Duration

	processed domain.ProcessedSet
	trigger   chan struct{}

	mu     sync.Mutex
	status Status
}

func NewPoller(
	mailbox Mailbox,
	extractor Extractor,
	materializer Materializer,
	calendar Calendar,
	store repository.ProcessedRepository,
	interval time.Duration,
) *Poller {
	return &Poller{
		mailbox:      mailbox,
		extractor:    extractor,
		materializer: materializer,
		calendar:     calendar,
		store:        store,
		interval:     interval,
		trigger:      make(chan struct{}, 1),
		status:       Status{Interval: interval},
	}
}

// WithNotifier sets an optional notifier for inserted events
func (p *Poller) WithNotifier(n Notifier) *Poller {
	p.notifier = n
	return p
}

// Trigger asks for an early cycle. It never blocks; requests made while one
// is already pending are merged.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the loop state
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	if s.LastCycle != nil {
		last := *s.LastCycle
		s.LastCycle = &last
	}
	return s
}

// Load reads the processed set from the store. Run calls it when needed.
func (p *Poller) Load(ctx context.Context) error {
	set, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	p.processed = set
	p.setProcessedCount(len(set))
	log.Info().Int("processed", len(set)).Msg("poller: processed set loaded")
	return nil
}

// Run polls until ctx is cancelled. It returns nil on cancellation and an
// error when the processed set cannot be loaded or persisted.
func (p *Poller) Run(ctx context.Context) error {
	if p.processed == nil {
		if err := p.Load(ctx); err != nil {
			return err
		}
	}

	p.setRunning(true)
	defer p.setRunning(false)

	log.Info().Dur("interval", p.interval).Msg("poller: started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("poller: stopped")
			return nil
		case <-timer.C:
		case <-p.trigger:
			log.Debug().Msg("poller: early cycle requested")
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := p.RunCycle(ctx); err != nil {
			return err
		}
		timer.Reset(p.interval)
	}
}

// RunCycle handles every unread mail once. Per-mail failures are logged and
// counted; only a failure to persist the processed set is returned.
func (p *Poller) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		p.finishCycle(stats)
	}()

	if p.processed == nil {
		p.processed = domain.NewProcessedSet()
	}

	refs, err := p.mailbox.ListUnread(ctx)
	if err != nil {
		stats.Error = err.Error()
		log.Error().Err(err).Msg("poller: unable to list unread mail")
		return stats, nil
	}
	stats.Unread = len(refs)

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		outcome, err := p.handle(ctx, ref)
		if err != nil {
			stats.Error = err.Error()
			return stats, err
		}
		stats.record(outcome)
	}

	if stats.Inserted+stats.Skipped+stats.Failed > 0 {
		log.Info().
			Int("unread", stats.Unread).
			Int("inserted", stats.Inserted).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Msg("poller: cycle finished")
	}
	return stats, nil
}

// handle processes one mail. The returned error is non-nil only when the
// processed set could not be saved.
func (p *Poller) handle(ctx context.Context, ref maildomain.MessageRef) (Outcome, error) {
	if p.processed.Has(ref.ID) {
		return OutcomeProcessed, nil
	}
	logger := log.With().Str("mail_id", ref.ID).Logger()

	payload, err := p.mailbox.Fetch(ctx, ref)
	if err != nil {
		logger.Warn().Err(err).Msg("poller: fetch failed")
		return OutcomeFailed, nil
	}

	body := mailusecase.ExtractBody(payload)
	if body == "" {
		logger.Debug().Msg("poller: empty body, leaving unmarked")
		return OutcomeEmpty, nil
	}

	raw, output, err := p.extractor.Extract(ctx, body)
	if err != nil {
		snippet := output
		var modelErr *eventdomain.ModelCallError
		if errors.As(err, &modelErr) {
			snippet = body
		}
		logger.Warn().Err(err).Str("snippet", eventdomain.Snippet(snippet)).Msg("poller: extraction failed")
		return OutcomeFailed, nil
	}

	ev, ok := p.materializer.Materialize(raw)
	if !ok {
		logger.Info().Str("snippet", eventdomain.Snippet(output)).Msg("poller: no usable start time, skipping")
		return OutcomeSkipped, p.markProcessed(ctx, ref.ID)
	}

	if err := p.calendar.Insert(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("snippet", eventdomain.Snippet(body)).Msg("poller: calendar insert failed")
		return OutcomeFailed, nil
	}

	if err := p.markProcessed(ctx, ref.ID); err != nil {
		return OutcomeInserted, err
	}
	logger.Info().
		Str("title", ev.Title).
		Time("start", ev.Start).
		Time("end", ev.End).
		Msg("poller: event inserted")

	if p.notifier != nil {
		p.notifier.EventCreated(ctx, ref.ID, ev)
	}
	return OutcomeInserted, nil
}

func (p *Poller) markProcessed(ctx context.Context, id string) error {
	p.processed = p.processed.Mark(id)
	if err := p.store.Save(ctx, p.processed); err != nil {
		return fmt.Errorf("saving processed set after %s: %w", id, err)
	}
	p.setProcessedCount(len(p.processed))
	return nil
}

func (p *Poller) finishCycle(stats CycleStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Cycles++
	p.status.LastCycle = &stats
}

func (p *Poller) setRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Running = running
}

func (p *Poller) setProcessedCount(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.ProcessedCount = n
}
