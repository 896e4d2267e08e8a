package poller

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	eventdomain "mailcal/internal/event/domain"
	eventusecase "mailcal/internal/event/usecase"
	maildomain "mailcal/internal/mail/domain"
	"mailcal/internal/processed/domain"
	"mailcal/internal/processed/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	mu       sync.Mutex
	unread   []string
	bodies   map[string]string
	fetchErr map[string]error
	fetches  int
}

func (m *fakeMailbox) ListUnread(_ context.Context) ([]maildomain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]maildomain.MessageRef, 0, len(m.unread))
	for _, id := range m.unread {
		refs = append(refs, maildomain.MessageRef{ID: id})
	}
	return refs, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, ref maildomain.MessageRef) (*maildomain.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if err := m.fetchErr[ref.ID]; err != nil {
		return nil, err
	}
	return &maildomain.Payload{
		MimeType: "text/plain",
		Body:     &maildomain.Body{Data: base64.URLEncoding.EncodeToString([]byte(m.bodies[ref.ID]))},
	}, nil
}

// scriptedGenerator answers with a fixed model output per mail body
type scriptedGenerator struct {
	outputs map[string]string
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	for body, out := range g.outputs {
		if eventusecase.BuildPrompt(body) == prompt {
			return out, nil
		}
	}
	return "I could not find an event.", nil
}

type fakeCalendar struct {
	mu     sync.Mutex
	events []eventdomain.NormalizedEvent
	err    error
}

func (c *fakeCalendar) Insert(_ context.Context, ev eventdomain.NormalizedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

type recordingNotifier struct{ ids []string }

func (n *recordingNotifier) EventCreated(_ context.Context, mailID string, _ eventdomain.NormalizedEvent) {
	n.ids = append(n.ids, mailID)
}

// countingStore wraps a real store and counts saves
type countingStore struct {
	repository.ProcessedRepository
	saves   int
	saveErr error
}

func (s *countingStore) Save(ctx context.Context, set domain.ProcessedSet) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.ProcessedRepository.Save(ctx, set)
}

type harness struct {
	mailbox  *fakeMailbox
	gen      *scriptedGenerator
	calendar *fakeCalendar
	store    *countingStore
	path     string
	loc      *time.Location
	poller   *Poller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	h := &harness{
		mailbox:  &fakeMailbox{bodies: map[string]string{}, fetchErr: map[string]error{}},
		gen:      &scriptedGenerator{outputs: map[string]string{}},
		calendar: &fakeCalendar{},
		path:     filepath.Join(t.TempDir(), "processed_ids.json"),
		loc:      loc,
	}
	h.store = &countingStore{ProcessedRepository: repository.NewFileProcessedRepository(h.path)}
	h.poller = h.build()
	return h
}

func (h *harness) build() *Poller {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, h.loc)
	normalizer := eventusecase.NewNormalizer(h.loc).WithClock(func() time.Time { return now })
	return NewPoller(
		h.mailbox,
		eventusecase.NewExtractor(h.gen, "test"),
		eventusecase.NewMaterializer(normalizer),
		h.calendar,
		h.store,
		time.Hour,
	)
}

func (h *harness) addMail(id, body, modelOutput string) {
	h.mailbox.unread = append(h.mailbox.unread, id)
	h.mailbox.bodies[id] = body
	if modelOutput != "" {
		h.gen.outputs[body] = modelOutput
	}
}

const bobOutput = "Sure! Here it is:\n```json\n" +
	`{"name": "Meeting with Bob", "start datetime": "2024-06-02 15:00", "end datetime": null, "location": "Room 4", "description": "Quarterly sync",}` +
	"\n```"

func TestCycleInsertsAndMarks(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)
	notifier := &recordingNotifier{}
	h.poller.WithNotifier(notifier)

	stats, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unread)
	assert.Equal(t, 1, stats.Inserted)

	require.Len(t, h.calendar.events, 1)
	ev := h.calendar.events[0]
	assert.Equal(t, "Meeting with Bob", ev.Title)
	assert.Equal(t, "Room 4", ev.Location)
	assert.Equal(t, "Quarterly sync", ev.Description)
	assert.True(t, ev.Start.Equal(time.Date(2024, 6, 2, 15, 0, 0, 0, h.loc)))
	assert.Equal(t, time.Hour, ev.Duration())
	assert.Equal(t, "Asia/Kolkata", ev.TimeZone)

	assert.Equal(t, 1, h.store.saves)
	assert.Equal(t, []string{"m1"}, notifier.ids)

	persisted, err := repository.NewFileProcessedRepository(h.path).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, persisted.Has("m1"))
}

func TestCycleResolvesRelativeStartAndEnd(t *testing.T) {
	h := newHarness(t)
	body := "Meeting with Bob tomorrow 3pm-4pm at Cafe X"
	h.addMail("m1", body, `{"name":"Meeting with Bob","start datetime":"tomorrow 3pm","end datetime":"tomorrow 4pm","location":"Cafe X","description":""}`)

	stats, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)

	require.Len(t, h.calendar.events, 1)
	ev := h.calendar.events[0]
	assert.Equal(t, "Meeting with Bob", ev.Title)
	assert.Equal(t, "Cafe X", ev.Location)
	assert.True(t, ev.Start.Equal(time.Date(2024, 6, 2, 15, 0, 0, 0, h.loc)), "start %s", ev.Start)
	assert.True(t, ev.End.Equal(time.Date(2024, 6, 2, 16, 0, 0, 0, h.loc)), "end %s", ev.End)
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))

	assert.Equal(t, 1, h.store.saves)
	assert.Equal(t, []string{"m1"}, h.poller.processed.IDs())
}

func TestCycleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)

	_, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	stats, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Inserted)
	assert.Len(t, h.calendar.events, 1)
	assert.Equal(t, 1, h.mailbox.fetches)
	assert.Equal(t, 1, h.store.saves)
}

func TestProcessedSetSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)

	_, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)

	restarted := h.build()
	require.NoError(t, restarted.Load(context.Background()))
	_, err = restarted.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.calendar.events, 1)
	assert.Equal(t, 1, restarted.Status().ProcessedCount)
}

func TestSkipWithoutStartIsMarked(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "Lunch sometime?", `{"name": "Lunch", "start datetime": "TBD", "end datetime": null}`)

	stats, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, h.calendar.events)
	assert.Equal(t, 1, h.store.saves)

	_, err = h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.mailbox.fetches)
}

func TestEmptyBodyIsNotMarked(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "   \n  ", "")

	stats, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Empty)
	assert.Equal(t, 0, h.store.saves)

	_, err = h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.mailbox.fetches)
}

func TestFailuresAreNotMarked(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{
			name: "model call",
			setup: func(h *harness) {
				h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)
				h.gen.err = errors.New("connection refused")
			},
		},
		{
			name: "no json",
			setup: func(h *harness) {
				h.addMail("m1", "Just saying hi", "")
			},
		},
		{
			name: "malformed json",
			setup: func(h *harness) {
				h.addMail("m1", "Meeting", `{"name": "Meeting" "start datetime": "x"}`)
			},
		},
		{
			name: "fetch",
			setup: func(h *harness) {
				h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)
				h.mailbox.fetchErr["m1"] = errors.New("503")
			},
		},
		{
			name: "calendar insert",
			setup: func(h *harness) {
				h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)
				h.calendar.err = &eventdomain.CalendarInsertError{Title: "Meeting with Bob", Err: errors.New("400")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			stats, err := h.poller.RunCycle(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Failed)
			assert.Equal(t, 0, h.store.saves)
			assert.Equal(t, 0, h.poller.Status().ProcessedCount)
		})
	}
}

func TestFailureDoesNotStopCycle(t *testing.T) {
	h := newHarness(t)
	h.addMail("bad", "Broken", `{"name": `)
	h.addMail("good", "Meeting with Bob tomorrow 3pm", bobOutput)

	stats, err := h.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Inserted)
	assert.Len(t, h.calendar.events, 1)
}

func TestSaveFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)
	h.store.saveErr = errors.New("disk full")

	_, err := h.poller.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunCorruptStoreIsFatal(t *testing.T) {
	h := newHarness(t)
	h.store.ProcessedRepository = corruptStore{}

	err := h.poller.Run(context.Background())
	var corrupt *eventdomain.StoreCorruptError
	require.True(t, errors.As(err, &corrupt))
}

type corruptStore struct{ repository.ProcessedRepository }

func (corruptStore) Load(context.Context) (domain.ProcessedSet, error) {
	return nil, &eventdomain.StoreCorruptError{Location: "test", Err: errors.New("bad json")}
}

func TestRunTriggerAndCancel(t *testing.T) {
	h := newHarness(t)
	h.addMail("m1", "Meeting with Bob tomorrow 3pm", bobOutput)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.poller.Run(ctx) }()

	require.Eventually(t, func() bool { return h.poller.Status().Cycles >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.poller.Status().Running)

	h.poller.Trigger()
	require.Eventually(t, func() bool { return h.poller.Status().Cycles >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
	assert.False(t, h.poller.Status().Running)

	h.calendar.mu.Lock()
	defer h.calendar.mu.Unlock()
	assert.Len(t, h.calendar.events, 1)
}

func TestTriggerDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.poller.Trigger())
	assert.False(t, h.poller.Trigger())
}
