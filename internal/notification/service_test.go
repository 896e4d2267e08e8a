package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingTrigger struct{ n int }

func (t *countingTrigger) Trigger() bool {
	t.n++
	return true
}

func TestHandleMessageDeduplicatesByHistoryID(t *testing.T) {
	trigger := &countingTrigger{}
	s := newService(trigger, nil)

	assert.True(t, s.HandleMessage([]byte(`{"emailAddress":"me@example.com","historyId":100}`)))
	assert.False(t, s.HandleMessage([]byte(`{"emailAddress":"me@example.com","historyId":100}`)))
	assert.False(t, s.HandleMessage([]byte(`{"emailAddress":"me@example.com","historyId":99}`)))
	assert.True(t, s.HandleMessage([]byte(`{"emailAddress":"me@example.com","historyId":101}`)))
	assert.True(t, s.HandleMessage([]byte(`{"emailAddress":"other@example.com","historyId":50}`)))

	assert.Equal(t, 3, trigger.n)
}

func TestHandleMessageIgnoresGarbage(t *testing.T) {
	trigger := &countingTrigger{}
	s := newService(trigger, nil)

	assert.False(t, s.HandleMessage([]byte("not json")))
	assert.Equal(t, 0, trigger.n)
}

func TestCloseWithoutClient(t *testing.T) {
	assert.NoError(t, newService(&countingTrigger{}, nil).Close())
}
