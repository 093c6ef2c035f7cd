package notify

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMailer struct {
	mu      sync.Mutex
	sent    []Message
	started chan struct{}
	release chan struct{}
}

func (m *countingMailer) Send(_ context.Context, msg Message) error {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *countingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	t.Parallel()

	mailer := &countingMailer{}
	d := NewDispatcher(mailer, 8, slog.Default())

	d.Enqueue(Message{To: "a@x.com", Subject: "one"})
	d.Enqueue(Message{To: "b@x.com", Subject: "two"})
	d.Close()

	require.Equal(t, 2, mailer.count())
	assert.Equal(t, "a@x.com", mailer.sent[0].To)
	assert.Equal(t, "b@x.com", mailer.sent[1].To)
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	mailer := &countingMailer{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	d := NewDispatcher(mailer, 2, slog.Default())

	// First message occupies the worker; the next two fill the queue.
	d.Enqueue(Message{Subject: "held"})
	<-mailer.started
	d.Enqueue(Message{Subject: "queued-1"})
	d.Enqueue(Message{Subject: "queued-2"})

	// Queue is full: this one must be dropped, not block.
	d.Enqueue(Message{Subject: "dropped"})

	close(mailer.release)
	d.Close()

	require.Equal(t, 3, mailer.count())
	for _, m := range mailer.sent {
		assert.NotEqual(t, "dropped", m.Subject)
	}
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&countingMailer{}, 2, slog.Default())
	d.Close()
	d.Close()
}

func TestDispatcher_EnqueueAfterCloseDrops(t *testing.T) {
	t.Parallel()

	mailer := &countingMailer{}
	d := NewDispatcher(mailer, 2, slog.Default())
	d.Close()

	d.Enqueue(Message{To: "late@x.com", Subject: "late"})

	assert.Equal(t, 0, mailer.count())
}

func TestEmailTemplates(t *testing.T) {
	t.Parallel()

	m := CreateAccountEmail("Ada", "ada@x.com", "123456")
	assert.Equal(t, "ada@x.com", m.To)
	assert.Contains(t, m.Body, "Ada")
	assert.Contains(t, m.Body, "123456")

	r := ResetPasswordEmail("ada@x.com", "654321")
	assert.Equal(t, "ada@x.com", r.To)
	assert.Contains(t, r.Body, "654321")
}
