// Package notify delivers OTP and account emails without ever blocking
// a request. Messages go through a bounded queue drained by a single
// background worker; when the queue is full the message is dropped and
// logged, which is the stated policy for this best-effort channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer is the external transport. Email delivery itself lives outside
// this service; tests and the default wiring use LogMailer.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type Dispatcher struct {
	mailer Mailer
	queue  chan Message
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(mailer Mailer, queueSize int, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		mailer: mailer,
		queue:  make(chan Message, queueSize),
		log:    log,
		done:   make(chan struct{}),
	}
	go d.worker()
	return d
}

// Enqueue submits a message and returns immediately. A full or closed
// dispatcher drops the message.
func (d *Dispatcher) Enqueue(m Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn("mail_dropped", "to", m.To, "subject", m.Subject, "reason", "dispatcher closed")
		return
	}
	select {
	case d.queue <- m:
	default:
		d.log.Warn("mail_dropped", "to", m.To, "subject", m.Subject, "reason", "queue full")
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for m := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := d.mailer.Send(ctx, m); err != nil {
			d.log.Error("mail_send_failed", "to", m.To, "subject", m.Subject, "error", err)
		}
		cancel()
	}
}

// Close stops accepting messages and waits for the worker to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Log *slog.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.Log.Info("mail_out", "to", msg.To, "subject", msg.Subject)
	return nil
}

func CreateAccountEmail(name, email, code string) Message {
	return Message{
		To:      email,
		Subject: "Verify your account",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour account verification code is %s. It expires in 5 minutes.\n",
			name, code,
		),
	}
}

func ResetPasswordEmail(email, code string) Message {
	return Message{
		To:      email,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			"Your password reset code is %s. It expires in 5 minutes.\n",
			code,
		),
	}
}
