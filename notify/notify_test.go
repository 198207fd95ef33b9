package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/notify"
	"github.com/warp/studio-engine/studio"
)

var _ studio.Notifier = (*notify.Dispatcher)(nil)

type recordingMailer struct {
	mu       sync.Mutex
	msgs     []notify.Message
	release  chan struct{} // when set, Send waits for it or ctx
	fail     error
	deadline bool
}

func (m *recordingMailer) Send(ctx context.Context, msg notify.Message) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, m.deadline = ctx.Deadline()
	if m.fail != nil {
		return m.fail
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *recordingMailer) messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.msgs...)
}

func TestDispatcher_DeliversQueuedMessages(t *testing.T) {
	// GIVEN: A running dispatcher
	m := &recordingMailer{}
	d := notify.NewDispatcher(m, notify.Options{StudioName: "Iron Studio"})
	d.Start()

	// WHEN: Two notifications are sent and the dispatcher stops
	d.Welcome(context.Background(), "ana@mail.test", "Ana")
	d.PasswordChanged(context.Background(), "ana@mail.test")
	d.Stop()

	// THEN: Both were delivered with a send deadline
	msgs := m.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Welcome to Iron Studio", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "Hi Ana")
	assert.Equal(t, "Your password was changed", msgs[1].Subject)
	assert.True(t, m.deadline)

	sent, failed, dropped := d.Stats()
	assert.Equal(t, int64(2), sent)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestDispatcher_NeverBlocksTheCaller(t *testing.T) {
	// GIVEN: A mailer stuck on its first message and a queue of one
	m := &recordingMailer{release: make(chan struct{})}
	d := notify.NewDispatcher(m, notify.Options{QueueSize: 1, SendTimeout: time.Minute})
	d.Start()

	// WHEN: Many notifications are sent
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Welcome(context.Background(), "x@mail.test", "")
		}
		close(done)
	}()

	// THEN: The calls return at once and the overflow is dropped
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier blocked the caller")
	}
	close(m.release)
	d.Stop()

	sent, _, dropped := d.Stats()
	assert.LessOrEqual(t, sent, int64(2))
	assert.Equal(t, int64(10), sent+dropped)
}

func TestDispatcher_FailuresAreCountedNotReturned(t *testing.T) {
	m := &recordingMailer{fail: errors.New("relay down")}
	d := notify.NewDispatcher(m, notify.Options{})
	d.Start()
	d.PasswordChanged(context.Background(), "bo@mail.test")
	d.Stop()

	_, failed, _ := d.Stats()
	assert.Equal(t, int64(1), failed)
	assert.False(t, d.Enqueue(notify.Message{To: "late@mail.test"}))
}

func TestDispatcher_SendTimeout(t *testing.T) {
	m := &recordingMailer{release: make(chan struct{})}
	d := notify.NewDispatcher(m, notify.Options{SendTimeout: 10 * time.Millisecond})
	d.Start()
	d.Welcome(context.Background(), "cy@mail.test", "Cy")
	d.Stop()

	_, failed, _ := d.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := notify.LogMailer{Logger: log.New(&buf, "", 0)}

	require.NoError(t, m.Send(context.Background(), notify.Message{To: "dee@mail.test", Subject: "Hello", Body: "body"}))
	assert.True(t, strings.HasPrefix(buf.String(), "[Notify] to=dee@mail.test subject=\"Hello\""))
}

func TestMessageBytes(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	raw := string(notify.Message{To: "a@mail.test", Subject: "Hi", Body: "line1\nline2"}.Bytes("studio@mail.test", at))

	assert.Contains(t, raw, "From: studio@mail.test\r\n")
	assert.Contains(t, raw, "To: a@mail.test\r\n")
	assert.Contains(t, raw, "Date: Mon, 02 Mar 2026 09:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nline1\r\nline2"))
}
