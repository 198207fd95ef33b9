package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Options tunes a Dispatcher.
type Options struct {
	StudioName  string
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{StudioName: "the studio", QueueSize: 64, SendTimeout: 10 * time.Second}
}

// Dispatcher implements studio.Notifier on top of a Mailer. Calls never
// block: messages go to a bounded queue drained by one worker.
type Dispatcher struct {
	mailer Mailer
	opts   Options
	queue  chan Message

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewDispatcher(m Mailer, opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.StudioName == "" {
		opts.StudioName = def.StudioName
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	return &Dispatcher{mailer: m, opts: opts, queue: make(chan Message, opts.QueueSize)}
}

// Start launches the worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
	log.Printf("[Notify] Started with queue size %d", d.opts.QueueSize)
}

// Stop refuses new messages, delivers what is queued and waits for the worker.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	log.Printf("[Notify] Stopped (sent=%d failed=%d dropped=%d)", d.sent.Load(), d.failed.Load(), d.dropped.Load())
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() (sent, failed, dropped int64) {
	return d.sent.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
	defer cancel()
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		log.Printf("[Notify] Failed to send %q to %s: %v", msg.Subject, msg.To, err)
		return
	}
	d.sent.Add(1)
}

// Enqueue queues msg and reports whether it was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.dropped.Add(1)
		log.Printf("[Notify] Queue full, dropped %q to %s", msg.Subject, msg.To)
		return false
	}
}

// =============================================================================
// studio.Notifier
// =============================================================================

func (d *Dispatcher) Welcome(_ context.Context, to, name string) {
	greeting := "Hi"
	if name != "" {
		greeting = "Hi " + name
	}
	d.Enqueue(Message{
		To:      to,
		Subject: fmt.Sprintf("Welcome to %s", d.opts.StudioName),
		Body: fmt.Sprintf("%s,\n\nyour account at %s is ready. See you at your first session!\n",
			greeting, d.opts.StudioName),
	})
}

func (d *Dispatcher) PasswordChanged(_ context.Context, to string) {
	d.Enqueue(Message{
		To:      to,
		Subject: "Your password was changed",
		Body: fmt.Sprintf("The password of your %s account was just changed.\n"+
			"If this was not you, contact the studio right away.\n", d.opts.StudioName),
	})
}
