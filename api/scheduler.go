/*
scheduler.go - Automated maintenance sweeps

PURPOSE:
  Runs the time-based state changes nobody triggers by hand:
    - package expiry:  active client packages past their expiry date -> expired
    - invoice overdue: sent invoices past their due date -> overdue

DESIGN:
  - robfig/cron/v3 with one entry per sweep, specs from config
  - Jobs run as studio.SystemPrincipal
  - Overlapping runs of the same job are skipped, not queued
  - Both sweeps are idempotent, so a missed or repeated run is harmless

USAGE:
  scheduler := NewMaintenanceScheduler(svc, cfg.Scheduler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Sweep endpoint (manual run)
  - studio/packages.go: ExpirePackages
  - studio/invoices.go: MarkOverdueInvoices
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/studio-engine/config"
	"github.com/warp/studio-engine/studio"
)

// Sweeper is the part of studio.Service the scheduler drives.
type Sweeper interface {
	ExpirePackages(ctx context.Context) (int, error)
	MarkOverdueInvoices(ctx context.Context) (int, error)
}

// MaintenanceScheduler runs the expiry and overdue sweeps on cron specs.
type MaintenanceScheduler struct {
	Service     Sweeper
	ExpirySpec  string
	OverdueSpec string
	Enabled     bool
	Timeout     time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewMaintenanceScheduler creates a new scheduler.
func NewMaintenanceScheduler(svc Sweeper, cfg config.SchedulerConfig) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		Service:     svc,
		ExpirySpec:  cfg.ExpirySpec,
		OverdueSpec: cfg.OverdueSpec,
		Enabled:     cfg.Enabled,
		Timeout:     5 * time.Minute,
	}
}

// Start validates the specs and begins the scheduler.
func (ms *MaintenanceScheduler) Start() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return nil
	}
	if ms.running {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(ms.ExpirySpec, ms.RunExpiry); err != nil {
		return fmt.Errorf("expiry spec %q: %w", ms.ExpirySpec, err)
	}
	if _, err := c.AddFunc(ms.OverdueSpec, ms.RunOverdue); err != nil {
		return fmt.Errorf("overdue spec %q: %w", ms.OverdueSpec, err)
	}
	c.Start()
	ms.cron = c
	ms.running = true

	log.Printf("[Scheduler] Started (expiry=%q overdue=%q)", ms.ExpirySpec, ms.OverdueSpec)
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (ms *MaintenanceScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.running {
		return
	}
	<-ms.cron.Stop().Done()
	ms.running = false
	log.Println("[Scheduler] Stopped")
}

// Entries returns the next run time of each job, expiry first.
func (ms *MaintenanceScheduler) Entries() []time.Time {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.cron == nil {
		return nil
	}
	var next []time.Time
	for _, e := range ms.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

func (ms *MaintenanceScheduler) systemContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), ms.Timeout)
	return studio.WithPrincipal(ctx, studio.SystemPrincipal), cancel
}

// RunExpiry expires client packages past their expiry date.
func (ms *MaintenanceScheduler) RunExpiry() {
	ctx, cancel := ms.systemContext()
	defer cancel()

	n, err := ms.Service.ExpirePackages(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error expiring packages: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Scheduler] Expired %d client packages", n)
	}
}

// RunOverdue marks sent invoices past their due date as overdue.
func (ms *MaintenanceScheduler) RunOverdue() {
	ctx, cancel := ms.systemContext()
	defer cancel()

	n, err := ms.Service.MarkOverdueInvoices(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error marking overdue invoices: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Scheduler] Marked %d invoices overdue", n)
	}
}
