/*
service.go - Studio service wiring

PURPOSE:
  Service is the single entry point for every business operation. It holds
  the repository, the notification side channel, the clock and the billing
  configuration. HTTP handlers and scheduled jobs call Service; nothing else
  writes to the repository.

CALLER IDENTITY:
  Every operation reads the Principal from the context (see access.go) and
  checks a Capability. There is no global "current user".

TRANSACTIONS:
  inTx wraps repository.WithTx in the retry policy, so a lost race or a busy
  database rolls the whole unit back and runs it again.

SEE ALSO:
  - repository.go: persistence contract
  - errors.go: error taxonomy
*/
package studio

import (
	"context"
	"time"

	"github.com/warp/studio-engine/ledger"
)

// Notifier sends transactional messages. Implementations must not block the
// caller and must swallow their own failures.
type Notifier interface {
	Welcome(ctx context.Context, to, name string)
	PasswordChanged(ctx context.Context, to string)
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Welcome(context.Context, string, string) {}
func (NopNotifier) PasswordChanged(context.Context, string) {}

// Config holds the business settings of the service.
type Config struct {
	BalancePolicy ledger.BalancePolicy

	// CancellationWindow is how long before the start a client cancellation
	// is still refund-eligible.
	CancellationWindow time.Duration

	InvoicePrefix  string
	InvoiceDigits  int
	InvoiceDueDays int

	Retry RetryPolicy
}

// DefaultConfig mirrors the studio's standing rules.
func DefaultConfig() Config {
	return Config{
		CancellationWindow: 24 * time.Hour,
		InvoicePrefix:      "INV-",
		InvoiceDigits:      4,
		InvoiceDueDays:     14,
		Retry:              DefaultRetryPolicy,
	}
}

// Service implements the studio operations.
type Service struct {
	repo     TxRepository
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo TxRepository, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: NopNotifier{},
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time { return s.now().UTC() }

func (s *Service) inTx(ctx context.Context, fn func(Repository) error) error {
	return Retry(ctx, s.cfg.Retry, func() error {
		return s.repo.WithTx(ctx, fn)
	})
}

func (s *Service) ledgerFor(r Repository) *ledger.DefaultLedger {
	l := ledger.New(r, s.cfg.BalancePolicy)
	l.Now = s.now
	return l
}
