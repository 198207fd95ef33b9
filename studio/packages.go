/*
packages.go - Package catalog, package sales and the consumption rule

SALE (AssignPackage):
  One transaction writes:
    1. ClientPackage with SessionsRemaining = SessionsIncluded,
       ExpiryDate = PurchaseDate + ValidityDays
    2. ledger charge of -price
    3. optional ledger payment
  Either all three exist afterwards or none do.

CONSUMPTION RULE:
  Exactly one unit is deducted when a linked session becomes completed. The
  deduction happens in the same transaction as the status change and is
  recorded in the package usage log under the key "session:<id>:completed".
  A second attempt finds the key and does nothing.

  A package already at zero is never driven negative: the deduction is
  skipped and reported as a Warning.

REFUND:
  The inverse (+1, key "session:<id>:refund") only applies when the session
  actually consumed a unit, and never exceeds SessionsIncluded.
*/
package studio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/ledger"
)

// Warning is a non-fatal condition reported alongside a successful operation.
type Warning struct {
	Code    string
	Message string
}

const WarnPackageExhausted = "package_exhausted"

// =============================================================================
// CATALOG
// =============================================================================

// PackageInput carries the editable catalog fields.
type PackageInput struct {
	Name             string
	Description      string
	Price            decimal.Decimal
	SessionsIncluded int
	ValidityDays     int
	Active           *bool
}

func (in PackageInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	if in.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if !wholeCents(in.Price) {
		return invalid("price", "must have at most 2 decimal places")
	}
	if in.SessionsIncluded <= 0 {
		return invalid("sessions_included", "must be positive")
	}
	if in.ValidityDays <= 0 {
		return invalid("validity_days", "must be positive")
	}
	return nil
}

func (s *Service) CreatePackage(ctx context.Context, in PackageInput) (Package, error) {
	if _, err := Require(ctx, CapManageCatalog); err != nil {
		return Package{}, err
	}
	if err := in.validate(); err != nil {
		return Package{}, err
	}
	now := s.Now()
	p := Package{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
	applyPackageInput(&p, in, now)
	if err := s.repo.SavePackage(ctx, p); err != nil {
		return Package{}, err
	}
	return p, nil
}

func applyPackageInput(p *Package, in PackageInput, now time.Time) {
	p.Name = strings.TrimSpace(in.Name)
	p.Slug = slug.Make(p.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.SessionsIncluded = in.SessionsIncluded
	p.ValidityDays = in.ValidityDays
	p.Active = true
	if in.Active != nil {
		p.Active = *in.Active
	}
	p.UpdatedAt = now
}

// UpdatePackage edits a catalog template. Packages already sold keep their
// own copy of the session count and expiry.
func (s *Service) UpdatePackage(ctx context.Context, id string, in PackageInput) (Package, error) {
	if _, err := Require(ctx, CapManageCatalog); err != nil {
		return Package{}, err
	}
	if err := in.validate(); err != nil {
		return Package{}, err
	}
	var out Package
	err := s.inTx(ctx, func(r Repository) error {
		p, err := r.GetPackage(ctx, id)
		if err != nil {
			return err
		}
		applyPackageInput(&p, in, s.Now())
		out = p
		return r.SavePackage(ctx, p)
	})
	return out, err
}

// GetPackage is readable by any authenticated caller.
func (s *Service) GetPackage(ctx context.Context, id string) (Package, error) {
	if _, ok := PrincipalFrom(ctx); !ok {
		return Package{}, ErrUnauthorized
	}
	return s.repo.GetPackage(ctx, id)
}

func (s *Service) ListPackages(ctx context.Context, activeOnly bool) ([]Package, error) {
	if _, ok := PrincipalFrom(ctx); !ok {
		return nil, ErrUnauthorized
	}
	return s.repo.ListPackages(ctx, activeOnly)
}

// DeletePackage removes a catalog template that was never sold.
func (s *Service) DeletePackage(ctx context.Context, id string) error {
	if _, err := Require(ctx, CapManageCatalog); err != nil {
		return err
	}
	return s.inTx(ctx, func(r Repository) error {
		if _, err := r.GetPackage(ctx, id); err != nil {
			return err
		}
		n, err := r.CountClientPackages(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("package %s sold %d times: %w", id, n, ErrPackageInUse)
		}
		return r.DeletePackage(ctx, id)
	})
}

// =============================================================================
// SALE
// =============================================================================

// PaymentInput describes money received.
type PaymentInput struct {
	Amount decimal.Decimal
	Method string
	Status ledger.EntryStatus // defaults to completed
	Reason string
}

// AssignPackageInput sells a catalog package to a client.
type AssignPackageInput struct {
	ClientID     string
	PackageID    string
	PurchaseDate time.Time        // defaults to now
	Price        *decimal.Decimal // overrides the catalog price
	Payment      *PaymentInput
}

// AssignmentResult is everything a sale wrote.
type AssignmentResult struct {
	ClientPackage ClientPackage
	Charge        *ledger.Entry
	Payment       *ledger.Entry
}

// AssignPackage sells a package: client package, charge and optional payment
// are written in one transaction.
func (s *Service) AssignPackage(ctx context.Context, in AssignPackageInput) (AssignmentResult, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return AssignmentResult{}, err
	}
	if in.Payment != nil {
		if err := in.Payment.validate(); err != nil {
			return AssignmentResult{}, err
		}
	}
	if in.Price != nil && (in.Price.IsNegative() || !wholeCents(*in.Price)) {
		return AssignmentResult{}, invalid("price", "must be a non-negative amount with at most 2 decimal places")
	}

	var res AssignmentResult
	err = s.inTx(ctx, func(r Repository) error {
		res = AssignmentResult{}
		client, err := s.visibleClient(ctx, r, p, in.ClientID)
		if err != nil {
			return err
		}
		pkg, err := r.GetPackage(ctx, in.PackageID)
		if err != nil {
			return err
		}
		if !pkg.Active {
			return invalid("package_id", "package is not on sale")
		}

		now := s.Now()
		purchase := in.PurchaseDate
		if purchase.IsZero() {
			purchase = now
		}
		cp := ClientPackage{
			ID:                uuid.NewString(),
			ClientID:          client.ID,
			PackageID:         pkg.ID,
			PackageName:       pkg.Name,
			SessionsIncluded:  pkg.SessionsIncluded,
			SessionsRemaining: pkg.SessionsIncluded,
			PurchaseDate:      purchase.UTC(),
			ExpiryDate:        purchase.UTC().AddDate(0, 0, pkg.ValidityDays),
			Status:            PackageActive,
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := r.CreateClientPackage(ctx, cp); err != nil {
			return err
		}
		res.ClientPackage = cp

		price := pkg.Price
		if in.Price != nil {
			price = *in.Price
		}

		var entries []ledger.Entry
		if price.IsPositive() {
			entries = append(entries, ledger.Entry{
				ClientID:        client.ID,
				Amount:          ledger.MoneyFromDecimal(price.Neg()),
				Kind:            ledger.KindCharge,
				Status:          ledger.StatusCompleted,
				ClientPackageID: cp.ID,
				Reason:          "package: " + pkg.Name,
				IdempotencyKey:  "client-package:" + cp.ID + ":charge",
				CreatedBy:       p.ProfileID,
			})
		}
		if in.Payment != nil {
			entries = append(entries, in.Payment.entry(client.ID, p.ProfileID, func(e *ledger.Entry) {
				e.ClientPackageID = cp.ID
				e.IdempotencyKey = "client-package:" + cp.ID + ":payment"
			}))
		}
		if len(entries) == 0 {
			return nil
		}

		written, err := s.ledgerFor(r).AppendBatch(ctx, entries)
		if err != nil {
			return err
		}
		for i := range written {
			e := written[i]
			if e.Kind == ledger.KindCharge {
				res.Charge = &e
			} else {
				res.Payment = &e
			}
		}
		return nil
	})
	return res, err
}

// =============================================================================
// CLIENT PACKAGES
// =============================================================================

func (s *Service) ListClientPackages(ctx context.Context, clientID string) ([]ClientPackage, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleClient(ctx, s.repo, p, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListClientPackages(ctx, clientID)
}

func (s *Service) GetClientPackage(ctx context.Context, id string) (ClientPackage, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return ClientPackage{}, err
	}
	cp, err := s.repo.GetClientPackage(ctx, id)
	if err != nil {
		return ClientPackage{}, err
	}
	if _, err := s.visibleClient(ctx, s.repo, p, cp.ClientID); err != nil {
		return ClientPackage{}, notFound("client package", id)
	}
	return cp, nil
}

// PackageUsageHistory lists every counter movement of a client package.
func (s *Service) PackageUsageHistory(ctx context.Context, clientPackageID string) ([]PackageUsage, error) {
	if _, err := s.GetClientPackage(ctx, clientPackageID); err != nil {
		return nil, err
	}
	return s.repo.ListPackageUsage(ctx, clientPackageID)
}

// CancelClientPackage is the manual cancellation of an active package.
func (s *Service) CancelClientPackage(ctx context.Context, id string) (ClientPackage, error) {
	p, err := Require(ctx, CapManageBilling)
	if err != nil {
		return ClientPackage{}, err
	}
	var out ClientPackage
	err = s.inTx(ctx, func(r Repository) error {
		cp, err := r.LockClientPackage(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.visibleClient(ctx, r, p, cp.ClientID); err != nil {
			return notFound("client package", id)
		}
		if cp.Status == PackageCancelled {
			out = cp
			return nil
		}
		if cp.Status != PackageActive {
			return fmt.Errorf("client package %s is %s: %w", id, cp.Status, ErrPackageInactive)
		}
		if err := r.SetClientPackageStatus(ctx, id, PackageCancelled, cp.Version); err != nil {
			return err
		}
		cp.Status = PackageCancelled
		cp.Version++
		out = cp
		return nil
	})
	return out, err
}

// ExpirePackages marks active packages past their expiry date as expired.
// Returns how many packages changed.
func (s *Service) ExpirePackages(ctx context.Context) (int, error) {
	if _, err := Require(ctx, CapManageBilling); err != nil {
		return 0, err
	}
	candidates, err := s.repo.ListExpirablePackages(ctx, s.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, cp := range candidates {
		err := s.inTx(ctx, func(r Repository) error {
			return r.SetClientPackageStatus(ctx, cp.ID, PackageExpired, cp.Version)
		})
		switch {
		case err == nil:
			expired++
		case IsRetryable(err):
			// changed underneath us; the next sweep sees the new version
		default:
			return expired, err
		}
	}
	return expired, nil
}

// =============================================================================
// CONSUMPTION RULE
// =============================================================================

func usageKey(sessionID, action string) string {
	return "session:" + sessionID + ":" + action
}

// consumeForSession deducts one unit for a completed session. Must run inside
// the transaction that completed the session.
func (s *Service) consumeForSession(ctx context.Context, r Repository, sess Session, actor string) (*Warning, error) {
	key := usageKey(sess.ID, string(SessionCompleted))
	done, err := r.PackageUsageExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	cp, err := r.LockClientPackage(ctx, sess.ClientPackageID)
	if err != nil {
		return nil, err
	}
	_, applied, err := r.AdjustSessionsRemaining(ctx, cp.ID, -1)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &Warning{
			Code:    WarnPackageExhausted,
			Message: fmt.Sprintf("client package %s has no sessions left; nothing was deducted", cp.ID),
		}, nil
	}
	return nil, r.AppendPackageUsage(ctx, PackageUsage{
		ID:              uuid.NewString(),
		ClientPackageID: cp.ID,
		SessionID:       sess.ID,
		Delta:           -1,
		Reason:          "session completed",
		IdempotencyKey:  key,
		CreatedBy:       actor,
		CreatedAt:       s.Now(),
	})
}

// netConsumed is how many units a session currently holds.
func netConsumed(usage []PackageUsage) int {
	n := 0
	for _, u := range usage {
		n -= u.Delta
	}
	return n
}

// refundForSession gives back the unit a session consumed, if any.
func (s *Service) refundForSession(ctx context.Context, r Repository, sess Session, actor, reason string) (bool, error) {
	if sess.ClientPackageID == "" {
		return false, nil
	}
	usage, err := r.SessionUsage(ctx, sess.ID)
	if err != nil {
		return false, err
	}
	if netConsumed(usage) <= 0 {
		return false, nil
	}

	cp, err := r.LockClientPackage(ctx, sess.ClientPackageID)
	if err != nil {
		return false, err
	}
	_, applied, err := r.AdjustSessionsRemaining(ctx, cp.ID, +1)
	if err != nil || !applied {
		return false, err
	}
	err = r.AppendPackageUsage(ctx, PackageUsage{
		ID:              uuid.NewString(),
		ClientPackageID: cp.ID,
		SessionID:       sess.ID,
		Delta:           +1,
		Reason:          reason,
		IdempotencyKey:  usageKey(sess.ID, "refund"),
		CreatedBy:       actor,
		CreatedAt:       s.Now(),
	})
	return err == nil, err
}
