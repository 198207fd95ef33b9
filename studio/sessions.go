/*
sessions.go - Session booking and lifecycle

STATES:
  scheduled ──► completed
            ├─► cancelled
            └─► no_show

  All three targets are terminal. Asking for the status a session already
  has is an idempotent no-op; any other move out of a terminal state is
  rejected with a TransitionError. Editing a session never touches status.

SIDE EFFECTS:
  scheduled → completed   one package unit consumed (packages.go), in the
                          same transaction as the status change
  scheduled → cancelled   none from staff; portal.go handles the client
                          cancellation refund
  scheduled → no_show     none

  Price capture happens at booking: a session with a direct price and no
  package writes a ledger charge when booked. Completion never touches the
  ledger.

DELETION:
  A session holding a consumed, unrefunded package unit cannot be deleted.
  Staff must call ReverseConsumption first.
*/
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/ledger"
)

// BookSessionInput describes a new booking.
type BookSessionInput struct {
	ClientID        string
	TrainerID       string // defaults to the caller
	ClientPackageID string
	Type            SessionType
	Location        string
	StartsAt        time.Time
	EndsAt          time.Time
	Price           *decimal.Decimal
	Notes           string
}

func (in BookSessionInput) validate() error {
	if in.ClientID == "" {
		return invalid("client_id", "is required")
	}
	if in.Type != "" && !in.Type.Valid() {
		return invalid("type", "must be personal, group or class")
	}
	if in.StartsAt.IsZero() {
		return invalid("starts_at", "is required")
	}
	if !in.EndsAt.After(in.StartsAt) {
		return invalid("ends_at", "must be after starts_at")
	}
	if in.Price != nil && (in.Price.IsNegative() || !wholeCents(*in.Price)) {
		return invalid("price", "must be a non-negative amount with at most 2 decimal places")
	}
	return nil
}

// BookSession creates a scheduled session. A linked package must belong to
// the client, be active, not be expired on the session date and have a unit
// left after the sessions already booked against it.
func (s *Service) BookSession(ctx context.Context, in BookSessionInput) (Session, error) {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return Session{}, err
	}
	if err := in.validate(); err != nil {
		return Session{}, err
	}

	var out Session
	err = s.inTx(ctx, func(r Repository) error {
		client, err := s.visibleClient(ctx, r, p, in.ClientID)
		if err != nil {
			return err
		}
		if client.Status == ClientInactive {
			return invalid("client_id", "client is inactive")
		}
		if in.ClientPackageID != "" {
			if err := s.checkBookable(ctx, r, client.ID, in.ClientPackageID, in.StartsAt); err != nil {
				return err
			}
		}

		now := s.Now()
		sess := Session{
			ID:              uuid.NewString(),
			ClientID:        client.ID,
			TrainerID:       in.TrainerID,
			ClientPackageID: in.ClientPackageID,
			Type:            in.Type,
			Location:        in.Location,
			StartsAt:        in.StartsAt.UTC(),
			EndsAt:          in.EndsAt.UTC(),
			Price:           in.Price,
			Notes:           in.Notes,
			Status:          SessionScheduled,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if sess.TrainerID == "" {
			sess.TrainerID = p.ProfileID
		}
		if sess.Type == "" {
			sess.Type = SessionPersonal
		}
		if err := r.CreateSession(ctx, sess); err != nil {
			return err
		}

		if sess.ClientPackageID == "" && sess.Price != nil && sess.Price.IsPositive() {
			_, err := s.ledgerFor(r).Append(ctx, ledger.Entry{
				ClientID:       client.ID,
				Amount:         ledger.MoneyFromDecimal(sess.Price.Neg()),
				Kind:           ledger.KindCharge,
				Status:         ledger.StatusCompleted,
				SessionID:      sess.ID,
				Reason:         fmt.Sprintf("%s session %s", sess.Type, sess.StartsAt.Format("2006-01-02 15:04")),
				IdempotencyKey: usageKey(sess.ID, "charge"),
				CreatedBy:      p.ProfileID,
			})
			if err != nil {
				return err
			}
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *Service) checkBookable(ctx context.Context, r Repository, clientID, cpID string, at time.Time) error {
	cp, err := r.LockClientPackage(ctx, cpID)
	if err != nil {
		return err
	}
	if cp.ClientID != clientID {
		return invalid("client_package_id", "package belongs to another client")
	}
	if cp.Status == PackageExpired || cp.ExpiredAt(at) {
		return fmt.Errorf("client package %s expired on %s: %w", cp.ID, cp.ExpiryDate.Format("2006-01-02"), ErrPackageExpired)
	}
	if cp.Status != PackageActive {
		return fmt.Errorf("client package %s is %s: %w", cp.ID, cp.Status, ErrPackageInactive)
	}
	booked, err := r.ListSessions(ctx, SessionFilter{ClientPackageID: cp.ID, Status: SessionScheduled})
	if err != nil {
		return err
	}
	if free := cp.SessionsRemaining - len(booked); free <= 0 {
		return &InsufficientSessionsError{ClientPackageID: cp.ID, Remaining: cp.SessionsRemaining}
	}
	return nil
}

func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return Session{}, err
	}
	return s.visibleSession(ctx, s.repo, p, id)
}

func (s *Service) visibleSession(ctx context.Context, r Repository, p Principal, id string) (Session, error) {
	sess, err := r.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.visibleClient(ctx, r, p, sess.ClientID); err != nil {
		return Session{}, notFound("session", id)
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return nil, err
	}
	if f.ClientID != "" {
		if _, err := s.visibleClient(ctx, s.repo, p, f.ClientID); err != nil {
			return nil, err
		}
		return s.repo.ListSessions(ctx, f)
	}
	if p.Role == RoleTrainer {
		f.TrainerID = p.ProfileID
	}
	return s.repo.ListSessions(ctx, f)
}

// SessionDetails are the editable fields of a session. Nil fields are kept.
type SessionDetails struct {
	StartsAt *time.Time
	EndsAt   *time.Time
	Location *string
	Notes    *string
	Type     *SessionType
}

// UpdateSessionDetails edits date, time, location, type or notes. Status is
// never changed here.
func (s *Service) UpdateSessionDetails(ctx context.Context, id string, d SessionDetails) (Session, error) {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return Session{}, err
	}
	var out Session
	err = s.inTx(ctx, func(r Repository) error {
		sess, err := s.visibleSession(ctx, r, p, id)
		if err != nil {
			return err
		}
		if d.StartsAt != nil {
			sess.StartsAt = d.StartsAt.UTC()
		}
		if d.EndsAt != nil {
			sess.EndsAt = d.EndsAt.UTC()
		}
		if d.Location != nil {
			sess.Location = *d.Location
		}
		if d.Notes != nil {
			sess.Notes = *d.Notes
		}
		if d.Type != nil {
			if !d.Type.Valid() {
				return invalid("type", "must be personal, group or class")
			}
			sess.Type = *d.Type
		}
		if !sess.EndsAt.After(sess.StartsAt) {
			return invalid("ends_at", "must be after starts_at")
		}
		if sess.ClientPackageID != "" && sess.Status == SessionScheduled && d.StartsAt != nil {
			cp, err := r.GetClientPackage(ctx, sess.ClientPackageID)
			if err != nil {
				return err
			}
			if cp.ExpiredAt(sess.StartsAt) {
				return fmt.Errorf("client package %s expires before the new date: %w", cp.ID, ErrPackageExpired)
			}
		}
		sess.UpdatedAt = s.Now()
		if err := r.UpdateSession(ctx, sess); err != nil {
			return err
		}
		sess.Version++
		out = sess
		return nil
	})
	return out, err
}

// TransitionResult reports a status change and its side effects.
type TransitionResult struct {
	Session        Session
	AlreadyApplied bool // the session was already in the target status
	Consumed       bool // a package unit was deducted
	Warnings       []Warning
}

func (s *Service) CompleteSession(ctx context.Context, id string) (TransitionResult, error) {
	return s.TransitionSession(ctx, id, SessionCompleted)
}

func (s *Service) CancelSession(ctx context.Context, id string) (TransitionResult, error) {
	return s.TransitionSession(ctx, id, SessionCancelled)
}

func (s *Service) MarkNoShow(ctx context.Context, id string) (TransitionResult, error) {
	return s.TransitionSession(ctx, id, SessionNoShow)
}

// TransitionSession moves a scheduled session to a terminal status and
// applies the side effects in the same transaction.
func (s *Service) TransitionSession(ctx context.Context, id string, to SessionStatus) (TransitionResult, error) {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return TransitionResult{}, err
	}
	if !to.Terminal() {
		return TransitionResult{}, invalid("status", "must be completed, cancelled or no_show")
	}

	var res TransitionResult
	err = s.inTx(ctx, func(r Repository) error {
		res = TransitionResult{}
		sess, err := s.visibleSession(ctx, r, p, id)
		if err != nil {
			return err
		}
		applied, err := s.moveSession(ctx, r, sess, to)
		if err != nil {
			return err
		}
		if !applied {
			res.Session = sess
			res.AlreadyApplied = true
			return nil
		}
		sess.Status = to
		sess.Version++
		res.Session = sess

		if to == SessionCompleted && sess.ClientPackageID != "" {
			warn, err := s.consumeForSession(ctx, r, sess, p.ProfileID)
			if err != nil {
				return err
			}
			if warn != nil {
				res.Warnings = append(res.Warnings, *warn)
			} else {
				res.Consumed = true
			}
		}
		return nil
	})
	return res, err
}

// moveSession performs the guarded status update. It returns false when the
// session is already in the target status.
func (s *Service) moveSession(ctx context.Context, r Repository, sess Session, to SessionStatus) (bool, error) {
	if sess.Status == to {
		return false, nil
	}
	if sess.Status.Terminal() {
		return false, &TransitionError{Kind: "session", ID: sess.ID, From: string(sess.Status), To: string(to)}
	}
	err := r.TransitionSession(ctx, sess.ID, sess.Status, to)
	if errors.Is(err, ErrConcurrentModification) {
		// somebody moved it first; re-read to tell a duplicate from a conflict
		cur, gerr := r.GetSession(ctx, sess.ID)
		if gerr != nil {
			return false, gerr
		}
		if cur.Status == to {
			return false, nil
		}
		return false, &TransitionError{Kind: "session", ID: sess.ID, From: string(cur.Status), To: string(to)}
	}
	return err == nil, err
}

// ReverseConsumption gives back the package unit a completed session used.
// The session keeps its status. Returns false when there was nothing to give back.
func (s *Service) ReverseConsumption(ctx context.Context, id, reason string) (bool, error) {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "consumption reversed"
	}
	var refunded bool
	err = s.inTx(ctx, func(r Repository) error {
		sess, err := s.visibleSession(ctx, r, p, id)
		if err != nil {
			return err
		}
		refunded, err = s.refundForSession(ctx, r, sess, p.ProfileID, reason)
		return err
	})
	return refunded, err
}

// DeleteSession hard-deletes a session that holds no consumed package unit and
// no unreversed ledger entry.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	p, err := Require(ctx, CapManageSessions)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(r Repository) error {
		sess, err := s.visibleSession(ctx, r, p, id)
		if err != nil {
			return err
		}
		usage, err := r.SessionUsage(ctx, sess.ID)
		if err != nil {
			return err
		}
		if netConsumed(usage) > 0 {
			return fmt.Errorf("session %s: %w", sess.ID, ErrSessionConsumed)
		}
		unreversed, err := s.openSessionEntries(ctx, r, sess)
		if err != nil {
			return err
		}
		if len(unreversed) > 0 {
			return fmt.Errorf("session %s: ledger entry %s not reversed: %w", sess.ID, unreversed[0].ID, ErrSessionConsumed)
		}
		return r.DeleteSession(ctx, sess.ID)
	})
}

// openSessionEntries returns the session's ledger entries that still move the
// client balance and have no reversal.
func (s *Service) openSessionEntries(ctx context.Context, r Repository, sess Session) ([]ledger.Entry, error) {
	entries, err := r.ClientEntries(ctx, sess.ClientID)
	if err != nil {
		return nil, err
	}
	reversed := make(map[string]bool)
	for _, e := range entries {
		if e.Kind == ledger.KindReversal {
			reversed[e.Reference] = true
		}
	}
	var open []ledger.Entry
	for _, e := range entries {
		if e.SessionID != sess.ID || e.Kind == ledger.KindReversal || reversed[e.ID] {
			continue
		}
		if s.cfg.BalancePolicy.Counts(e) {
			open = append(open, e)
		}
	}
	return open, nil
}
