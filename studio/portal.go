/*
portal.go - Client self-service

A client principal (role client, CapPortal) is linked to exactly one Client
record through Client.ProfileID. Every portal operation resolves that record
first and only ever touches its own rows.

CANCELLATION WINDOW:
  refund eligible  ⟺  start - now > CancellationWindow   (strict)

  With the default 24h window, cancelling 24h01m ahead is eligible and
  23h59m ahead is not. A late cancellation still cancels; it just refunds
  nothing. An eligible cancellation gives back a package unit only if the
  session had actually consumed one.
*/
package studio

import (
	"context"
	"time"

	"github.com/warp/studio-engine/ledger"
)

// RefundEligible applies the cancellation window.
func RefundEligible(start, now time.Time, window time.Duration) bool {
	return start.Sub(now) > window
}

// CancellationResult reports a portal cancellation.
type CancellationResult struct {
	Session        Session
	RefundEligible bool
	Refunded       bool // a package unit was given back
	AlreadyApplied bool
}

func (s *Service) portalClient(ctx context.Context, r Repository) (Principal, Client, error) {
	p, err := Require(ctx, CapPortal)
	if err != nil {
		return Principal{}, Client{}, err
	}
	c, err := r.GetClientByProfile(ctx, p.ProfileID)
	if err != nil {
		if IsNotFound(err) {
			return p, Client{}, ErrForbidden
		}
		return p, Client{}, err
	}
	return p, c, nil
}

// ClientCancelSession cancels one of the caller's own scheduled sessions.
func (s *Service) ClientCancelSession(ctx context.Context, sessionID string) (CancellationResult, error) {
	var res CancellationResult
	err := s.inTx(ctx, func(r Repository) error {
		res = CancellationResult{}
		p, client, err := s.portalClient(ctx, r)
		if err != nil {
			return err
		}
		sess, err := r.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.ClientID != client.ID {
			return notFound("session", sessionID)
		}
		if !client.AllowSelfCancel {
			return ErrForbidden
		}
		if sess.Status != SessionScheduled && sess.Status != SessionCancelled {
			return &TransitionError{Kind: "session", ID: sess.ID, From: string(sess.Status), To: string(SessionCancelled)}
		}

		res.RefundEligible = RefundEligible(sess.StartsAt, s.Now(), s.cfg.CancellationWindow)
		applied, err := s.moveSession(ctx, r, sess, SessionCancelled)
		if err != nil {
			return err
		}
		if !applied {
			res.Session = sess
			res.AlreadyApplied = true
			return nil
		}
		sess.Status = SessionCancelled
		sess.Version++
		res.Session = sess

		if res.RefundEligible {
			res.Refunded, err = s.refundForSession(ctx, r, sess, p.ProfileID, "cancelled by client")
			if err != nil {
				return err
			}
		}
		return nil
	})
	return res, err
}

// PortalSessions lists the caller's own sessions.
func (s *Service) PortalSessions(ctx context.Context, from, to time.Time) ([]Session, error) {
	_, c, err := s.portalClient(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, SessionFilter{ClientID: c.ID, From: from, To: to})
}

// PortalPackages lists the caller's purchased packages.
func (s *Service) PortalPackages(ctx context.Context) ([]ClientPackage, error) {
	_, c, err := s.portalClient(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	return s.repo.ListClientPackages(ctx, c.ID)
}

// PortalBalance returns the caller's own balance.
func (s *Service) PortalBalance(ctx context.Context) (ledger.Summary, error) {
	_, c, err := s.portalClient(ctx, s.repo)
	if err != nil {
		return ledger.Summary{}, err
	}
	return s.ledgerFor(s.repo).Summary(ctx, c.ID)
}
