package studio

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ClientInput carries the editable client fields.
type ClientInput struct {
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Notes           string
	Status          ClientStatus
	AllowSelfCancel bool
}

func (in ClientInput) validate() error {
	if strings.TrimSpace(in.FirstName) == "" {
		return invalid("first_name", "is required")
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return invalid("email", "is not an email address")
	}
	if in.Status != "" && !in.Status.Valid() {
		return invalid("status", "must be lead, active or inactive")
	}
	return nil
}

// CreateClient records a new client owned by the calling staff member and
// sends a welcome email when an address is known.
func (s *Service) CreateClient(ctx context.Context, in ClientInput) (Client, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return Client{}, err
	}
	if err := in.validate(); err != nil {
		return Client{}, err
	}

	now := s.Now()
	c := Client{
		ID:              uuid.NewString(),
		OwnerID:         p.ProfileID,
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           in.Phone,
		Notes:           in.Notes,
		Status:          in.Status,
		AllowSelfCancel: in.AllowSelfCancel,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if c.Status == "" {
		c.Status = ClientLead
	}
	if err := s.repo.CreateClient(ctx, c); err != nil {
		return Client{}, err
	}

	if c.Email != "" {
		s.notifier.Welcome(ctx, c.Email, c.FullName())
	}
	return c, nil
}

// GetClient returns a client visible to the caller. Trainers only see the
// clients they own; others are reported as not found.
func (s *Service) GetClient(ctx context.Context, id string) (Client, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return Client{}, err
	}
	return s.visibleClient(ctx, s.repo, p, id)
}

func (s *Service) visibleClient(ctx context.Context, r Repository, p Principal, id string) (Client, error) {
	c, err := r.GetClient(ctx, id)
	if err != nil {
		return Client{}, err
	}
	if p.Role == RoleTrainer && c.OwnerID != p.ProfileID {
		return Client{}, notFound("client", id)
	}
	return c, nil
}

func (s *Service) ListClients(ctx context.Context, f ClientFilter) ([]Client, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return nil, err
	}
	if p.Role == RoleTrainer {
		f.OwnerID = p.ProfileID
	}
	return s.repo.ListClients(ctx, f)
}

// UpdateClient replaces the editable fields. An empty status keeps the current one.
func (s *Service) UpdateClient(ctx context.Context, id string, in ClientInput) (Client, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return Client{}, err
	}
	if err := in.validate(); err != nil {
		return Client{}, err
	}

	var out Client
	err = s.inTx(ctx, func(r Repository) error {
		c, err := s.visibleClient(ctx, r, p, id)
		if err != nil {
			return err
		}
		c.FirstName = strings.TrimSpace(in.FirstName)
		c.LastName = strings.TrimSpace(in.LastName)
		c.Email = strings.ToLower(strings.TrimSpace(in.Email))
		c.Phone = in.Phone
		c.Notes = in.Notes
		c.AllowSelfCancel = in.AllowSelfCancel
		if in.Status != "" {
			c.Status = in.Status
		}
		c.UpdatedAt = s.Now()
		out = c
		return r.UpdateClient(ctx, c)
	})
	return out, err
}

// SetClientStatus is the soft lifecycle change (lead, active, inactive).
func (s *Service) SetClientStatus(ctx context.Context, id string, status ClientStatus) (Client, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return Client{}, err
	}
	if !status.Valid() {
		return Client{}, invalid("status", "must be lead, active or inactive")
	}

	var out Client
	err = s.inTx(ctx, func(r Repository) error {
		c, err := s.visibleClient(ctx, r, p, id)
		if err != nil {
			return err
		}
		c.Status = status
		c.UpdatedAt = s.Now()
		out = c
		return r.UpdateClient(ctx, c)
	})
	return out, err
}

// LinkClientProfile attaches a portal account to a client record.
func (s *Service) LinkClientProfile(ctx context.Context, clientID, profileID string) (Client, error) {
	p, err := Require(ctx, CapManageClients)
	if err != nil {
		return Client{}, err
	}

	var out Client
	err = s.inTx(ctx, func(r Repository) error {
		c, err := s.visibleClient(ctx, r, p, clientID)
		if err != nil {
			return err
		}
		prof, err := r.GetProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if prof.Role != RoleClient && prof.Role != RoleLead {
			return invalid("profile_id", "profile is not a client account")
		}
		c.ProfileID = prof.ID
		c.UpdatedAt = s.Now()
		out = c
		return r.UpdateClient(ctx, c)
	})
	return out, err
}
