/*
profiles.go - Accounts, passwords and roles

SIGN-UP:
  The profile row is written together with the account. EnsureProfile is the
  fallback for accounts that authenticated before their profile existed: it
  inserts the missing row with the default role instead of failing.

PASSWORDS:
  Stored as bcrypt hashes. Authenticate never says which half of the
  credentials was wrong.
*/
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// SignUpInput creates an account. New accounts default to the lead role.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func hashPassword(plain string) (string, error) {
	if len(plain) < minPasswordLen {
		return "", invalid("password", "must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// SignUp registers a new account and sends the welcome email.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Profile, error) {
	email := normalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return Profile{}, invalid("email", "is not an email address")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return Profile{}, err
	}

	now := s.Now()
	p := Profile{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         RoleLead,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.inTx(ctx, func(r Repository) error {
		if _, err := r.GetProfileByEmail(ctx, email); err == nil {
			return fmt.Errorf("email %s: %w", email, ErrDuplicate)
		} else if !IsNotFound(err) {
			return err
		}
		return r.CreateProfile(ctx, p)
	})
	if err != nil {
		return Profile{}, err
	}
	s.notifier.Welcome(ctx, p.Email, p.FullName)
	return p, nil
}

// EnsureProfile returns the profile for id, inserting a lead profile when
// the row is missing.
func (s *Service) EnsureProfile(ctx context.Context, id, email string) (Profile, error) {
	var out Profile
	err := s.inTx(ctx, func(r Repository) error {
		p, err := r.GetProfile(ctx, id)
		if err == nil {
			out = p
			return nil
		}
		if !IsNotFound(err) {
			return err
		}
		now := s.Now()
		out = Profile{ID: id, Email: normalizeEmail(email), Role: RoleLead, CreatedAt: now, UpdatedAt: now}
		return r.CreateProfile(ctx, out)
	})
	return out, err
}

// Authenticate checks credentials and returns the matching profile.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Profile, error) {
	p, err := s.repo.GetProfileByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			return Profile{}, ErrUnauthorized
		}
		return Profile{}, err
	}
	if p.PasswordHash == "" {
		return Profile{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Profile{}, ErrUnauthorized
		}
		return Profile{}, err
	}
	return p, nil
}

// Me returns the caller's own profile.
func (s *Service) Me(ctx context.Context) (Profile, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.ProfileID == "" {
		return Profile{}, ErrUnauthorized
	}
	return s.EnsureProfile(ctx, p.ProfileID, p.Email)
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	caller, ok := PrincipalFrom(ctx)
	if !ok || caller.ProfileID == "" {
		return ErrUnauthorized
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	var email string
	err = s.inTx(ctx, func(r Repository) error {
		p, err := r.GetProfile(ctx, caller.ProfileID)
		if err != nil {
			return err
		}
		if p.PasswordHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(oldPassword)) != nil {
				return ErrUnauthorized
			}
		}
		p.PasswordHash = hash
		p.UpdatedAt = s.Now()
		email = p.Email
		return r.UpdateProfile(ctx, p)
	})
	if err != nil {
		return err
	}
	if email != "" {
		s.notifier.PasswordChanged(ctx, email)
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (Profile, error) {
	if _, err := Require(ctx, CapManageProfiles); err != nil {
		return Profile{}, err
	}
	return s.repo.GetProfile(ctx, id)
}

// UpdateRole changes the role of an account. Admins cannot demote themselves.
func (s *Service) UpdateRole(ctx context.Context, id string, role Role) (Profile, error) {
	caller, err := Require(ctx, CapManageProfiles)
	if err != nil {
		return Profile{}, err
	}
	if !role.Valid() {
		return Profile{}, invalid("role", "must be admin, trainer, client or lead")
	}
	if id == caller.ProfileID && role != RoleAdmin {
		return Profile{}, invalid("role", "cannot demote yourself")
	}

	var out Profile
	err = s.inTx(ctx, func(r Repository) error {
		p, err := r.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		p.Role = role
		p.UpdatedAt = s.Now()
		out = p
		return r.UpdateProfile(ctx, p)
	})
	return out, err
}
