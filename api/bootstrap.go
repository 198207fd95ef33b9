package api

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/warp/studio-engine/studio"
)

// BootstrapAdmin makes sure an admin account exists for email. A new account
// is created with password and promoted; an existing one is promoted only if
// it is still a lead, so a deliberate demotion is never undone on restart.
func BootstrapAdmin(ctx context.Context, svc *studio.Service, email, password string) (studio.Profile, error) {
	ctx = studio.WithPrincipal(ctx, studio.SystemPrincipal)

	p, err := svc.SignUp(ctx, studio.SignUpInput{Email: email, Password: password, FullName: "Administrator"})
	switch {
	case errors.Is(err, studio.ErrDuplicate):
		p, err = svc.Authenticate(ctx, email, password)
		if err != nil {
			return studio.Profile{}, fmt.Errorf("admin %s exists with another password: %w", email, err)
		}
		if p.Role != studio.RoleLead {
			return p, nil
		}
	case err != nil:
		return studio.Profile{}, err
	}

	p, err = svc.UpdateRole(ctx, p.ID, studio.RoleAdmin)
	if err != nil {
		return studio.Profile{}, err
	}
	log.Printf("[Bootstrap] Admin account %s ready", p.Email)
	return p, nil
}
