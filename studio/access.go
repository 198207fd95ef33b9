package studio

import (
	"context"
	"strings"
)

// =============================================================================
// ROLES AND CAPABILITIES
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client"
	RoleLead    Role = "lead"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTrainer, RoleClient, RoleLead:
		return true
	}
	return false
}

// IsStaff reports whether the role works on behalf of the studio.
func (r Role) IsStaff() bool { return r == RoleAdmin || r == RoleTrainer }

// Capability is one permission. Capabilities combine into a bit set so every
// check names a constant the compiler knows about.
type Capability uint32

const (
	CapManageClients Capability = 1 << iota
	CapManageCatalog
	CapManageSessions
	CapManageBilling
	CapManageInvoices
	CapManageExpenses
	CapViewReports
	CapManageProfiles
	CapPortal
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapManageClients, "manage_clients"},
	{CapManageCatalog, "manage_catalog"},
	{CapManageSessions, "manage_sessions"},
	{CapManageBilling, "manage_billing"},
	{CapManageInvoices, "manage_invoices"},
	{CapManageExpenses, "manage_expenses"},
	{CapViewReports, "view_reports"},
	{CapManageProfiles, "manage_profiles"},
	{CapPortal, "portal"},
}

// CapabilitySet is a union of capabilities.
type CapabilitySet Capability

func Caps(cs ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range cs {
		s |= CapabilitySet(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool { return s&CapabilitySet(c) == CapabilitySet(c) }

// Names lists the capabilities in the set, for API responses.
func (s CapabilitySet) Names() []string {
	var out []string
	for _, cn := range capabilityNames {
		if s.Has(cn.c) {
			out = append(out, cn.name)
		}
	}
	return out
}

func (s CapabilitySet) String() string { return strings.Join(s.Names(), ",") }

var roleCapabilities = map[Role]CapabilitySet{
	RoleAdmin: Caps(CapManageClients, CapManageCatalog, CapManageSessions, CapManageBilling,
		CapManageInvoices, CapManageExpenses, CapViewReports, CapManageProfiles),
	RoleTrainer: Caps(CapManageClients, CapManageSessions, CapManageBilling),
	RoleClient:  Caps(CapPortal),
	RoleLead:    0,
}

// CapabilitiesFor returns the capability set granted to a role.
func CapabilitiesFor(r Role) CapabilitySet { return roleCapabilities[r] }

// =============================================================================
// PRINCIPAL - Explicit caller identity, passed through context
// =============================================================================

// Principal is the authenticated caller of an operation.
type Principal struct {
	ProfileID string
	Email     string
	Role      Role
	Caps      CapabilitySet
}

// NewPrincipal builds a principal with the role's capabilities.
func NewPrincipal(p Profile) Principal {
	return Principal{ProfileID: p.ID, Email: p.Email, Role: p.Role, Caps: CapabilitiesFor(p.Role)}
}

// SystemPrincipal is used by scheduled jobs and seeding.
var SystemPrincipal = Principal{ProfileID: "system", Role: RoleAdmin, Caps: CapabilitiesFor(RoleAdmin)}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Require returns the caller if it holds capability c.
func Require(ctx context.Context, c Capability) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.ProfileID == "" {
		return Principal{}, ErrUnauthorized
	}
	if !p.Caps.Has(c) {
		return p, ErrForbidden
	}
	return p, nil
}
