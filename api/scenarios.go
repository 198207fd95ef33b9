/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario goes through studio.Service exactly like a
	user would, so every invariant holds for the seeded data.

AVAILABLE SCENARIOS:

	prepaid-package:  10-session package paid in full, 3 sessions completed
	portal-client:    Client with a portal login and two upcoming sessions,
	                  one inside and one outside the cancellation window
	invoicing:        Sent invoice past its due date, a paid one, expenses

HOW SCENARIOS WORK:
 1. Find or create the catalog packages they need
 2. Create the client (and portal account)
 3. Sell packages, book sessions, record payments
 4. Drive sessions through their lifecycle

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "prepaid-package"}

NOTE:

	Scenarios add data, they never delete. Loading twice creates a second
	client, except portal-client which reuses its linked client. Only
	exposed when server.enable_demo is set.

SEE ALSO:
  - handlers.go: Shared helpers
  - catalog/presets.go: Starter packages
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/catalog"
	"github.com/warp/studio-engine/ledger"
	"github.com/warp/studio-engine/studio"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "prepaid-package",
		Name:        "Prepaid Package",
		Description: "Ten-session package paid in full, three sessions completed: 7 left, balance 0",
	},
	{
		ID:          "portal-client",
		Name:        "Portal Client",
		Description: "Client with portal login; one session cancellable with refund, one without",
	},
	{
		ID:          "invoicing",
		Name:        "Invoicing",
		Description: "Overdue invoice, paid invoice and a month of expenses",
	},
}

// ScenarioResult names what a scenario created.
type ScenarioResult struct {
	ScenarioID string            `json:"scenario_id"`
	ClientID   string            `json:"client_id"`
	Created    map[string]string `json:"created,omitempty"`
}

// PortalDemoEmail and PortalDemoPassword log into the portal-client scenario.
const (
	PortalDemoEmail    = "portal@demo.studio"
	PortalDemoPassword = "demo-password"
)

// LoadScenario seeds scenario id through svc as the system principal.
func LoadScenario(ctx context.Context, svc *studio.Service, id string) (ScenarioResult, error) {
	ctx = studio.WithPrincipal(ctx, studio.SystemPrincipal)
	switch id {
	case "prepaid-package":
		return loadPrepaidScenario(ctx, svc)
	case "portal-client":
		return loadPortalScenario(ctx, svc)
	case "invoicing":
		return loadInvoicingScenario(ctx, svc)
	}
	return ScenarioResult{}, &studio.NotFoundError{Kind: "scenario", ID: id}
}

// ListScenarios handles GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario handles GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario handles POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := LoadScenario(r.Context(), h.Service, req.ScenarioID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	writeJSON(w, http.StatusCreated, res)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadPrepaidScenario(ctx context.Context, svc *studio.Service) (ScenarioResult, error) {
	pkg, err := presetPackage(ctx, svc, "ten-pack")
	if err != nil {
		return ScenarioResult{}, err
	}
	client, err := svc.CreateClient(ctx, studio.ClientInput{
		FirstName: "Carla",
		LastName:  "Demo",
		Email:     "carla@demo.studio",
		Status:    studio.ClientActive,
	})
	if err != nil {
		return ScenarioResult{}, err
	}

	day := startOfDay(svc.Now())
	sale, err := svc.AssignPackage(ctx, studio.AssignPackageInput{
		ClientID:     client.ID,
		PackageID:    pkg.ID,
		PurchaseDate: day.AddDate(0, 0, -7),
		Payment:      &studio.PaymentInput{Amount: pkg.Price, Method: "card"},
	})
	if err != nil {
		return ScenarioResult{}, err
	}

	for i := 3; i >= 1; i-- {
		start := day.AddDate(0, 0, -i).Add(9 * time.Hour)
		sess, err := svc.BookSession(ctx, studio.BookSessionInput{
			ClientID:        client.ID,
			TrainerID:       studio.SystemPrincipal.ProfileID,
			ClientPackageID: sale.ClientPackage.ID,
			Type:            studio.SessionPersonal,
			Location:        "Studio A",
			StartsAt:        start,
			EndsAt:          start.Add(time.Hour),
		})
		if err != nil {
			return ScenarioResult{}, err
		}
		if _, err := svc.CompleteSession(ctx, sess.ID); err != nil {
			return ScenarioResult{}, err
		}
	}

	return ScenarioResult{
		ScenarioID: "prepaid-package",
		ClientID:   client.ID,
		Created:    map[string]string{"client_package_id": sale.ClientPackage.ID},
	}, nil
}

func loadPortalScenario(ctx context.Context, svc *studio.Service) (ScenarioResult, error) {
	profile, err := svc.SignUp(ctx, studio.SignUpInput{
		Email:    PortalDemoEmail,
		Password: PortalDemoPassword,
		FullName: "Paula Portal",
	})
	if errors.Is(err, studio.ErrDuplicate) {
		profile, err = svc.Authenticate(ctx, PortalDemoEmail, PortalDemoPassword)
	}
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("portal account: %w", err)
	}
	if _, err := svc.UpdateRole(ctx, profile.ID, studio.RoleClient); err != nil {
		return ScenarioResult{}, err
	}

	client, err := portalDemoClient(ctx, svc, profile.ID)
	if err != nil {
		return ScenarioResult{}, err
	}

	pkg, err := presetPackage(ctx, svc, "five-pack")
	if err != nil {
		return ScenarioResult{}, err
	}
	sale, err := svc.AssignPackage(ctx, studio.AssignPackageInput{ClientID: client.ID, PackageID: pkg.ID})
	if err != nil {
		return ScenarioResult{}, err
	}

	// Outside the cancellation window: refundable. Inside: not.
	window := svc.Config().CancellationWindow
	now := svc.Now().Truncate(time.Minute)
	created := map[string]string{"profile_id": profile.ID, "client_package_id": sale.ClientPackage.ID}
	for name, start := range map[string]time.Time{
		"refundable_session_id":     now.Add(window + 24*time.Hour),
		"non_refundable_session_id": now.Add(window / 2),
	} {
		sess, err := svc.BookSession(ctx, studio.BookSessionInput{
			ClientID:        client.ID,
			TrainerID:       studio.SystemPrincipal.ProfileID,
			ClientPackageID: sale.ClientPackage.ID,
			Type:            studio.SessionPersonal,
			StartsAt:        start,
			EndsAt:          start.Add(time.Hour),
		})
		if err != nil {
			return ScenarioResult{}, err
		}
		created[name] = sess.ID
	}

	return ScenarioResult{ScenarioID: "portal-client", ClientID: client.ID, Created: created}, nil
}

// portalDemoClient returns the client linked to profileID, creating and
// linking it on first load. A profile links to at most one client.
func portalDemoClient(ctx context.Context, svc *studio.Service, profileID string) (studio.Client, error) {
	existing, err := svc.ListClients(ctx, studio.ClientFilter{Search: PortalDemoEmail})
	if err != nil {
		return studio.Client{}, err
	}
	for _, c := range existing {
		if c.ProfileID == profileID {
			return c, nil
		}
	}
	client, err := svc.CreateClient(ctx, studio.ClientInput{
		FirstName:       "Paula",
		LastName:        "Portal",
		Email:           PortalDemoEmail,
		Status:          studio.ClientActive,
		AllowSelfCancel: true,
	})
	if err != nil {
		return studio.Client{}, err
	}
	return svc.LinkClientProfile(ctx, client.ID, profileID)
}

func loadInvoicingScenario(ctx context.Context, svc *studio.Service) (ScenarioResult, error) {
	client, err := svc.CreateClient(ctx, studio.ClientInput{
		FirstName: "Ivan",
		LastName:  "Invoice",
		Email:     "ivan@demo.studio",
		Status:    studio.ClientActive,
	})
	if err != nil {
		return ScenarioResult{}, err
	}

	today := startOfDay(svc.Now())
	overdue, err := svc.CreateInvoice(ctx, studio.InvoiceInput{
		ClientID:  client.ID,
		IssueDate: today.AddDate(0, 0, -30),
		DueDate:   today.AddDate(0, 0, -16),
		Items: []studio.LineItem{
			{Description: "Personal training (March)", Quantity: 4, UnitPrice: decimal.NewFromInt(80)},
		},
	})
	if err != nil {
		return ScenarioResult{}, err
	}
	if _, err := svc.UpdateInvoiceStatus(ctx, overdue.ID, studio.InvoiceSent); err != nil {
		return ScenarioResult{}, err
	}
	if _, err := svc.MarkOverdueInvoices(ctx); err != nil {
		return ScenarioResult{}, err
	}

	paid, err := svc.CreateInvoice(ctx, studio.InvoiceInput{
		ClientID: client.ID,
		Amount:   decimal.NewFromInt(150),
		Tax:      decimal.RequireFromString("31.50"),
		Notes:    "Nutrition plan",
	})
	if err != nil {
		return ScenarioResult{}, err
	}
	for _, to := range []studio.InvoiceStatus{studio.InvoiceSent, studio.InvoicePaid} {
		if _, err := svc.UpdateInvoiceStatus(ctx, paid.ID, to); err != nil {
			return ScenarioResult{}, err
		}
	}
	if _, err := svc.RecordPayment(ctx, client.ID, studio.PaymentInput{
		Amount: decimal.RequireFromString("181.50"),
		Method: "transfer",
		Status: ledger.StatusCompleted,
		Reason: "invoice " + paid.Number,
	}); err != nil {
		return ScenarioResult{}, err
	}

	for _, e := range []studio.ExpenseInput{
		{Category: "rent", Vendor: "Landlord", Amount: decimal.NewFromInt(1200), Recurring: true, Status: studio.ExpensePaid},
		{Category: "equipment", Vendor: "Gym Supply", Description: "Kettlebells", Amount: decimal.RequireFromString("349.90"), TaxDeductible: true, Status: studio.ExpensePaid},
		{Category: "software", Vendor: "Booking SaaS", Amount: decimal.NewFromInt(29), Recurring: true, Status: studio.ExpensePending},
	} {
		e.Date = today
		if _, err := svc.CreateExpense(ctx, e); err != nil {
			return ScenarioResult{}, err
		}
	}

	return ScenarioResult{
		ScenarioID: "invoicing",
		ClientID:   client.ID,
		Created:    map[string]string{"overdue_invoice": overdue.Number, "paid_invoice": paid.Number},
	}, nil
}

// presetPackage returns the catalog package with slug, creating it from the
// presets when missing.
func presetPackage(ctx context.Context, svc *studio.Service, slug string) (studio.Package, error) {
	if _, err := catalog.Seed(ctx, svc, catalog.Presets()); err != nil {
		return studio.Package{}, err
	}
	pkgs, err := svc.ListPackages(ctx, true)
	if err != nil {
		return studio.Package{}, err
	}
	for _, p := range pkgs {
		if p.Slug == slug {
			return p, nil
		}
	}
	return studio.Package{}, &studio.NotFoundError{Kind: "package", ID: slug}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
