/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Timeout:    Cancels the request context after RequestTimeout
  5. CORS:       Cross-origin requests for the frontend
  6. RequireAuth (protected group only): bearer token -> principal

ROUTE GROUPS:
  /api/health, /api/auth/signup, /api/auth/login   public
  /api/scenarios/*                                 public, demo mode only
  everything else under /api                       bearer token required

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	EnableDemo     bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/login", h.Login)

		if opts.EnableDemo {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Post("/auth/password", h.ChangePassword)
			r.Get("/me", h.Me)

			// Client routes
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.CreateClient)
				r.Get("/{id}", h.GetClient)
				r.Put("/{id}", h.UpdateClient)
				r.Post("/{id}/status", h.SetClientStatus)
				r.Post("/{id}/link", h.LinkClientProfile)
				r.Get("/{id}/packages", h.ListClientPackages)
				r.Post("/{id}/packages", h.AssignPackage)
				r.Get("/{id}/balance", h.GetBalance)
				r.Get("/{id}/statement", h.GetStatement)
				r.Post("/{id}/payments", h.RecordPayment)
				r.Post("/{id}/charges", h.RecordCharge)
			})

			// Catalog routes
			r.Route("/packages", func(r chi.Router) {
				r.Get("/", h.ListPackages)
				r.Post("/", h.CreatePackage)
				r.Get("/{id}", h.GetPackage)
				r.Put("/{id}", h.UpdatePackage)
				r.Delete("/{id}", h.DeletePackage)
			})

			r.Route("/client-packages", func(r chi.Router) {
				r.Get("/{id}", h.GetClientPackage)
				r.Get("/{id}/usage", h.PackageUsage)
				r.Post("/{id}/cancel", h.CancelClientPackage)
			})

			// Session routes
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.ListSessions)
				r.Post("/", h.BookSession)
				r.Get("/{id}", h.GetSession)
				r.Patch("/{id}", h.UpdateSession)
				r.Delete("/{id}", h.DeleteSession)
				r.Post("/{id}/complete", h.CompleteSession)
				r.Post("/{id}/cancel", h.CancelSession)
				r.Post("/{id}/no-show", h.MarkNoShow)
				r.Post("/{id}/reverse-consumption", h.ReverseConsumption)
			})

			// Ledger routes
			r.Post("/payments/{id}/confirm", h.ConfirmPayment)
			r.Post("/payments/{id}/fail", h.FailPayment)
			r.Post("/entries/{id}/reverse", h.ReverseEntry)

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.ListInvoices)
				r.Post("/", h.CreateInvoice)
				r.Get("/{id}", h.GetInvoice)
				r.Post("/{id}/status", h.UpdateInvoiceStatus)
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", h.ListExpenses)
				r.Post("/", h.CreateExpense)
				r.Put("/{id}", h.UpdateExpense)
				r.Delete("/{id}", h.DeleteExpense)
			})

			r.Get("/reports/profit-loss", h.ProfitAndLoss)

			// Portal routes (client accounts)
			r.Route("/portal", func(r chi.Router) {
				r.Get("/sessions", h.PortalSessions)
				r.Post("/sessions/{id}/cancel", h.PortalCancelSession)
				r.Get("/packages", h.PortalPackages)
				r.Get("/balance", h.PortalBalance)
			})

			// Admin routes
			r.Get("/profiles/{id}", h.GetProfile)
			r.Put("/profiles/{id}/role", h.UpdateRole)
			r.Post("/admin/sweep", h.Sweep)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}
