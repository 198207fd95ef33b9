/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the studio engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Open the store (SQLite or PostgreSQL) and migrate
  3. Start the notification dispatcher
  4. Build the studio service, seed the catalog, bootstrap the admin
  5. Start the maintenance scheduler
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides config
  -db      Database DSN or SQLite path, overrides config
           Use ":memory:" for in-memory database
  -driver  sqlite3 | postgres, overrides config
  -demo    Expose /api/scenarios

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Drain queued emails
  5. Close database connection

EXAMPLES:
  # Zero config: ./studio.db, log-only email
  ./server

  # PostgreSQL
  STUDIO_JWT_SECRET=... ./server -driver=postgres -db="postgres://studio@localhost/studio?sslmode=disable"

  # Demo data in memory
  ./server -db=":memory:" -demo

SEE ALSO:
  - config/config.go: Keys and environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/studio-engine/api"
	"github.com/warp/studio-engine/catalog"
	"github.com/warp/studio-engine/config"
	"github.com/warp/studio-engine/notify"
	"github.com/warp/studio-engine/store/sqlstore"
	"github.com/warp/studio-engine/studio"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dsn := flag.String("db", "", "database DSN or SQLite path (overrides config)")
	driver := flag.String("driver", "", "database driver: sqlite3 or postgres (overrides config)")
	demo := flag.Bool("demo", false, "expose demo scenarios")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if *demo {
		cfg.Server.EnableDemo = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = randomSecret()
		log.Println("Warning: no STUDIO_JWT_SECRET set, tokens will not survive a restart")
	}

	// Initialize store
	store, err := openStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Notifications
	dispatcher := notify.NewDispatcher(newMailer(cfg.Mail), notify.Options{
		StudioName:  cfg.Mail.StudioName,
		QueueSize:   cfg.Mail.QueueSize,
		SendTimeout: cfg.Mail.SendTimeout,
	})
	dispatcher.Start()
	defer dispatcher.Stop()

	svc := studio.NewService(store, cfg.Studio(), studio.WithNotifier(dispatcher))

	ctx := context.Background()
	if err := seedCatalog(ctx, svc, cfg.CatalogFile); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}
	if cfg.Admin.Email != "" {
		if _, err := api.BootstrapAdmin(ctx, svc, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatalf("Failed to bootstrap admin: %v", err)
		}
	}

	scheduler := api.NewMaintenanceScheduler(svc, cfg.Scheduler)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	handler := api.NewHandler(svc, store, api.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer))
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		EnableDemo:     cfg.Server.EnableDemo,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d (%s)", cfg.Server.Port, store.Driver())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(db config.DatabaseConfig) (*sqlstore.Store, error) {
	if db.Driver == sqlstore.DriverSQLite {
		return sqlstore.New(db.DSN)
	}
	return sqlstore.Open(db.Driver, db.DSN, sqlstore.PoolOptions{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	})
}

func newMailer(m config.MailConfig) notify.Mailer {
	if m.Mode == "smtp" {
		return notify.SMTPMailer{
			Host:     m.Host,
			Port:     m.Port,
			From:     m.From,
			Username: m.Username,
			Password: m.Password,
		}
	}
	return notify.LogMailer{}
}

// seedCatalog adds the packages of path (or the presets) that are missing.
func seedCatalog(ctx context.Context, svc *studio.Service, path string) error {
	defs := catalog.Presets()
	if path != "" {
		loaded, err := catalog.NewFactory().Load(path)
		if err != nil {
			return err
		}
		defs = loaded
	}
	n, err := catalog.Seed(studio.WithPrincipal(ctx, studio.SystemPrincipal), svc, defs)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("Seeded %d catalog packages", n)
	}
	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}
	return hex.EncodeToString(b)
}
