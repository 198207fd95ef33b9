package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/studio-engine/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite3", cfg.Database.Driver)

	sc := cfg.Studio()
	assert.Equal(t, 24*time.Hour, sc.CancellationWindow)
	assert.Equal(t, "INV-", sc.InvoicePrefix)
	assert.False(t, sc.BalancePolicy.SymmetricStatus)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// GIVEN: A YAML file and an environment override
	path := writeFile(t, "studio.yaml", `
server:
  port: 9090
  request_timeout: 5s
database:
  driver: postgres
  dsn: postgres://localhost/studio
billing:
  symmetric_balance: true
  invoice_prefix: "ST-"
portal:
  cancellation_window: 12h
`)
	t.Setenv("STUDIO_PORT", "7070")
	t.Setenv("STUDIO_CORS_ORIGINS", "https://a.test, https://b.test")

	// WHEN: It is loaded
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: The environment wins over the file, the file over the defaults
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)

	sc := cfg.Studio()
	assert.True(t, sc.BalancePolicy.SymmetricStatus)
	assert.Equal(t, "ST-", sc.InvoicePrefix)
	assert.Equal(t, 12*time.Hour, sc.CancellationWindow)
}

func TestLoad_EnvFile(t *testing.T) {
	env := writeFile(t, ".env", "STUDIO_JWT_SECRET=from-dotenv\n")
	t.Setenv("STUDIO_JWT_SECRET", "")
	os.Unsetenv("STUDIO_JWT_SECRET")

	cfg, err := config.Load("", env, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestApplyEnv_ReportsBadValues(t *testing.T) {
	cfg := config.Defaults()
	env := map[string]string{
		"STUDIO_PORT":                "eighty",
		"STUDIO_TOKEN_TTL":           "forever",
		"STUDIO_SCHEDULER_ENABLED":   "false",
		"STUDIO_CANCELLATION_WINDOW": "48h",
	}
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STUDIO_PORT")
	assert.Contains(t, err.Error(), "STUDIO_TOKEN_TTL")
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 48*time.Hour, cfg.Portal.CancellationWindow)
}

func TestValidate(t *testing.T) {
	cfg := config.Defaults()
	cfg.Database.Driver = "mysql"
	cfg.Mail.Mode = "smtp"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "mail.host")
	assert.Contains(t, err.Error(), "server.port")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
