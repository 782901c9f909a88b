package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv sets the minimal environment for the default postgrest ledger.
func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t)

	cfg, err := LoadFiles()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, LedgerPostgREST, cfg.Ledger.Driver)
	assert.Equal(t, 100, cfg.Ledger.HistoryLimit)
	assert.False(t, cfg.Ledger.RefundOnFailure)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "https://api.creem.io", cfg.Creem.BaseURL)
	assert.Equal(t, "google", cfg.Supabase.OAuthProvider)
	// trailing slash trimmed
	assert.Equal(t, "https://proj.supabase.co", cfg.Supabase.URL)
	assert.True(t, cfg.Supabase.IdentityConfigured())
}

func TestLoad_NextPublicAliases(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "https://alias.supabase.co")
	t.Setenv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "alias-anon")
	t.Setenv("NEXT_PUBLIC_SITE_NAME", "Nano Studio")
	t.Setenv("NEXT_PUBLIC_CREEM_PRICE_PRO_MONTHLY", "price_pro_m")

	cfg, err := LoadFiles()
	require.NoError(t, err)

	assert.Equal(t, "https://alias.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "alias-anon", cfg.Supabase.AnonKey)
	assert.Equal(t, "Nano Studio", cfg.Site.Name)
	assert.Equal(t, "price_pro_m", cfg.Prices.ProMonthly)
}

func TestLoad_PrimaryNameWinsOverAlias(t *testing.T) {
	setEnv(t)
	t.Setenv("SITE_URL", "https://primary.example")
	t.Setenv("NEXT_PUBLIC_SITE_URL", "https://alias.example")

	cfg, err := LoadFiles()
	require.NoError(t, err)
	assert.Equal(t, "https://primary.example", cfg.Site.URL)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LEDGER_REFUND_ON_FAILURE", "true")
	t.Setenv("SERVER_WRITE_TIMEOUT", "45s")

	cfg, err := LoadFiles()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Ledger.RefundOnFailure)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
}

func TestLoad_SQLiteLedgerNeedsNoSupabase(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("LEDGER_SQLITE_PATH", ":memory:")

	cfg, err := LoadFiles()
	require.NoError(t, err)
	assert.Equal(t, LedgerSQLite, cfg.Ledger.Driver)
	assert.False(t, cfg.Supabase.IdentityConfigured())
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "postgrest ledger without supabase",
			env:  map[string]string{},
		},
		{
			name: "unknown ledger driver",
			env:  map[string]string{"LEDGER_DRIVER": "mongo"},
		},
		{
			name: "bad log format",
			env: map[string]string{
				"LEDGER_DRIVER": "sqlite",
				"LOG_FORMAT":    "xml",
			},
		},
		{
			name: "port out of range",
			env: map[string]string{
				"LEDGER_DRIVER": "sqlite",
				"PORT":          "70000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFiles()
			assert.Error(t, err)
		})
	}
}

func TestLoadFiles_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "LEDGER_DRIVER=sqlite\nOPENROUTER_API_KEY=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv.Load writes into the process environment; make sure the
	// values are removed again when the test ends.
	t.Setenv("LEDGER_DRIVER", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	os.Unsetenv("LEDGER_DRIVER")
	os.Unsetenv("OPENROUTER_API_KEY")

	cfg, err := LoadFiles(path)
	require.NoError(t, err)
	assert.Equal(t, LedgerSQLite, cfg.Ledger.Driver)
	assert.Equal(t, "from-file", cfg.OpenRouter.APIKey)
}

func TestLoadFiles_MissingFileIsIgnored(t *testing.T) {
	setEnv(t)
	_, err := LoadFiles(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestLoadDBURL_SkipsServerValidation(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("LEDGER_DRIVER", "")
	t.Setenv("SUPABASE_DB_URL", "")
	t.Setenv("DATABASE_URL", "postgres://ledger@db:5432/postgres")

	// the server config is incomplete for the default postgrest ledger
	_, err := LoadFiles()
	require.Error(t, err)

	dbURL, err := LoadDBURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://ledger@db:5432/postgres", dbURL)

	t.Setenv("SUPABASE_DB_URL", "postgres://primary@db:5432/postgres")
	dbURL, err = LoadDBURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary@db:5432/postgres", dbURL)
}
