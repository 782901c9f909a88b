// Package config loads runtime configuration from the environment.
//
// Sources, highest priority first:
//  1. process environment variables
//  2. a .env file in the working directory (optional)
//  3. built-in defaults
//
// Several keys accept the NEXT_PUBLIC_* names used by the web frontend so
// both can share one .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	LedgerPostgREST = "postgrest"
	LedgerSQLite    = "sqlite"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Site       SiteConfig
	Supabase   SupabaseConfig
	Ledger     LedgerConfig
	OpenRouter OpenRouterConfig
	Creem      CreemConfig
	Prices     PriceConfig
	Cookie     CookieConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// SiteConfig identifies this deployment to browsers and to the inference
// provider (HTTP-Referer / X-Title attribution).
type SiteConfig struct {
	URL  string
	Name string
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string // optional; enables refund grants
	JWTSecret      string // optional; enables local token verification
	OAuthProvider  string
	DBURL          string // cmd/migrate only
}

type LedgerConfig struct {
	Driver          string
	SQLitePath      string
	RefundOnFailure bool
	HistoryLimit    int
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
}

type CreemConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
}

// PriceConfig holds the public price identifiers of the subscription tiers.
type PriceConfig struct {
	ProMonthly   string
	ProYearly    string
	TeamsMonthly string
	TeamsYearly  string
}

type CookieConfig struct {
	Secure bool
}

// envAliases maps config keys to the environment variables that may set
// them, first match wins.
var envAliases = map[string][]string{
	"server.port":              {"PORT"},
	"server.read_timeout":      {"SERVER_READ_TIMEOUT"},
	"server.write_timeout":     {"SERVER_WRITE_TIMEOUT"},
	"server.idle_timeout":      {"SERVER_IDLE_TIMEOUT"},
	"server.shutdown_timeout":  {"SERVER_SHUTDOWN_TIMEOUT"},
	"server.max_body_bytes":    {"SERVER_MAX_BODY_BYTES"},
	"log.level":                {"LOG_LEVEL"},
	"log.format":               {"LOG_FORMAT"},
	"site.url":                 {"SITE_URL", "NEXT_PUBLIC_SITE_URL"},
	"site.name":                {"SITE_NAME", "NEXT_PUBLIC_SITE_NAME"},
	"supabase.url":             {"SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"},
	"supabase.anon_key":        {"SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"},
	"supabase.service_role":    {"SUPABASE_SERVICE_ROLE_KEY"},
	"supabase.jwt_secret":      {"SUPABASE_JWT_SECRET"},
	"supabase.oauth_provider":  {"SUPABASE_OAUTH_PROVIDER"},
	"supabase.db_url":          {"SUPABASE_DB_URL", "DATABASE_URL"},
	"ledger.driver":            {"LEDGER_DRIVER"},
	"ledger.sqlite_path":       {"LEDGER_SQLITE_PATH"},
	"ledger.refund_on_failure": {"LEDGER_REFUND_ON_FAILURE"},
	"ledger.history_limit":     {"LEDGER_HISTORY_LIMIT"},
	"openrouter.api_key":       {"OPENROUTER_API_KEY"},
	"openrouter.base_url":      {"OPENROUTER_BASE_URL"},
	"creem.api_key":            {"CREEM_API_KEY"},
	"creem.base_url":           {"CREEM_API_BASE"},
	"creem.webhook_secret":     {"CREEM_WEBHOOK_SECRET"},
	"prices.pro_monthly":       {"CREEM_PRICE_PRO_MONTHLY", "NEXT_PUBLIC_CREEM_PRICE_PRO_MONTHLY"},
	"prices.pro_yearly":        {"CREEM_PRICE_PRO_YEARLY", "NEXT_PUBLIC_CREEM_PRICE_PRO_YEARLY"},
	"prices.teams_monthly":     {"CREEM_PRICE_TEAMS_MONTHLY", "NEXT_PUBLIC_CREEM_PRICE_TEAMS_MONTHLY"},
	"prices.teams_yearly":      {"CREEM_PRICE_TEAMS_YEARLY", "NEXT_PUBLIC_CREEM_PRICE_TEAMS_YEARLY"},
	"cookie.secure":            {"COOKIE_SECURE"},
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit .env candidates. Missing files are
// skipped; variables already present in the environment are never
// overridden by a file.
func LoadFiles(envFiles ...string) (*Config, error) {
	cfg, err := read(envFiles)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDBURL returns only the Postgres connection string. The rest of the
// configuration is not validated, so tools that need nothing but the
// database can run without the server's settings.
func LoadDBURL(envFiles ...string) (string, error) {
	cfg, err := read(envFiles)
	if err != nil {
		return "", err
	}
	return cfg.Supabase.DBURL, nil
}

func read(envFiles []string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			MaxBodyBytes:    v.GetInt64("server.max_body_bytes"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Site: SiteConfig{
			URL:  strings.TrimRight(v.GetString("site.url"), "/"),
			Name: v.GetString("site.name"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(v.GetString("supabase.url"), "/"),
			AnonKey:        v.GetString("supabase.anon_key"),
			ServiceRoleKey: v.GetString("supabase.service_role"),
			JWTSecret:      v.GetString("supabase.jwt_secret"),
			OAuthProvider:  v.GetString("supabase.oauth_provider"),
			DBURL:          v.GetString("supabase.db_url"),
		},
		Ledger: LedgerConfig{
			Driver:          strings.ToLower(v.GetString("ledger.driver")),
			SQLitePath:      v.GetString("ledger.sqlite_path"),
			RefundOnFailure: v.GetBool("ledger.refund_on_failure"),
			HistoryLimit:    v.GetInt("ledger.history_limit"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:  v.GetString("openrouter.api_key"),
			BaseURL: strings.TrimRight(v.GetString("openrouter.base_url"), "/"),
		},
		Creem: CreemConfig{
			APIKey:        v.GetString("creem.api_key"),
			BaseURL:       strings.TrimRight(v.GetString("creem.base_url"), "/"),
			WebhookSecret: v.GetString("creem.webhook_secret"),
		},
		Prices: PriceConfig{
			ProMonthly:   v.GetString("prices.pro_monthly"),
			ProYearly:    v.GetString("prices.pro_yearly"),
			TeamsMonthly: v.GetString("prices.teams_monthly"),
			TeamsYearly:  v.GetString("prices.teams_yearly"),
		},
		Cookie: CookieConfig{
			Secure: v.GetBool("cookie.secure"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	// generation round trips are slow; keep the write window generous
	v.SetDefault("server.write_timeout", 3*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 20<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("site.url", "http://localhost:8080")
	v.SetDefault("site.name", "bananagen")
	v.SetDefault("supabase.oauth_provider", "google")
	v.SetDefault("ledger.driver", LedgerPostgREST)
	v.SetDefault("ledger.sqlite_path", "data/ledger.db")
	v.SetDefault("ledger.refund_on_failure", false)
	v.SetDefault("ledger.history_limit", 100)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("creem.base_url", "https://api.creem.io")
	v.SetDefault("cookie.secure", false)
}

func (c *Config) validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if _, err := url.ParseRequestURI(c.Site.URL); err != nil {
		errs = append(errs, fmt.Errorf("site url %q: %w", c.Site.URL, err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.Log.Format))
	}
	switch c.Ledger.Driver {
	case LedgerPostgREST:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("ledger driver postgrest requires SUPABASE_URL and SUPABASE_ANON_KEY"))
		}
	case LedgerSQLite:
		if c.Ledger.SQLitePath == "" {
			errs = append(errs, errors.New("ledger driver sqlite requires LEDGER_SQLITE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver))
	}
	if c.Ledger.HistoryLimit <= 0 {
		errs = append(errs, errors.New("ledger history limit must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Addr is the listen address derived from the port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// IdentityConfigured reports whether the identity provider can be reached.
func (s SupabaseConfig) IdentityConfigured() bool {
	return s.URL != "" && s.AnonKey != ""
}
