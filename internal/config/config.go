// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, upstream provider
// endpoints and credentials, sync limits, and the outreach sweep cadence.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-review-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GoogleConfig holds OAuth client credentials and the upstream endpoints for
// the review platform. Endpoints are configurable so tests can point the
// clients at an httptest server.
type GoogleConfig struct {
	ClientID     string // GOOGLE_CLIENT_ID
	ClientSecret string // GOOGLE_CLIENT_SECRET
	RedirectURI  string // GOOGLE_REDIRECT_URI
	Scopes       string // GOOGLE_OAUTH_SCOPES (space-separated)

	AuthURL     string // GOOGLE_AUTH_URL (authorization endpoint)
	TokenURL    string // GOOGLE_TOKEN_URL
	UserinfoURL string // GOOGLE_USERINFO_URL
	AccountsURL string // GOOGLE_ACCOUNTS_URL (account management API)
	BusinessURL string // GOOGLE_BUSINESS_URL (business information API)
	ReviewsURL  string // GOOGLE_REVIEWS_URL (v4 reviews API base)
	PlacesURL   string // GOOGLE_PLACES_URL (place search API)
	PlacesKey   string // GOOGLE_MAPS_API_KEY

	PostLoginURL string // FRONTEND_POST_LOGIN_URL (redirect target after callback)
}

// OpenAIConfig holds the AI completion provider settings.
type OpenAIConfig struct {
	APIKey      string  // OPENAI_API_KEY
	Model       string  // OPENAI_MODEL
	Temperature float64 // OPENAI_TEMPERATURE
}

// SyncConfig bounds the review synchronization engine.
type SyncConfig struct {
	PageSize     int // SYNC_PAGE_SIZE, capped at the provider maximum of 50
	SeenWindow   int // SYNC_SEEN_WINDOW, how many stored reviews seed the dedup set
	MaxPerRun    int // SYNC_MAX_PER_RUN, runaway ceiling on saved+skipped per run
	EligibleDays int // SYNC_ELIGIBLE_DAYS, 0 = no date filter on analysis input
}

// OutreachConfig controls the review-request sweep worker.
type OutreachConfig struct {
	PollInterval time.Duration // OUTREACH_POLL_INTERVAL
	BatchSize    int           // OUTREACH_BATCH_SIZE
	SendDelayMin time.Duration // OUTREACH_SEND_DELAY_MIN (offset after the interaction)
	SendDelayMax time.Duration // OUTREACH_SEND_DELAY_MAX
	From         string        // MESSAGING_FROM (sender id for the messaging provider)
	AccountSID   string        // MESSAGING_ACCOUNT_SID
	AuthToken    string        // MESSAGING_AUTH_TOKEN
	APIBaseURL   string        // MESSAGING_API_URL
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// App
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Domain
	Google   GoogleConfig
	OpenAI   OpenAIConfig
	Sync     SyncConfig
	Outreach OutreachConfig

	// Timeout applied to every outbound collaborator call.
	UpstreamTimeout time.Duration

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Domain
		Google: GoogleConfig{
			ClientID:     getenv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getenv("GOOGLE_REDIRECT_URI", "http://127.0.0.1:8080/api/v1/auth/google/callback"),
			Scopes:       getenv("GOOGLE_OAUTH_SCOPES", "https://www.googleapis.com/auth/business.manage openid email profile"),
			AuthURL:      getenv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
			TokenURL:     getenv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			UserinfoURL:  getenv("GOOGLE_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
			AccountsURL:  getenv("GOOGLE_ACCOUNTS_URL", "https://mybusinessaccountmanagement.googleapis.com/v1"),
			BusinessURL:  getenv("GOOGLE_BUSINESS_URL", "https://mybusinessbusinessinformation.googleapis.com/v1"),
			ReviewsURL:   getenv("GOOGLE_REVIEWS_URL", "https://mybusiness.googleapis.com/v4"),
			PlacesURL:    getenv("GOOGLE_PLACES_URL", "https://maps.googleapis.com/maps/api/place"),
			PlacesKey:    getenv("GOOGLE_MAPS_API_KEY", ""),
			PostLoginURL: getenv("FRONTEND_POST_LOGIN_URL", "http://localhost:3000"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getenv("OPENAI_API_KEY", ""),
			Model:       getenv("OPENAI_MODEL", "gpt-4.1-mini"),
			Temperature: getfloat("OPENAI_TEMPERATURE", 0.5),
		},
		Sync: SyncConfig{
			PageSize:     getint("SYNC_PAGE_SIZE", 50),
			SeenWindow:   getint("SYNC_SEEN_WINDOW", 5000),
			MaxPerRun:    getint("SYNC_MAX_PER_RUN", 3000),
			EligibleDays: getint("SYNC_ELIGIBLE_DAYS", 0),
		},
		Outreach: OutreachConfig{
			PollInterval: getdur("OUTREACH_POLL_INTERVAL", 30*time.Second),
			BatchSize:    getint("OUTREACH_BATCH_SIZE", 25),
			SendDelayMin: getdur("OUTREACH_SEND_DELAY_MIN", 15*time.Minute),
			SendDelayMax: getdur("OUTREACH_SEND_DELAY_MAX", 30*time.Minute),
			From:         getenv("MESSAGING_FROM", ""),
			AccountSID:   getenv("MESSAGING_ACCOUNT_SID", ""),
			AuthToken:    getenv("MESSAGING_AUTH_TOKEN", ""),
			APIBaseURL:   getenv("MESSAGING_API_URL", "https://api.twilio.com/2010-04-01"),
		},

		UpstreamTimeout: getdur("UPSTREAM_TIMEOUT", 30*time.Second),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-review-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	// The review feed provider rejects page sizes above 50.
	if cfg.Sync.PageSize > 50 {
		cfg.Sync.PageSize = 50
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Sync.PageSize < 1 {
		return cfg, errors.New("SYNC_PAGE_SIZE must be >= 1")
	}
	if cfg.Sync.SeenWindow < 0 {
		return cfg, errors.New("SYNC_SEEN_WINDOW must be >= 0")
	}
	if cfg.Sync.MaxPerRun < 1 {
		return cfg, errors.New("SYNC_MAX_PER_RUN must be >= 1")
	}
	if cfg.Outreach.PollInterval <= 0 {
		return cfg, errors.New("OUTREACH_POLL_INTERVAL must be > 0")
	}
	if cfg.Outreach.BatchSize < 1 {
		return cfg, errors.New("OUTREACH_BATCH_SIZE must be >= 1")
	}
	if cfg.Outreach.SendDelayMin < 0 || cfg.Outreach.SendDelayMax < cfg.Outreach.SendDelayMin {
		return cfg, errors.New("outreach send delay window is inverted")
	}
	if cfg.UpstreamTimeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
