// Package config resolves all runtime configuration once, at startup.
//
// Every setting comes from the environment (optionally seeded from a .env
// file by godotenv in main). Load reads each variable exactly once and
// returns a plain struct; nothing below main calls os.Getenv again.
//
// FAIL FAST:
// Required variables that are missing, and typed variables that don't parse,
// are collected into a single ConfigurationError so an operator sees every
// problem at once instead of fixing them one restart at a time.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pGUPT4/news-app/internal/apperror"
)

// Account store backends.
const (
	AccountStoreMongo  = "mongo"
	AccountStoreSQLite = "sqlite"
)

// Config is the fully resolved application configuration.
type Config struct {
	Port        int
	LogLevel    string
	FrontendURL string
	HTTPTimeout time.Duration

	News     NewsConfig
	Archive  ArchiveConfig
	Accounts AccountsConfig
	Session  SessionConfig
	Google   GoogleConfig
}

// NewsConfig points at the third-party wire API.
type NewsConfig struct {
	BaseURL string
	Section string
	APIKey  string
}

// ArchiveConfig holds S3 (or S3-compatible) settings.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // empty = AWS default endpoint resolution
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// AccountsConfig selects and configures the account store.
type AccountsConfig struct {
	Backend  string // "mongo" or "sqlite"
	MongoURI string
	Database string
	DBPath   string
}

// SessionConfig configures cookie signing and the session store.
type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	RedisURL     string // empty = in-memory store
	CookieSecure bool
}

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Load builds a Config from the given lookup function. main passes
// os.LookupEnv; tests pass a map-backed function.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	l := &loader{lookup: lookup}

	// FrontendURL is used as a CORS origin, compared byte for byte with the
	// browser's Origin header, which never ends in a slash.
	cfg := &Config{
		Port:        l.int("PORT", 8080),
		LogLevel:    l.str("LOG_LEVEL", "debug"),
		FrontendURL: strings.TrimRight(l.str("FRONTEND_URL", "http://localhost:3000"), "/"),
		HTTPTimeout: l.duration("HTTP_TIMEOUT", 10*time.Second),
		News: NewsConfig{
			BaseURL: strings.TrimRight(l.str("NEWS_API_URL", "https://api.nytimes.com/svc/topstories/v2"), "/"),
			Section: l.str("NEWS_SECTION", "home"),
			APIKey:  l.required("NEWS_API_KEY"),
		},
		Archive: ArchiveConfig{
			Bucket:          l.str("S3_BUCKET_NAME", "news-archive"),
			Region:          l.str("AWS_REGION", "us-east-1"),
			Endpoint:        l.str("S3_ENDPOINT", ""),
			UsePathStyle:    l.bool("S3_USE_PATH_STYLE", false),
			AccessKeyID:     l.required("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: l.required("AWS_SECRET_ACCESS_KEY"),
		},
		Accounts: AccountsConfig{
			Backend:  strings.ToLower(l.str("ACCOUNT_STORE", AccountStoreMongo)),
			Database: l.str("MONGO_DATABASE", "news_app"),
			DBPath:   l.str("DB_PATH", "data/accounts.db"),
		},
		Session: SessionConfig{
			Secret:       l.required("SESSION_SECRET"),
			TTL:          l.duration("SESSION_TTL", 7*24*time.Hour),
			RedisURL:     l.str("REDIS_URL", ""),
			CookieSecure: l.bool("COOKIE_SECURE", false),
		},
		Google: GoogleConfig{
			ClientID:     l.required("GOOGLE_CLIENT_ID"),
			ClientSecret: l.required("GOOGLE_CLIENT_SECRET"),
		},
	}

	switch cfg.Accounts.Backend {
	case AccountStoreMongo:
		cfg.Accounts.MongoURI = l.required("MONGO_URI")
	case AccountStoreSQLite:
		// SQLite needs only DB_PATH, which has a default.
	default:
		l.fail("ACCOUNT_STORE must be %q or %q, got %q", AccountStoreMongo, AccountStoreSQLite, cfg.Accounts.Backend)
	}

	if cfg.Session.Secret != "" && len(cfg.Session.Secret) < 16 {
		l.fail("SESSION_SECRET must be at least 16 characters")
	}

	cfg.Google.CallbackURL = l.str("GOOGLE_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port))

	if len(l.problems) > 0 {
		return nil, apperror.Configuration("config: " + strings.Join(l.problems, "; "))
	}
	return cfg, nil
}

// loader accumulates problems instead of stopping at the first one.
type loader struct {
	lookup   func(string) (string, bool)
	problems []string
}

func (l *loader) get(key string) (string, bool) {
	v, ok := l.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (l *loader) fail(format string, args ...any) {
	l.problems = append(l.problems, fmt.Sprintf(format, args...))
}

func (l *loader) required(key string) string {
	v, ok := l.get(key)
	if !ok {
		l.fail("%s is required", key)
	}
	return v
}

func (l *loader) str(key, def string) string {
	if v, ok := l.get(key); ok {
		return v
	}
	return def
}

func (l *loader) int(key string, def int) int {
	v, ok := l.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v) // Atoi = ASCII to Integer
	if err != nil || n <= 0 {
		l.fail("%s must be a positive integer, got %q", key, v)
		return def
	}
	return n
}

func (l *loader) bool(key string, def bool) bool {
	v, ok := l.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail("%s must be a boolean, got %q", key, v)
		return def
	}
	return b
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v, ok := l.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.fail("%s must be a positive duration like 10s, got %q", key, v)
		return def
	}
	return d
}
