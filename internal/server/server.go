// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects collaborators, services,
// handlers, middleware and routes, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and passes it to New, which creates:
//
//	news.Client ───────────┐
//	archive.S3 ────────────┼→ NewsService ─→ NewsHandler
//	                       │
//	AccountStore ──────────┼→ AuthService ─→ AuthHandler
//	GoogleProvider ────────┘                   │
//	session.Store → session.Manager ───────────┘
//
// This is the "composition root" pattern: every dependency is built once,
// here, and injected downward.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pGUPT4/news-app/internal/archive"
	"github.com/pGUPT4/news-app/internal/auth"
	"github.com/pGUPT4/news-app/internal/config"
	"github.com/pGUPT4/news-app/internal/handler"
	"github.com/pGUPT4/news-app/internal/middleware"
	"github.com/pGUPT4/news-app/internal/news"
	"github.com/pGUPT4/news-app/internal/repository"
	mongoRepo "github.com/pGUPT4/news-app/internal/repository/mongo"
	sqliteRepo "github.com/pGUPT4/news-app/internal/repository/sqlite"
	"github.com/pGUPT4/news-app/internal/service"
	"github.com/pGUPT4/news-app/internal/session"
)

// shutdownTimeout is how long in-flight requests get to finish after
// SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the account store connection and the session store
// connection. Close releases them; Start calls it after shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	closers []func(context.Context) error
}

// New builds every collaborator from cfg and wires the routes.
//
// Connections are verified here (Mongo and Redis are pinged), so a wrong
// URI stops the process at startup instead of failing the first request.
// If any step fails, whatever was already opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	ok := false
	defer func() {
		if !ok {
			_ = s.Close(context.Background())
		}
	}()

	// === COLLABORATORS ===
	newsClient := news.NewClient(news.Config{
		BaseURL: cfg.News.BaseURL,
		Section: cfg.News.Section,
		APIKey:  cfg.News.APIKey,
		Timeout: cfg.HTTPTimeout,
	})

	s3Client, err := archive.NewS3Client(ctx, archive.S3Config{
		Region:          cfg.Archive.Region,
		Endpoint:        cfg.Archive.Endpoint,
		UsePathStyle:    cfg.Archive.UsePathStyle,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	archiveStore := archive.NewS3(s3Client, cfg.Archive.Bucket, cfg.HTTPTimeout, logger)

	accounts, err := s.openAccountStore(ctx)
	if err != nil {
		return nil, err
	}

	sessionStore, err := s.openSessionStore(ctx)
	if err != nil {
		return nil, err
	}

	tokens, err := session.NewTokenService(cfg.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("creating session token service: %w", err)
	}
	sessions := session.NewManager(sessionStore, tokens, cfg.Session.TTL, cfg.Session.CookieSecure, logger)

	google := auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL)

	// === SERVICES AND HANDLERS ===
	// Notice: the handlers never touch a store or an SDK client directly,
	// and the services never touch HTTP.
	newsService := service.NewNewsService(newsClient, archiveStore, logger)
	authService := service.NewAuthService(accounts, auth.NewPasswordService(), google, logger)

	s.setupRoutes(
		handler.NewNewsHandler(newsService, logger),
		handler.NewAuthHandler(authService, sessions, cfg.FrontendURL, logger),
		sessions,
	)

	ok = true
	return s, nil
}

// openAccountStore connects the configured account store and registers it
// for Close.
func (s *Server) openAccountStore(ctx context.Context) (repository.AccountStore, error) {
	var (
		store repository.AccountStore
		err   error
	)

	switch s.config.Accounts.Backend {
	case config.AccountStoreSQLite:
		path := s.config.Accounts.DBPath
		if path != ":memory:" {
			// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		store, err = sqliteRepo.New(path)
	default:
		connectCtx, cancel := context.WithTimeout(ctx, s.config.HTTPTimeout)
		defer cancel()
		store, err = mongoRepo.Connect(connectCtx, s.config.Accounts.MongoURI, s.config.Accounts.Database, s.config.HTTPTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("opening account store: %w", err)
	}

	s.closers = append(s.closers, store.Close)
	s.logger.Info("account store ready", slog.String("backend", s.config.Accounts.Backend))
	return store, nil
}

// openSessionStore returns Redis when REDIS_URL is set and the in-process
// store otherwise. In-process sessions don't survive a restart and aren't
// shared between replicas.
func (s *Server) openSessionStore(ctx context.Context) (session.Store, error) {
	if s.config.Session.RedisURL == "" {
		s.logger.Warn("REDIS_URL not set; sessions are kept in memory")
		return session.NewMemoryStore(), nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.config.HTTPTimeout)
	defer cancel()

	store, err := session.NewRedisStore(pingCtx, s.config.Session.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return store.Close() })
	s.logger.Info("session store ready", slog.String("backend", "redis"))
	return store, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                      → health check
// GET    /raw                   → news API batch, no archiving
// GET    /news-galore           → archive pipeline (session required)
// POST   /register              → create local account
// POST   /login                 → local login
// GET    /logout                → clear session
// GET    /auth/google           → start Google OAuth
// GET    /auth/google/callback  → finish Google OAuth
// GET    /me                    → current account (session required)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: unique id per request, picked up by the logger
// 2. RealIP: real client IP from proxy headers
// 3. Logger: one structured line per request
// 4. Recoverer: turns a panic into a JSON 500 instead of a crash
// 5. CORS: answers preflights before any session work
// 6. Sessions: loads the session into the request context
func (s *Server) setupRoutes(newsHandler *handler.NewsHandler, authHandler *handler.AuthHandler, sessions *session.Manager) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(handler.Recoverer)

	// The frontend is served from another origin and sends the session
	// cookie with credentials: 'include', so the origin must be listed
	// explicitly ("*" is not allowed with credentials).
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.config.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{handler.ArchiveErrorHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(sessions.Middleware)

	s.router.Get("/", newsHandler.HandleHealth)
	s.router.Get("/raw", newsHandler.HandleRaw)
	s.router.Get("/news-galore", newsHandler.HandleCurated)

	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Get("/logout", authHandler.HandleLogout)
	s.router.Get("/auth/google", authHandler.HandleGoogleLogin)
	s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)

	s.router.With(handler.RequireSession).Get("/me", authHandler.HandleMe)
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the stores New opened, newest first.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the account and session stores
func (s *Server) Start() error {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			s.logger.Error("closing stores", slog.String("error", err.Error()))
		}
	}()

	// A curated request makes up to four sequential collaborator calls,
	// each bounded by HTTPTimeout.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 4*s.config.HTTPTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("frontend", s.config.FrontendURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
