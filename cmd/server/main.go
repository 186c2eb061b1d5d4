// Package main is the entry point for the news server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (.env file, then the environment)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// Each executable gets its own directory with its own main.go.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/pGUPT4/news-app/internal/config"
	"github.com/pGUPT4/news-app/internal/logging"
	"github.com/pGUPT4/news-app/internal/server"
)

func main() {
	// === 1. LOAD .env ===
	// godotenv.Load copies KEY=value lines from ./.env into the process
	// environment without overriding variables that are already set. A
	// missing file is normal in production, where the platform sets env vars.
	envErr := godotenv.Load()

	// === 2. READ CONFIGURATION ===
	// os.LookupEnv distinguishes "unset" from "set to empty".
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		// No configured logger yet; the bootstrap one writes to stderr.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("invalid configuration",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 3. SET UP LOGGING ===
	logger := logging.New(os.Stdout, cfg.LogLevel)
	// Package-level slog calls (the response helpers) use the same handler.
	slog.SetDefault(logger)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("could not read .env", slog.String("error", envErr.Error()))
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
