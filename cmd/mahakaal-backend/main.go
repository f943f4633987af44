// ABOUTME: Entry point for the local Mahakaal agent backend
// ABOUTME: Serves sessions, auth and the scripted NDJSON chat stream over HTTP

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mahakaal/internal/config"
	"github.com/2389/mahakaal/internal/fakeagent"
	"github.com/2389/mahakaal/internal/logging"
	"github.com/2389/mahakaal/internal/metrics"
	"github.com/2389/mahakaal/internal/store"
)

// Version is set at build time.
var version = "dev"

const shutdownTimeout = 10 * time.Second

// getDataPath returns the directory holding the session database.
// Priority: XDG_DATA_HOME/mahakaal > ~/.local/share/mahakaal
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "mahakaal")
}

func main() {
	configPath := flag.String("config", "", "Config file (default: $MAHAKAAL_CONFIG or ~/.config/mahakaal/client.yaml)")
	addr := flag.String("addr", "", "Listen address (overrides fake_backend.addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides fake_backend.database_path)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := *configPath
	if path == "" {
		path = config.Path()
	}

	if err := runServe(ctx, path, *addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath, addr, dbPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.FakeBackend.Addr = addr
	}
	if dbPath != "" {
		cfg.FakeBackend.DatabasePath = dbPath
	}
	if cfg.FakeBackend.DatabasePath == "" {
		cfg.FakeBackend.DatabasePath = filepath.Join(getDataPath(), "sessions.db")
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	printStartup(configPath, cfg)

	st, err := store.NewSQLiteStore(cfg.FakeBackend.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	srv := fakeagent.New(st, cfg.FakeBackend, fakeagent.WithLogger(logger), fakeagent.WithMetrics(m))

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}
	mux.Handle("/", srv)

	httpServer := &http.Server{
		Addr:              cfg.FakeBackend.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting mahakaal-backend",
			"addr", cfg.FakeBackend.Addr,
			"database", cfg.FakeBackend.DatabasePath,
			"auth", cfg.FakeBackend.JWTSecret != "",
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down mahakaal-backend")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func printStartup(configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	color.New(color.FgCyan, color.Bold).Println("    mahakaal-backend")
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     http://%s\n", cfg.FakeBackend.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.FakeBackend.DatabasePath)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:  %s\n", cfg.Metrics.Path)
	}
	if cfg.FakeBackend.JWTSecret != "" {
		yellow.Println("    ▶ Calendar tools require login")
	}
	fmt.Println()
}
