// ABOUTME: Terminal chat client for the Mahakaal calendar agent
// ABOUTME: Readline-style input, streamed NDJSON replies, session management commands

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/2389/mahakaal/internal/backend"
	"github.com/2389/mahakaal/internal/config"
	"github.com/2389/mahakaal/internal/dedupe"
	"github.com/2389/mahakaal/internal/logging"
	"github.com/2389/mahakaal/internal/metrics"
	"github.com/2389/mahakaal/internal/session"
)

const dedupeMaxEntries = 10000

func main() {
	configPath := flag.String("config", "", "Config file (default: $MAHAKAAL_CONFIG or ~/.config/mahakaal/client.yaml)")
	server := flag.String("server", "", "Backend URL (overrides config)")
	sessionID := flag.String("session", "", "Open this session on start")
	verbose := flag.Bool("v", false, "Log at the configured level instead of warnings only")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Backend.BaseURL = strings.TrimRight(*server, "/")
	}
	if !*verbose {
		cfg.Logging.Level = "warn"
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *sessionID, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

type app struct {
	cfg    *config.Config
	client *backend.Client
	ctrl   *session.Controller
	view   *view
	logger *slog.Logger

	updates   <-chan session.Update
	interrupt chan os.Signal
}

func run(ctx context.Context, cfg *config.Config, sessionID string, logger *slog.Logger) error {
	client := backend.New(cfg.Backend, backend.WithLogger(logger))

	cache := dedupe.New(cfg.Client.DedupeTTL, dedupeMaxEntries)
	defer cache.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		stop := serveMetrics(cfg.Metrics, m, logger)
		defer stop()
	}

	opts := []session.Option{
		session.WithHistoryLoader(client),
		session.WithDedupe(cache),
		session.WithMetrics(m),
		session.WithLogger(logger),
	}
	if cfg.Client.Persist {
		opts = append(opts, session.WithPersister(client))
	}
	ctrl := session.New(client, opts...)
	defer ctrl.Close()

	a := &app{
		cfg:       cfg,
		client:    client,
		ctrl:      ctrl,
		view:      newView(os.Stdout),
		logger:    logger,
		updates:   ctrl.Subscribe(ctx),
		interrupt: make(chan os.Signal, 1),
	}
	signal.Notify(a.interrupt, os.Interrupt)
	defer signal.Stop(a.interrupt)

	a.printBanner(ctx)

	if sessionID != "" {
		a.openSession(ctx, sessionID)
	}

	err := a.loop(ctx, os.Stdin)

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	if ferr := ctrl.Flush(flushCtx); ferr != nil {
		logger.Warn("unsaved messages at exit", "error", ferr)
	}
	return err
}

func (a *app) printBanner(ctx context.Context) {
	fmt.Printf("mahakaal-tui connected to %s\n", a.cfg.Backend.BaseURL)
	if a.client.IsAuthenticated(ctx) {
		fmt.Println("Calendar: connected")
	} else {
		fmt.Println("Calendar: not connected (/login to connect)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C cancels a reply, or quits at the prompt.")
	fmt.Println()
}

// readLines feeds stdin lines to a channel until EOF.
func readLines(r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errc <- err
		} else {
			errc <- io.EOF
		}
	}()
	return lines, errc
}

func (a *app) loop(ctx context.Context, in io.Reader) error {
	lines, errc := readLines(in)

	for {
		a.prompt()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case <-a.interrupt:
			return nil
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-lines:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := a.command(ctx, input); quit {
				return nil
			}
			fmt.Println()
			continue
		}

		a.chat(ctx, input)
		fmt.Println()
	}
}

func (a *app) prompt() {
	if id := a.ctrl.SessionID(); id != "" {
		fmt.Printf("[%s]> ", id)
	} else {
		fmt.Print("> ")
	}
}

// command runs a slash command and reports whether to quit.
func (a *app) command(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		printHelp()

	case "/sessions":
		a.view.printSessions(a.client.SessionsOrEmpty(ctx), a.ctrl.SessionID())

	case "/new":
		if err := a.newSession(ctx, arg); err != nil {
			red.Printf("[error] %v\n", err)
		}

	case "/open":
		if arg == "" {
			fmt.Println("Usage: /open <session id>")
			return false
		}
		a.openSession(ctx, arg)

	case "/delete":
		if arg == "" {
			fmt.Println("Usage: /delete <session id>")
			return false
		}
		if err := a.client.DeleteSession(ctx, arg); err != nil {
			red.Printf("[error] %v\n", err)
			return false
		}
		if a.ctrl.SessionID() == arg {
			a.ctrl.SetSession("")
		}
		fmt.Printf("Deleted session %s\n", arg)

	case "/login":
		url, err := a.client.LoginURL(ctx)
		if err != nil {
			red.Printf("[error] %v\n", err)
			return false
		}
		fmt.Printf("Open this URL to connect your calendar:\n  %s\n", url)

	case "/status":
		a.printStatus(ctx)

	case "/logs":
		a.view.printLogs(a.ctrl.Diagnostics())

	default:
		fmt.Printf("Unknown command %s (try /help)\n", name)
	}
	return false
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /sessions       List saved sessions")
	fmt.Println("  /new [title]    Start a new saved session")
	fmt.Println("  /open <id>      Load a saved session")
	fmt.Println("  /delete <id>    Delete a saved session")
	fmt.Println("  /login          Connect your calendar")
	fmt.Println("  /status         Show connection and session state")
	fmt.Println("  /logs           Show diagnostics for the last reply")
	fmt.Println("  /help           Show this help")
	fmt.Println("  /quit           Exit")
}

func (a *app) printStatus(ctx context.Context) {
	fmt.Printf("Backend:  %s\n", a.cfg.Backend.BaseURL)
	ok, err := a.client.AuthStatus(ctx)
	switch {
	case err != nil:
		fmt.Printf("Calendar: unknown (%v)\n", err)
	case ok:
		fmt.Println("Calendar: connected")
	default:
		fmt.Println("Calendar: not connected")
	}
	if id := a.ctrl.SessionID(); id != "" {
		fmt.Printf("Session:  %s\n", id)
	} else {
		fmt.Println("Session:  none (messages are not saved)")
	}
	fmt.Printf("State:    %s, %d messages\n", a.ctrl.State(), len(a.ctrl.Transcript()))
}

func (a *app) newSession(ctx context.Context, title string) error {
	if title == "" {
		title = a.cfg.Client.SessionTitle
	}
	info, err := a.client.CreateSession(ctx, title)
	if err != nil {
		return err
	}
	a.ctrl.SetSession(string(info.ID))
	fmt.Printf("Started session %s: %s\n", info.ID, info.Title)
	return nil
}

func (a *app) openSession(ctx context.Context, id string) {
	if err := a.ctrl.Load(ctx, id); err != nil {
		red.Printf("[error] loading session %s: %v\n", id, err)
		return
	}
	a.view.printTranscript(a.ctrl.Transcript())
}

// chat sends input and prints the reply until the exchange ends. Ctrl+C
// cancels the reply.
func (a *app) chat(ctx context.Context, input string) {
	if a.cfg.Client.Persist && a.ctrl.SessionID() == "" {
		if err := a.newSession(ctx, ""); err != nil {
			a.logger.Warn("could not create session, continuing unsaved", "error", err)
		}
	}

	ex, err := a.ctrl.Send(ctx, input)
	if err != nil {
		red.Printf("[error] %v\n", err)
		return
	}
	a.view.begin(ex.ID)

	for {
		select {
		case u, ok := <-a.updates:
			if !ok {
				return
			}
			a.view.handle(u)
			if u.Kind == session.UpdateState && u.State == session.StateIdle && u.ExchangeID == ex.ID {
				a.report(ex.Wait())
				return
			}

		case <-ex.Done():
			a.drain()
			a.report(ex.Wait())
			return

		case <-a.interrupt:
			yellow.Println("\n[cancelling]")
			a.ctrl.Cancel()
		}
	}
}

// drain prints updates already queued when the exchange finished.
func (a *app) drain() {
	for {
		select {
		case u, ok := <-a.updates:
			if !ok {
				return
			}
			a.view.handle(u)
		default:
			return
		}
	}
}

func (a *app) report(res session.Result) {
	if res.State == session.StateFailed && errors.Is(res.Err, context.Canceled) {
		dim.Println("(reply cancelled)")
	}
}

func serveMetrics(cfg config.MetricsConfig, m *metrics.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", cfg.Addr, "path", cfg.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
