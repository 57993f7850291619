// Package app orchestrates all components of changefeed.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brianly1003/changefeed/internal/adapters/watcher"
	"github.com/brianly1003/changefeed/internal/config"
	"github.com/brianly1003/changefeed/internal/domain/events"
	"github.com/brianly1003/changefeed/internal/files"
	"github.com/brianly1003/changefeed/internal/hub"
	"github.com/brianly1003/changefeed/internal/ledger"
	"github.com/brianly1003/changefeed/internal/pairing"
	httpserver "github.com/brianly1003/changefeed/internal/server/http"
	"github.com/brianly1003/changefeed/internal/server/http/middleware"
	"github.com/brianly1003/changefeed/internal/server/websocket"
	"github.com/rs/zerolog/log"
)

// shutdownTimeout bounds how long in-flight requests may run after a stop signal.
const shutdownTimeout = 5 * time.Second

// App is the main application struct that orchestrates all components.
type App struct {
	cfg     *config.Config
	version string
	out     io.Writer

	// The ledger is created once here and shared by reference with the
	// watcher (writer) and the HTTP server (drainer).
	ledger *ledger.Ledger

	hub         *hub.Hub
	fileWatcher *watcher.Watcher
	debouncer   *watcher.Debouncer
	httpServer  *httpserver.Server
	wsHandler   *websocket.Handler
	qrGenerator *pairing.QRGenerator

	startTime time.Time
	ready     chan struct{}

	mu      sync.RWMutex
	running bool
}

// New creates a new App instance.
func New(cfg *config.Config, version string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	return &App{
		cfg:     cfg,
		version: version,
		out:     os.Stdout,
		ledger:  ledger.New(ledger.WithWarnEntries(cfg.Ledger.WarnEntries)),
		hub:     hub.New(),
		ready:   make(chan struct{}),
	}, nil
}

// SetOutput redirects the startup banner. Must be called before Start.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// Start starts the application and blocks until ctx is cancelled.
//
// Failing to watch the root is fatal: Start returns the error without
// serving, since an unwatched feed would silently report nothing.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	if err := a.startComponents(ctx); err != nil {
		_ = a.shutdown()
		return err
	}

	a.printConnectionInfo()
	close(a.ready)

	<-ctx.Done()

	return a.shutdown()
}

func (a *App) startComponents(ctx context.Context) error {
	root := a.cfg.Watch.Root
	rootName := filepath.Base(root)

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	// Observation begins before the poll endpoint is reachable.
	a.fileWatcher = watcher.NewWatcher(root, a.ledger, a.cfg.Watch.IgnorePatterns)
	a.debouncer = watcher.NewDebouncer(
		time.Duration(a.cfg.Watch.NotifyDebounceMS)*time.Millisecond,
		a.publishChangesAvailable,
	)
	a.fileWatcher.SetNotifier(a.debouncer.Trigger)
	if err := a.fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	a.httpServer = httpserver.New(a.cfg.Server.Host, a.cfg.Server.Port, a.ledger, files.NewResolver(root))
	a.httpServer.SetWatcher(a.fileWatcher)
	a.httpServer.SetEventHub(a.hub)
	a.httpServer.SetRequestTimeout(time.Duration(a.cfg.Server.RequestTimeoutSecs) * time.Second)

	if a.cfg.Limits.RateLimitPerMinute > 0 {
		a.httpServer.SetRateLimiter(middleware.NewRateLimiter(
			middleware.WithMaxRequests(a.cfg.Limits.RateLimitPerMinute),
			middleware.WithWindow(time.Minute),
			middleware.WithTrustProxy(a.cfg.Limits.TrustProxy),
		))
	}

	a.qrGenerator = pairing.NewQRGenerator(a.cfg.Server.Host, a.cfg.Server.Port, rootName)
	if a.cfg.Server.ExternalURL != "" {
		a.qrGenerator.SetExternalURL(a.cfg.Server.ExternalURL)
	}
	a.httpServer.SetPairing(a.qrGenerator)

	a.wsHandler = websocket.NewHandler(a.hub, rootName)
	a.wsHandler.Start()
	a.httpServer.SetWebSocketHandler(a.wsHandler.ServeHTTP)

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	log.Info().
		Str("root", root).
		Str("addr", a.httpServer.Addr()).
		Str("version", a.version).
		Msg("changefeed ready")

	return nil
}

// publishChangesAvailable sends a push hint with the pending counts.
// It only peeks at the ledger; /changes remains the sole consumer.
func (a *App) publishChangesAvailable() {
	changed, deleted := a.ledger.Pending()
	if changed == 0 && deleted == 0 {
		return
	}
	if a.hub.SubscriberCount() == 0 {
		return
	}
	a.hub.Publish(events.NewChangesAvailableEvent(changed, deleted))
}

// Subscribe registers an in-process listener for push events. With no types
// given it receives every event. The channel is closed on shutdown or when
// the buffer overflows.
func (a *App) Subscribe(id string, bufferSize int, types ...events.EventType) *hub.ChannelSubscriber {
	sub := hub.NewChannelSubscriber(id, bufferSize)
	a.hub.Subscribe(hub.NewFilteredSubscriber(sub, types...))
	return sub
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Dur("uptime", time.Since(a.startTime).Round(time.Second)).Msg("shutting down...")

	// Stop watching first so no hint fires into a stopping hub.
	if a.fileWatcher != nil {
		if err := a.fileWatcher.Stop(); err != nil {
			log.Warn().Err(err).Msg("error stopping file watcher")
		}
	}
	if a.debouncer != nil {
		a.debouncer.Stop()
	}

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error stopping HTTP server")
		}
		cancel()
	}

	if a.wsHandler != nil {
		a.wsHandler.Stop()
	}

	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}

	if changed, deleted := a.ledger.Pending(); changed+deleted > 0 {
		log.Info().
			Int("changed", changed).
			Int("deleted", deleted).
			Msg("discarding undrained changes")
	}

	return nil
}

// Ready is closed once every component is serving.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the HTTP listen address. Valid after Ready.
func (a *App) Addr() string {
	if a.httpServer == nil {
		return ""
	}
	return a.httpServer.Addr()
}

// Ledger returns the shared change ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// printConnectionInfo prints connection information to the console.
func (a *App) printConnectionInfo() {
	info := a.qrGenerator.GetPairingInfo()

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(a.out, "║                    changefeed ready                        ║")
	fmt.Fprintln(a.out, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(a.out, "║  Watching:   %-46s ║\n", truncateString(a.cfg.Watch.Root, 46))
	fmt.Fprintf(a.out, "║  Poll:       %-46s ║\n", truncateString(info.Changes, 46))
	fmt.Fprintf(a.out, "║  Fetch:      %-46s ║\n", truncateString(info.File+"NAME", 46))
	fmt.Fprintf(a.out, "║  Push:       %-46s ║\n", truncateString(info.WebSocket, 46))
	fmt.Fprintln(a.out, "╚════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(a.out)

	if a.cfg.Pairing.ShowQRInTerminal {
		if err := a.qrGenerator.PrintToTerminal(a.out); err != nil {
			log.Warn().Err(err).Msg("failed to render QR code")
		}
	}
}

// truncateString truncates a string for display.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
