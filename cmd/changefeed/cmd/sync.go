package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianly1003/changefeed/internal/client"
	"github.com/brianly1003/changefeed/internal/config"
	"github.com/brianly1003/changefeed/internal/domain"
	"github.com/brianly1003/changefeed/internal/syncer"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	syncServer      string
	syncDest        string
	syncInterval    int
	syncOnce        bool
	syncConcurrency int
)

// syncCmd mirrors a remote change feed into a local directory.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror a remote change feed into a local directory",
	Long: `Poll a changefeed server and keep a local directory in step with it.

Each pass drains GET /changes, removes local copies of deleted files and
downloads changed files with GET /file. Files are stored flat under the
destination directory by base name.

Examples:
  changefeed sync --server http://10.0.0.5:5000 --dest ./mirror
  changefeed sync --dest ./mirror --once          # Single pass then exit
  changefeed sync --dest ./mirror --interval 5`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncServer, "server", "", "changefeed server base URL (default: sync.server from config)")
	syncCmd.Flags().StringVar(&syncDest, "dest", "", "local mirror directory (default: sync.dest from config)")
	syncCmd.Flags().IntVar(&syncInterval, "interval", 0, "seconds between passes (default: sync.interval_secs from config)")
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "run a single pass and exit")
	syncCmd.Flags().IntVar(&syncConcurrency, "concurrency", 0, "parallel downloads (default: sync.concurrency from config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applySyncFlags(cfg); err != nil {
		return err
	}

	logger := newSyncLogger(cmd.ErrOrStderr(), cfg.Logging.Level)

	c, err := client.New(cfg.Sync.Server, client.WithUserAgent("changefeed-sync/"+version))
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	if err := os.MkdirAll(cfg.Sync.Dest, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	s := syncer.New(c, cfg.Sync.Dest,
		syncer.WithConcurrency(cfg.Sync.Concurrency),
		syncer.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkServer(ctx, c, syncOnce, logger); err != nil {
		return err
	}

	logger.Info("syncing", "server", c.BaseURL(), "dest", cfg.Sync.Dest)

	if syncOnce {
		result, err := s.SyncOnce(ctx)
		if result != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d, removed %d, skipped %d (%d bytes)\n",
				len(result.Downloaded), len(result.Removed), len(result.Skipped), result.Bytes)
		}
		return err
	}

	return s.Run(ctx, time.Duration(cfg.Sync.IntervalSecs)*time.Second)
}

// checkServer probes /health before syncing. A server whose watcher has
// stopped is never worth polling. An unreachable server is fatal only for a
// single pass; a long-running sync waits for it to come up.
func checkServer(ctx context.Context, c *client.Client, once bool, logger *slog.Logger) error {
	err := c.Health(ctx)
	if err == nil {
		return nil
	}
	if once || errors.Is(err, domain.ErrWatcherNotRunning) {
		return fmt.Errorf("server %s is not healthy: %w", c.BaseURL(), err)
	}
	logger.Warn("server not reachable yet", "server", c.BaseURL(), "err", err)
	return nil
}

// applySyncFlags overrides the sync section of cfg with command line flags.
func applySyncFlags(cfg *config.Config) error {
	if syncServer != "" {
		cfg.Sync.Server = syncServer
	}
	if syncDest != "" {
		cfg.Sync.Dest = syncDest
	}
	if syncInterval != 0 {
		cfg.Sync.IntervalSecs = syncInterval
	}
	if syncConcurrency != 0 {
		cfg.Sync.Concurrency = syncConcurrency
	}

	if cfg.Sync.Dest == "" {
		return errors.New("no destination: pass --dest or set sync.dest")
	}

	if err := config.PostProcess(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func newSyncLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelInfo
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}
