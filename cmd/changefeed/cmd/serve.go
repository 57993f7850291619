package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/brianly1003/changefeed/internal/app"
	"github.com/brianly1003/changefeed/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	serveRoot        string
	servePort        int
	serveHost        string
	serveExternalURL string
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch a directory and serve its change feed",
	Long: `Watch a directory tree and serve the change feed over HTTP.

Endpoints:
  GET /changes              drain and return pending changed and deleted files
  GET /file?filename=NAME   download a file by relative path or bare name
  GET /ws                   WebSocket hints when changes are waiting
  GET /health               liveness check

Example:
  changefeed serve                          # Watch the current directory
  changefeed serve --root /srv/drop         # Watch another directory
  changefeed serve --port 8080 --host 127.0.0.1

Tunnels:
  When the server is reached through a tunnel or port forward, pass the
  public URL so the pairing QR code points at it:

  changefeed serve --external-url https://your-tunnel.example.com`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "directory to watch (default: current directory)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, fmt.Sprintf("server port (default: %d)", config.DefaultPort))
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (default: 0.0.0.0)")
	serveCmd.Flags().StringVar(&serveExternalURL, "external-url", "", "public base URL advertised to clients")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyServeFlags(cfg); err != nil {
		return err
	}

	closer := setupLogging(cfg)
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	log.Info().
		Str("version", version).
		Str("root", cfg.Watch.Root).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting changefeed")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	application.SetOutput(cmd.OutOrStdout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("changefeed stopped")
	return nil
}

// applyServeFlags overrides cfg with command line flags and re-validates.
func applyServeFlags(cfg *config.Config) error {
	if serveRoot != "" {
		cfg.Watch.Root = serveRoot
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveExternalURL != "" {
		cfg.Server.ExternalURL = serveExternalURL
	}

	if err := config.PostProcess(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// setupLogging configures the global zerolog logger. When a log file is
// configured the returned closer must be closed on exit.
func setupLogging(cfg *config.Config) io.Closer {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var console io.Writer = os.Stderr
	if cfg.Logging.Format == "console" || verbose {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if cfg.Logging.File == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, rotator)).With().Timestamp().Logger()
	return rotator
}
