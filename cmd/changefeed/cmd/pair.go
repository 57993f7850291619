package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brianly1003/changefeed/internal/client"
	"github.com/brianly1003/changefeed/internal/config"
	"github.com/brianly1003/changefeed/internal/pairing"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	pairJSON        bool
	pairURL         bool
	pairExternalURL string
)

// pairCmd displays a QR code that points a client at the server.
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Display QR code with the server address",
	Long: `Display a QR code with the changefeed server addresses.

If a changefeed server is running locally, its advertised addresses are
used. Otherwise the addresses are derived from the configuration.

Examples:
  changefeed pair              # Display QR code in terminal
  changefeed pair --json       # Output pairing info as JSON
  changefeed pair --url        # Output URLs only`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().BoolVar(&pairJSON, "json", false, "output pairing info as JSON")
	pairCmd.Flags().BoolVar(&pairURL, "url", false, "output URLs only")
	pairCmd.Flags().StringVar(&pairExternalURL, "external-url", "", "override external URL for pairing output")
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	errOut := cmd.ErrOrStderr()
	info, err := pairingFromServer(cmd.Context(), cfg)
	if err != nil || pairExternalURL != "" {
		if err != nil {
			fmt.Fprintln(errOut, "No running changefeed server found, using config")
		}
		info = pairingFromConfig(cfg, pairExternalURL)
	} else {
		fmt.Fprintln(errOut, "Connected to running changefeed server")
	}

	out := cmd.OutOrStdout()
	switch {
	case pairJSON:
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	case pairURL:
		fmt.Fprintf(out, "HTTP:      %s\n", info.HTTP)
		fmt.Fprintf(out, "Changes:   %s\n", info.Changes)
		fmt.Fprintf(out, "WebSocket: %s\n", info.WebSocket)
		return nil
	}
	return outputQR(out, info)
}

// pairingFromServer asks a locally running server for its pairing info.
func pairingFromServer(ctx context.Context, cfg *config.Config) (*pairing.PairingInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	base := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))

	c, err := client.New(base, client.WithTimeout(2*time.Second))
	if err != nil {
		return nil, err
	}
	return c.Pairing(ctx)
}

func pairingFromConfig(cfg *config.Config, externalURL string) *pairing.PairingInfo {
	gen := pairing.NewQRGenerator(cfg.Server.Host, cfg.Server.Port, filepath.Base(cfg.Watch.Root))
	if externalURL != "" {
		gen.SetExternalURL(externalURL)
	} else if cfg.Server.ExternalURL != "" {
		gen.SetExternalURL(cfg.Server.ExternalURL)
	}
	return gen.GetPairingInfo()
}

func outputQR(w io.Writer, info *pairing.PairingInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	qr, err := qrcode.New(string(data), qrcode.Medium)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}

	fmt.Fprintln(w)
	for _, line := range strings.Split(qr.ToSmallString(false), "\n") {
		if line != "" {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Root:    %s\n", info.RootName)
	fmt.Fprintf(w, "  Changes: %s\n", info.Changes)
	fmt.Fprintln(w)
	return nil
}
