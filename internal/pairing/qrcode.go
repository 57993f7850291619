// Package pairing renders the server address as a QR code so a phone client
// can be pointed at the change feed without typing a URL.
package pairing

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/skip2/go-qrcode"
)

// PairingInfo contains the information encoded in the QR code.
type PairingInfo struct {
	HTTP      string `json:"http"`
	Changes   string `json:"changes"`
	File      string `json:"file"`
	WebSocket string `json:"ws"`
	RootName  string `json:"root"`
}

// QRGenerator generates QR codes for client pairing.
type QRGenerator struct {
	host        string
	port        int
	rootName    string
	externalURL string // Optional: public base URL (tunnels, port forwarding)
}

// NewQRGenerator creates a new QR code generator. A wildcard host is replaced
// by the first non-loopback IPv4 address so the code is reachable from the LAN.
func NewQRGenerator(host string, port int, rootName string) *QRGenerator {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = LocalIP()
	}
	return &QRGenerator{
		host:     host,
		port:     port,
		rootName: rootName,
	}
}

// SetExternalURL overrides the advertised base URL.
func (g *QRGenerator) SetExternalURL(httpURL string) {
	g.externalURL = strings.TrimSuffix(httpURL, "/")
}

// GetPairingInfo returns the pairing information.
func (g *QRGenerator) GetPairingInfo() *PairingInfo {
	base := fmt.Sprintf("http://%s", net.JoinHostPort(g.host, fmt.Sprint(g.port)))
	if g.externalURL != "" {
		base = g.externalURL
	}

	wsBase := "ws" + strings.TrimPrefix(base, "http")

	return &PairingInfo{
		HTTP:      base,
		Changes:   base + "/changes",
		File:      base + "/file?filename=",
		WebSocket: wsBase + "/ws",
		RootName:  g.rootName,
	}
}

// GenerateJSON returns the pairing info as JSON.
func (g *QRGenerator) GenerateJSON() (string, error) {
	data, err := json.Marshal(g.GetPairingInfo())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GenerateTerminal generates a QR code for terminal display.
func (g *QRGenerator) GenerateTerminal() (string, error) {
	jsonData, err := g.GenerateJSON()
	if err != nil {
		return "", err
	}

	qr, err := qrcode.New(jsonData, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// GeneratePNG generates a PNG image of the QR code.
func (g *QRGenerator) GeneratePNG(size int) ([]byte, error) {
	jsonData, err := g.GenerateJSON()
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(jsonData, qrcode.Medium, size)
}

// PrintToTerminal writes the QR code with a short caption to w.
func (g *QRGenerator) PrintToTerminal(w io.Writer) error {
	qrStr, err := g.GenerateTerminal()
	if err != nil {
		return err
	}

	info := g.GetPairingInfo()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Poll %s from your client, or scan:\n", info.Changes)
	fmt.Fprintln(w)
	for _, line := range strings.Split(qrStr, "\n") {
		if line != "" {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// LocalIP returns the first non-loopback IPv4 address, or "localhost".
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "localhost"
}
