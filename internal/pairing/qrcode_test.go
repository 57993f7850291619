package pairing

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewQRGenerator(t *testing.T) {
	gen := NewQRGenerator("localhost", 5000, "shared")

	if gen.host != "localhost" {
		t.Errorf("expected host localhost, got %s", gen.host)
	}
	if gen.port != 5000 {
		t.Errorf("expected port 5000, got %d", gen.port)
	}
	if gen.rootName != "shared" {
		t.Errorf("expected rootName shared, got %s", gen.rootName)
	}
}

func TestNewQRGenerator_WildcardHost(t *testing.T) {
	gen := NewQRGenerator("0.0.0.0", 5000, "shared")
	if gen.host == "0.0.0.0" || gen.host == "" {
		t.Errorf("wildcard host should be replaced, got %q", gen.host)
	}
}

func TestQRGenerator_GetPairingInfo(t *testing.T) {
	gen := NewQRGenerator("192.168.1.100", 5000, "shared")

	info := gen.GetPairingInfo()

	if info.HTTP != "http://192.168.1.100:5000" {
		t.Errorf("HTTP = %s", info.HTTP)
	}
	if info.Changes != "http://192.168.1.100:5000/changes" {
		t.Errorf("Changes = %s", info.Changes)
	}
	if info.File != "http://192.168.1.100:5000/file?filename=" {
		t.Errorf("File = %s", info.File)
	}
	if info.WebSocket != "ws://192.168.1.100:5000/ws" {
		t.Errorf("WebSocket = %s", info.WebSocket)
	}
	if info.RootName != "shared" {
		t.Errorf("RootName = %s", info.RootName)
	}
}

func TestQRGenerator_IPv6Host(t *testing.T) {
	gen := NewQRGenerator("fe80::1", 5000, "shared")
	if got := gen.GetPairingInfo().HTTP; got != "http://[fe80::1]:5000" {
		t.Errorf("HTTP = %s", got)
	}
}

func TestQRGenerator_SetExternalURL(t *testing.T) {
	tests := []struct {
		external string
		wantHTTP string
		wantWS   string
	}{
		{"https://feed.example.com/", "https://feed.example.com", "wss://feed.example.com/ws"},
		{"http://feed.example.com", "http://feed.example.com", "ws://feed.example.com/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.external, func(t *testing.T) {
			gen := NewQRGenerator("localhost", 5000, "shared")
			gen.SetExternalURL(tt.external)

			info := gen.GetPairingInfo()
			if info.HTTP != tt.wantHTTP {
				t.Errorf("HTTP = %s, want %s", info.HTTP, tt.wantHTTP)
			}
			if info.WebSocket != tt.wantWS {
				t.Errorf("WebSocket = %s, want %s", info.WebSocket, tt.wantWS)
			}
			if info.Changes != tt.wantHTTP+"/changes" {
				t.Errorf("Changes = %s", info.Changes)
			}
		})
	}
}

func TestQRGenerator_GenerateJSON(t *testing.T) {
	gen := NewQRGenerator("localhost", 5000, "shared")

	jsonStr, err := gen.GenerateJSON()
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}

	var info PairingInfo
	if err := json.Unmarshal([]byte(jsonStr), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Changes != "http://localhost:5000/changes" {
		t.Errorf("Changes = %s", info.Changes)
	}
}

func TestQRGenerator_GeneratePNG(t *testing.T) {
	gen := NewQRGenerator("localhost", 5000, "shared")

	png, err := gen.GeneratePNG(128)
	if err != nil {
		t.Fatalf("GeneratePNG() error = %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestQRGenerator_PrintToTerminal(t *testing.T) {
	gen := NewQRGenerator("localhost", 5000, "shared")

	var buf bytes.Buffer
	if err := gen.PrintToTerminal(&buf); err != nil {
		t.Fatalf("PrintToTerminal() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "http://localhost:5000/changes") {
		t.Errorf("output missing poll URL: %q", out)
	}
	if len(strings.Split(out, "\n")) < 10 {
		t.Error("output should contain the QR block")
	}
}
