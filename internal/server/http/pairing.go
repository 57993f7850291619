package http

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// handlePairingInfo handles GET /api/pairing/info
func (s *Server) handlePairingInfo(w http.ResponseWriter, r *http.Request) {
	if s.qrGenerator == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Pairing not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.qrGenerator.GetPairingInfo())
}

// handlePairingQR handles GET /api/pairing/qr?size=N and returns a PNG.
func (s *Server) handlePairingQR(w http.ResponseWriter, r *http.Request) {
	if s.qrGenerator == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Pairing not enabled")
		return
	}

	size := parseIntParam(r, "size", 256)
	if size <= 0 || size > 512 {
		size = 256
	}

	png, err := s.qrGenerator.GeneratePNG(size)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate QR code")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
