package http

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"path/filepath"

	"github.com/brianly1003/changefeed/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleChanges handles GET /changes.
//
// Every call drains the ledger exactly once. A drained name is never
// re-delivered, even if this response fails to reach the client.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	snap := s.changes.Drain()

	if !snap.Empty() {
		log.Debug().
			Int("changed", len(snap.Changed)).
			Int("deleted", len(snap.Deleted)).
			Str("remote", r.RemoteAddr).
			Msg("changes drained")
	}

	writeJSON(w, http.StatusOK, ChangesResponse{
		ChangedFiles: nonNil(snap.Changed),
		DeletedFiles: nonNil(snap.Deleted),
	})
}

// handleFile handles GET /file?filename=NAME.
//
// The file is streamed as an attachment straight from disk. Ledger
// membership plays no part: any existing file under the root can be fetched.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	if name == "" {
		writeError(w, http.StatusBadRequest, domain.ErrCodeInvalidFilename, "filename query parameter is required")
		return
	}

	f, info, err := s.files.Open(name)
	if err != nil {
		status, code, msg := fetchError(err)
		event := log.Debug()
		if status == http.StatusForbidden {
			event = log.Warn()
		}
		event.Err(err).
			Str("name", name).
			Str("remote", r.RemoteAddr).
			Int("status", status).
			Msg("file fetch rejected")
		writeError(w, status, code, msg)
		return
	}
	defer f.Close()

	base := path.Base(filepath.ToSlash(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base}))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	log.Debug().
		Str("name", name).
		Int64("size", info.Size()).
		Msg("serving file")

	http.ServeContent(w, r, base, info.ModTime(), f)
}

// fetchError maps a resolver error to a client-facing status, code and
// message. Messages are fixed strings so server paths never leak.
func fetchError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidFilename):
		return http.StatusBadRequest, domain.ErrCodeInvalidFilename, "Invalid file name"
	case errors.Is(err, domain.ErrPathOutsideRoot):
		return http.StatusForbidden, domain.ErrCodePathOutsideRoot, "Path is outside the watched root"
	case errors.Is(err, domain.ErrAmbiguousName):
		return http.StatusConflict, domain.ErrCodeAmbiguousName, "File name matches more than one file; use a relative path"
	default:
		return http.StatusNotFound, domain.ErrCodeFileNotFound, "File not found"
	}
}

func nonNil(names []string) []string {
	if names == nil {
		return []string{}
	}
	return names
}
