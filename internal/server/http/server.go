package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/brianly1003/changefeed/internal/domain"
	"github.com/brianly1003/changefeed/internal/domain/ports"
	"github.com/brianly1003/changefeed/internal/files"
	"github.com/brianly1003/changefeed/internal/ledger"
	"github.com/brianly1003/changefeed/internal/pairing"
	"github.com/brianly1003/changefeed/internal/server/http/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// DefaultRequestTimeout bounds non-streaming handlers.
const DefaultRequestTimeout = 30 * time.Second

// ChangeSource is the ledger as seen by the query interface.
type ChangeSource interface {
	Drain() ledger.Snapshot
	Pending() (changed, deleted int)
}

// WebSocketHandler is a function that handles WebSocket connections.
type WebSocketHandler func(http.ResponseWriter, *http.Request)

// Server is the HTTP API server.
type Server struct {
	server         *http.Server
	router         *mux.Router
	addr           string
	listenAddr     string
	changes        ChangeSource
	files          *files.Resolver
	watcher        ports.FileWatcher
	eventHub       ports.EventHub
	qrGenerator    *pairing.QRGenerator
	wsHandler      WebSocketHandler
	rateLimiter    *middleware.RateLimiter
	requestTimeout time.Duration
	startTime      time.Time
	mu             sync.RWMutex
}

// New creates a new HTTP server. changes is drained exactly once per poll.
func New(host string, port int, changes ChangeSource, resolver *files.Resolver) *Server {
	s := &Server{
		addr:           net.JoinHostPort(host, strconv.Itoa(port)),
		changes:        changes,
		files:          resolver,
		router:         mux.NewRouter(),
		requestTimeout: DefaultRequestTimeout,
		startTime:      time.Now(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/changes", s.handleChanges).Methods(http.MethodGet)
	s.router.HandleFunc("/file", s.handleFile).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/pairing/info", s.handlePairingInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/api/pairing/qr", s.handlePairingQR).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return s
}

// SetWatcher sets the watcher reported by /api/status.
func (s *Server) SetWatcher(w ports.FileWatcher) {
	s.watcher = w
}

// SetEventHub sets the hub whose subscriber count /api/status reports.
func (s *Server) SetEventHub(hub ports.EventHub) {
	s.eventHub = hub
}

// SetPairing enables the /api/pairing endpoints.
func (s *Server) SetPairing(gen *pairing.QRGenerator) {
	s.qrGenerator = gen
}

// SetWebSocketHandler sets the handler for /ws.
func (s *Server) SetWebSocketHandler(handler WebSocketHandler) {
	s.wsHandler = handler
}

// SetRateLimiter enables per-client rate limiting.
func (s *Server) SetRateLimiter(limiter *middleware.RateLimiter) {
	s.rateLimiter = limiter
}

// SetRequestTimeout sets the timeout applied to non-streaming handlers.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	// request -> logging -> rate limit (optional) -> timeout -> router
	var handler http.Handler = s.router
	handler = timeoutMiddleware(s.requestTimeout, handler)

	if s.rateLimiter != nil {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
		log.Info().Int("per_minute", s.rateLimiter.Limit()).Msg("rate limiting enabled for HTTP server")
	}

	return requestLoggingMiddleware(handler)
}

// Start binds the listen address and serves in the background.
// A bind failure is returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	log.Info().Str("addr", s.listenAddr).Msg("HTTP server starting")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listenAddr != "" {
		return s.listenAddr
	}
	return s.addr
}

// Stop gracefully stops the HTTP server. In-flight requests run to completion
// or until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	log.Info().Msg("HTTP server stopping")
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	return srv.Shutdown(ctx)
}

// handleHealth handles GET /health. A server whose watcher has stopped is
// reported unhealthy, since its feed no longer reflects the filesystem.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.watcher != nil && !s.watcher.IsRunning() {
		writeError(w, http.StatusServiceUnavailable, domain.ErrCodeWatcherNotRunning, domain.ErrWatcherNotRunning.Error())
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus handles GET /api/status. It peeks at the ledger and never drains it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	changed, deleted := s.changes.Pending()

	resp := StatusResponse{
		PendingChanged: changed,
		PendingDeleted: deleted,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
	}
	if s.files != nil {
		resp.RootName = filepath.Base(s.files.Root())
	}
	if s.watcher != nil {
		resp.WatcherRunning = s.watcher.IsRunning()
	}
	if s.eventHub != nil {
		resp.ConnectedClients = s.eventHub.SubscriberCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.wsHandler == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Push channel not enabled")
		return
	}
	log.Debug().
		Str("remote", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("WebSocket upgrade request received at /ws")
	s.wsHandler(w, r)
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// statusRecorder captures the response status for logging. It passes
// Hijack and Flush through so /ws upgrades and streaming keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// timeoutMiddleware wraps handlers with a timeout to prevent hanging requests.
func timeoutMiddleware(timeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// File transfers and WebSocket upgrades are long-lived by nature.
		if r.URL.Path == "/ws" || r.URL.Path == "/file" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		done := make(chan struct{})
		tw := &timeoutResponseWriter{ResponseWriter: w, header: make(http.Header)}

		go func() {
			defer close(done)
			next.ServeHTTP(tw, r.WithContext(ctx))
		}()

		select {
		case <-done:
			tw.flushTo(w)
		case <-ctx.Done():
			tw.mu.Lock()
			tw.timedOut = true
			tw.mu.Unlock()
			log.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("timeout", timeout).
				Msg("request timed out")
			writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out")
		}
	})
}

// timeoutResponseWriter buffers a handler's response so nothing reaches the
// client after the deadline fires.
type timeoutResponseWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	header   http.Header
	body     []byte
	status   int
	timedOut bool
}

func (tw *timeoutResponseWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutResponseWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.status != 0 {
		return
	}
	tw.status = code
}

func (tw *timeoutResponseWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if tw.status == 0 {
		tw.status = http.StatusOK
	}
	tw.body = append(tw.body, b...)
	return len(b), nil
}

func (tw *timeoutResponseWriter) flushTo(w http.ResponseWriter) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	dst := w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	if tw.status == 0 {
		tw.status = http.StatusOK
	}
	w.WriteHeader(tw.status)
	_, _ = w.Write(tw.body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	valStr := r.URL.Query().Get(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
