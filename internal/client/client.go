// Package client talks to a changefeed server: it polls /changes and
// downloads files from /file.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brianly1003/changefeed/internal/domain"
	"github.com/brianly1003/changefeed/internal/pairing"
)

// DefaultTimeout bounds a poll. Downloads use the caller's context only.
const DefaultTimeout = 30 * time.Second

// ChangeSet is one drained interval as reported by the server.
type ChangeSet struct {
	Changed []string `json:"changed_files"`
	Deleted []string `json:"deleted_files"`
}

// Empty reports whether the interval had no changes.
func (c *ChangeSet) Empty() bool {
	return len(c.Changed) == 0 && len(c.Deleted) == 0
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Unwrap maps the server's error code onto the matching domain sentinel.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case domain.ErrCodeFileNotFound:
		return domain.ErrFileNotFound
	case domain.ErrCodePathOutsideRoot:
		return domain.ErrPathOutsideRoot
	case domain.ErrCodeAmbiguousName:
		return domain.ErrAmbiguousName
	case domain.ErrCodeInvalidFilename:
		return domain.ErrInvalidFilename
	case domain.ErrCodeWatcherNotRunning:
		return domain.ErrWatcherNotRunning
	}
	if e.Status == http.StatusNotFound {
		return domain.ErrFileNotFound
	}
	return nil
}

// Client is a changefeed HTTP client.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the poll timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the server at baseURL (e.g. http://host:5000).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		userAgent:  "changefeed-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Changes polls the server once. The server drains its ledger on every
// successful call, so a ChangeSet that is lost here is lost for good.
func (c *Client) Changes(ctx context.Context) (*ChangeSet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, "/changes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cs ChangeSet
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return nil, fmt.Errorf("decode changes: %w", err)
	}
	return &cs, nil
}

// Download streams the named file into w and returns the bytes written.
// A file that vanished since it was reported yields domain.ErrFileNotFound.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, "/file", url.Values{"filename": {name}})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", name, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("download %s: short body (%d of %d bytes)", name, n, resp.ContentLength)
	}
	return n, nil
}

// Health checks that the server answers /health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, "/health", nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Pairing fetches the addresses the server advertises to clients.
func (c *Client) Pairing(ctx context.Context) (*pairing.PairingInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, "/api/pairing/info", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info pairing.PairingInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode pairing info: %w", err)
	}
	return &info, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	return apiErr
}

// IsNotFound reports whether err means the requested file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrFileNotFound)
}
