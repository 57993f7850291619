// Package syncer mirrors a changefeed server into a local directory.
//
// Every pass polls the server once, removes local copies of deleted names and
// downloads changed names. The mirror is flat: the feed reports base names
// only, so every file lands directly in the destination directory.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianly1003/changefeed/internal/client"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of parallel downloads per pass.
const DefaultConcurrency = 4

// mirrorFileMode is the permission given to downloaded files.
const mirrorFileMode os.FileMode = 0o644

// Source is the server side of a sync pass.
type Source interface {
	Changes(ctx context.Context) (*client.ChangeSet, error)
	Download(ctx context.Context, name string, w io.Writer) (int64, error)
}

// Result summarizes one pass.
type Result struct {
	Downloaded []string
	Removed    []string
	Skipped    []string // reported changed but gone by the time we fetched
	Bytes      int64
}

// Syncer applies drained change sets to a local directory.
type Syncer struct {
	source      Source
	dest        string
	concurrency int
	logger      *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithConcurrency sets the number of parallel downloads.
func WithConcurrency(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Syncer writing into dest.
func New(source Source, dest string, opts ...Option) *Syncer {
	s := &Syncer{
		source:      source,
		dest:        dest,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncOnce runs a single pass. Per-file failures do not stop the pass; they
// are returned together as a *multierror.Error alongside the partial result.
// A failed poll returns immediately since there is nothing to apply.
func (s *Syncer) SyncOnce(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(s.dest, 0755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	cs, err := s.source.Changes(ctx)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}

	result := &Result{}
	if cs.Empty() {
		return result, nil
	}

	var errs *multierror.Error

	// Deletions first: a name both deleted and changed in one interval was
	// recreated if the server still has it, and the download restores it.
	for _, name := range cs.Deleted {
		path, err := s.localPath(name)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", name, err))
			}
			continue
		}
		result.Removed = append(result.Removed, name)
		s.logger.Debug("removed", "name", name)
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)

	for _, name := range cs.Changed {
		name := name
		eg.Go(func() error {
			n, err := s.fetch(egCtx, name)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Downloaded = append(result.Downloaded, name)
				result.Bytes += n
			case client.IsNotFound(err):
				result.Skipped = append(result.Skipped, name)
				s.logger.Debug("changed file no longer on server", "name", name)
			default:
				errs = multierror.Append(errs, err)
			}
			// Never abort the group: one bad file must not cancel the rest.
			return nil
		})
	}
	_ = eg.Wait()

	sort.Strings(result.Downloaded)
	sort.Strings(result.Skipped)

	return result, errs.ErrorOrNil()
}

// Run syncs every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.pass(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Syncer) pass(ctx context.Context) {
	start := time.Now()
	result, err := s.SyncOnce(ctx)
	if result != nil && (len(result.Downloaded) > 0 || len(result.Removed) > 0 || len(result.Skipped) > 0) {
		s.logger.Info("sync pass",
			"downloaded", len(result.Downloaded),
			"removed", len(result.Removed),
			"skipped", len(result.Skipped),
			"bytes", result.Bytes,
			"took", time.Since(start).Round(time.Millisecond),
		)
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("sync pass failed", "err", err)
	}
}

// fetch downloads name into a temp file beside its destination and renames
// it into place, so readers never see a partial file.
func (s *Syncer) fetch(ctx context.Context, name string) (int64, error) {
	path, err := s.localPath(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.dest, ".changefeed-*")
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	n, err := s.source.Download(ctx, name, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("download %s: %w", name, err)
	}

	// CreateTemp makes the file owner-only.
	if err := os.Chmod(tmpName, mirrorFileMode); err != nil {
		return n, fmt.Errorf("install %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, fmt.Errorf("install %s: %w", name, err)
	}
	s.logger.Debug("downloaded", "name", name, "bytes", n)
	return n, nil
}

// localPath maps a reported base name into the mirror, refusing anything
// that is not a plain file name.
func (s *Syncer) localPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("refusing unsafe file name %q", name)
	}
	return filepath.Join(s.dest, name), nil
}
