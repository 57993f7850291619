// Package ledger accumulates file changes between polls.
//
// A Ledger holds two sets of base file names, changed and deleted, guarded by
// a single mutex. Writers add names as the watcher observes events; a reader
// takes everything accumulated so far with Drain, which empties both sets in
// the same critical section. An insertion is therefore reported by exactly one
// drain: the first one whose critical section starts after it.
//
// A name may sit in both sets for the same interval (modified then deleted, or
// deleted then recreated). Both memberships are reported as-is.
package ledger

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultWarnEntries is the pending-entry count above which a warning is logged.
const DefaultWarnEntries = 10000

// Snapshot is the result of a drain. The slices are owned by the caller.
type Snapshot struct {
	Changed []string `json:"changed_files"`
	Deleted []string `json:"deleted_files"`
}

// Empty reports whether the snapshot carries no names.
func (s Snapshot) Empty() bool {
	return len(s.Changed) == 0 && len(s.Deleted) == 0
}

// Ledger is the synchronized changed/deleted accumulation state.
type Ledger struct {
	mu      sync.Mutex
	changed map[string]struct{}
	deleted map[string]struct{}

	warnEntries int
	warned      bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithWarnEntries sets the pending-entry count that triggers a growth warning.
// Zero or negative disables the warning.
func WithWarnEntries(n int) Option {
	return func(l *Ledger) {
		l.warnEntries = n
	}
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		changed:     make(map[string]struct{}),
		deleted:     make(map[string]struct{}),
		warnEntries: DefaultWarnEntries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordChanged adds name to the changed set.
func (l *Ledger) RecordChanged(name string) {
	l.insert(l.changed, name)
}

// RecordDeleted adds name to the deleted set.
func (l *Ledger) RecordDeleted(name string) {
	l.insert(l.deleted, name)
}

func (l *Ledger) insert(set map[string]struct{}, name string) {
	l.mu.Lock()
	set[name] = struct{}{}
	total := len(l.changed) + len(l.deleted)
	crossed := l.warnEntries > 0 && !l.warned && total > l.warnEntries
	if crossed {
		l.warned = true
	}
	l.mu.Unlock()

	if crossed {
		log.Warn().
			Int("pending", total).
			Int("threshold", l.warnEntries).
			Msg("change ledger is growing without being drained")
	}
}

// Drain returns copies of both sets and resets them to empty.
// Names are sorted for stable output.
func (l *Ledger) Drain() Snapshot {
	l.mu.Lock()
	changed := keys(l.changed)
	deleted := keys(l.deleted)
	if len(l.changed) > 0 {
		l.changed = make(map[string]struct{})
	}
	if len(l.deleted) > 0 {
		l.deleted = make(map[string]struct{})
	}
	l.warned = false
	l.mu.Unlock()

	sort.Strings(changed)
	sort.Strings(deleted)
	return Snapshot{Changed: changed, Deleted: deleted}
}

// Pending returns the current set sizes without draining.
func (l *Ledger) Pending() (changed, deleted int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changed), len(l.deleted)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
