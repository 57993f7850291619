package ports

import "context"

// ChangeRecorder receives file-level changes observed under the watched root.
// Implementations must not block on I/O.
type ChangeRecorder interface {
	// RecordChanged notes that a file was created or modified.
	RecordChanged(name string)

	// RecordDeleted notes that a file was removed.
	RecordDeleted(name string)
}

// FileWatcher defines the contract for file system monitoring.
type FileWatcher interface {
	// Start begins watching the root directory recursively.
	Start(ctx context.Context) error

	// Stop terminates file watching.
	Stop() error

	// IsRunning returns true if the watcher is active.
	IsRunning() bool
}
