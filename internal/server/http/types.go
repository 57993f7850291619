// Package http implements the HTTP API server for changefeed.
package http

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ChangesResponse is the poll payload. Both lists are sorted and never null.
type ChangesResponse struct {
	ChangedFiles []string `json:"changed_files"`
	DeletedFiles []string `json:"deleted_files"`
}

// StatusResponse represents the server status response.
type StatusResponse struct {
	RootName         string `json:"root_name"`
	WatcherRunning   bool   `json:"watcher_running"`
	PendingChanged   int    `json:"pending_changed"`
	PendingDeleted   int    `json:"pending_deleted"`
	ConnectedClients int    `json:"connected_clients"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// ErrorResponse represents an error response. It never carries server paths.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
