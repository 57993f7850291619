package events

// ChangesAvailablePayload is the payload for changes_available events.
// Counts are a snapshot of the pending ledger and are never drained by the hint.
type ChangesAvailablePayload struct {
	Changed int `json:"changed"`
	Deleted int `json:"deleted"`
}

// ConnectedPayload is sent once when a push client attaches.
type ConnectedPayload struct {
	ClientID string `json:"client_id"`
	Root     string `json:"root"`
}

// HeartbeatPayload keeps idle push connections observable.
type HeartbeatPayload struct {
	Sequence      int64 `json:"sequence"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// NewChangesAvailableEvent creates a new changes_available event.
func NewChangesAvailableEvent(changed, deleted int) *BaseEvent {
	return NewEvent(EventTypeChangesAvailable, ChangesAvailablePayload{
		Changed: changed,
		Deleted: deleted,
	})
}

// NewConnectedEvent creates a new connected event.
func NewConnectedEvent(clientID, root string) *BaseEvent {
	return NewEvent(EventTypeConnected, ConnectedPayload{
		ClientID: clientID,
		Root:     root,
	})
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(seq, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, HeartbeatPayload{
		Sequence:      seq,
		UptimeSeconds: uptimeSeconds,
	})
}
