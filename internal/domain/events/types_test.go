package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBaseEvent_Type(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
	}{
		{"changes_available", EventTypeChangesAvailable},
		{"connected", EventTypeConnected},
		{"heartbeat", EventTypeHeartbeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEvent(tt.eventType, nil)

			if event.Type() != tt.eventType {
				t.Errorf("Type() = %v, want %v", event.Type(), tt.eventType)
			}
		})
	}
}

func TestBaseEvent_Timestamp(t *testing.T) {
	before := time.Now().UTC()
	event := NewEvent(EventTypeHeartbeat, nil)
	after := time.Now().UTC()

	ts := event.Timestamp()

	if ts.Before(before) {
		t.Errorf("Timestamp() = %v, should be >= %v", ts, before)
	}
	if ts.After(after) {
		t.Errorf("Timestamp() = %v, should be <= %v", ts, after)
	}
}

func TestNewChangesAvailableEvent_JSON(t *testing.T) {
	event := NewChangesAvailableEvent(3, 1)

	jsonBytes, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &parsed); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if parsed["event"] != string(EventTypeChangesAvailable) {
		t.Errorf("JSON event = %v, want %v", parsed["event"], EventTypeChangesAvailable)
	}
	if _, ok := parsed["timestamp"]; !ok {
		t.Error("JSON should contain timestamp field")
	}
	if _, ok := parsed["request_id"]; ok {
		t.Error("request_id should be omitted when empty")
	}

	payload, ok := parsed["payload"].(map[string]interface{})
	if !ok {
		t.Fatal("JSON payload should be a map")
	}
	if payload["changed"] != float64(3) {
		t.Errorf("payload.changed = %v, want 3", payload["changed"])
	}
	if payload["deleted"] != float64(1) {
		t.Errorf("payload.deleted = %v, want 1", payload["deleted"])
	}
}

func TestNewEventWithRequestID(t *testing.T) {
	event := NewEventWithRequestID(EventTypeConnected, nil, "req-1")

	if event.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want %q", event.RequestID, "req-1")
	}
}
