package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianly1003/changefeed/internal/domain/events"
)

func TestMockSubscriber_Send(t *testing.T) {
	sub := NewMockSubscriber("test-sub")
	if sub.ID() != "test-sub" {
		t.Errorf("expected ID test-sub, got %s", sub.ID())
	}

	if err := sub.Send(events.NewChangesAvailableEvent(2, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evts := sub.Events()
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if evts[0].Type() != events.EventTypeChangesAvailable {
		t.Errorf("expected changes_available event, got %s", evts[0].Type())
	}
}

func TestMockSubscriber_SendWithError(t *testing.T) {
	sub := NewMockSubscriber("test-sub")
	expectedErr := errors.New("send failed")
	sub.SetSendError(expectedErr)

	if err := sub.Send(events.NewHeartbeatEvent(1, 0)); err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if sub.EventCount() != 0 {
		t.Errorf("expected 0 events when error, got %d", sub.EventCount())
	}
}

func TestMockSubscriber_Close(t *testing.T) {
	sub := NewMockSubscriber("test-sub")

	select {
	case <-sub.Done():
		t.Fatal("Done channel should not be closed initially")
	default:
	}

	_ = sub.Close()
	_ = sub.Close()

	if !sub.IsClosed() {
		t.Error("expected subscriber to be closed")
	}
	select {
	case <-sub.Done():
	default:
		t.Error("Done channel should be closed after Close()")
	}
}

func TestMockEventHub(t *testing.T) {
	hub := NewMockEventHub()
	hub.Subscribe(NewMockSubscriber("sub-1"))
	hub.Subscribe(NewMockSubscriber("sub-2"))
	hub.Unsubscribe("sub-1")
	hub.Unsubscribe("non-existent")

	if hub.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	hub.Publish(events.NewHeartbeatEvent(1, 5))
	if evts := hub.PublishedEvents(); len(evts) != 1 || evts[0].Type() != events.EventTypeHeartbeat {
		t.Errorf("unexpected published events %v", evts)
	}
}

func TestMockRecorder(t *testing.T) {
	rec := &MockRecorder{}
	rec.RecordChanged("a.txt")
	rec.RecordDeleted("b.txt")
	rec.RecordChanged("a.txt")

	changed, deleted := rec.Calls()
	if len(changed) != 2 || len(deleted) != 1 || deleted[0] != "b.txt" {
		t.Errorf("Calls() = %v, %v", changed, deleted)
	}
}

func TestWriteFile(t *testing.T) {
	root := t.TempDir()
	path := WriteFile(t, root, "nested/dir/file.txt", "hello")

	if path != filepath.Join(root, "nested", "dir", "file.txt") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
}
