package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/brianly1003/changefeed/internal/domain/events"
	"github.com/brianly1003/changefeed/internal/testutil"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_New(t *testing.T) {
	h := New()

	if h == nil {
		t.Fatal("New() returned nil")
	}
	if h.subscribers == nil {
		t.Error("subscribers map is nil")
	}
	if h.broadcast == nil {
		t.Error("broadcast channel is nil")
	}
	if h.running {
		t.Error("hub should not be running initially")
	}
}

func TestHub_StartStop(t *testing.T) {
	h := New()

	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.IsRunning() {
		t.Error("hub should be running after Start()")
	}

	// Starting again should be a no-op
	if err := h.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.IsRunning() {
		t.Error("hub should not be running after Stop()")
	}

	// Stopping again should be a no-op
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h := New()
	_ = h.Start()
	defer func() { _ = h.Stop() }()

	sub := testutil.NewMockSubscriber("test-1")
	h.Subscribe(sub)

	if h.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", h.SubscriberCount())
	}

	h.Unsubscribe("test-1")

	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() after unsubscribe = %d, want 0", h.SubscriberCount())
	}
	if !sub.IsClosed() {
		t.Error("subscriber should be closed after unsubscribe")
	}
}

func TestHub_PublishToMultipleSubscribers(t *testing.T) {
	h := New()
	_ = h.Start()
	defer func() { _ = h.Stop() }()

	subs := []*testutil.MockSubscriber{
		testutil.NewMockSubscriber("a"),
		testutil.NewMockSubscriber("b"),
		testutil.NewMockSubscriber("c"),
	}
	for _, sub := range subs {
		h.Subscribe(sub)
	}

	for i := 0; i < 5; i++ {
		h.Publish(events.NewChangesAvailableEvent(i, 0))
	}

	for _, sub := range subs {
		waitUntil(t, func() bool { return sub.EventCount() == 5 })
		if sub.EventCount() != 5 {
			t.Errorf("subscriber %s received %d events, want 5", sub.ID(), sub.EventCount())
		}
	}

	received := subs[0].Events()[0]
	if received.Type() != events.EventTypeChangesAvailable {
		t.Errorf("received event type = %v, want %v", received.Type(), events.EventTypeChangesAvailable)
	}
}

func TestHub_FailedSendRemovesSubscriber(t *testing.T) {
	h := New()
	_ = h.Start()
	defer func() { _ = h.Stop() }()

	failingSub := testutil.NewMockSubscriber("failing")
	failingSub.SetSendError(errTestSendFailed)
	goodSub := testutil.NewMockSubscriber("good")

	h.Subscribe(failingSub)
	h.Subscribe(goodSub)

	h.Publish(events.NewHeartbeatEvent(1, 0))

	waitUntil(t, func() bool { return h.SubscriberCount() == 1 && goodSub.EventCount() == 1 })

	if h.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1 (failing subscriber should be removed)", h.SubscriberCount())
	}
	if goodSub.EventCount() != 1 {
		t.Errorf("good subscriber received %d events, want 1", goodSub.EventCount())
	}
	if !failingSub.IsClosed() {
		t.Error("failing subscriber should be closed")
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	// Not started: nothing drains the queue.
	h := New()

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*4; i++ {
			h.Publish(events.NewHeartbeatEvent(int64(i), 0))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	h := New()
	_ = h.Start()
	defer func() { _ = h.Stop() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			h.Subscribe(testutil.NewMockSubscriber(string(rune('a' + id))))
		}(i)
		go func(id int) {
			defer wg.Done()
			h.Publish(events.NewChangesAvailableEvent(id, id))
		}(i)
	}
	wg.Wait()

	if h.SubscriberCount() != 10 {
		t.Errorf("SubscriberCount() = %d, want 10", h.SubscriberCount())
	}
}

func TestHub_StopClosesAllSubscribers(t *testing.T) {
	h := New()
	_ = h.Start()

	sub1 := testutil.NewMockSubscriber("test-1")
	sub2 := testutil.NewMockSubscriber("test-2")
	h.Subscribe(sub1)
	h.Subscribe(sub2)

	_ = h.Stop()

	if !sub1.IsClosed() {
		t.Error("subscriber 1 should be closed after hub stop")
	}
	if !sub2.IsClosed() {
		t.Error("subscriber 2 should be closed after hub stop")
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", h.SubscriberCount())
	}
}

func TestChannelSubscriber_SendAndClose(t *testing.T) {
	sub := NewChannelSubscriber("ch", 1)

	if err := sub.Send(events.NewHeartbeatEvent(1, 0)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := sub.Send(events.NewHeartbeatEvent(2, 0)); err == nil {
		t.Error("Send() on a full buffer should fail")
	}

	event := <-sub.Events()
	if event.Type() != events.EventTypeHeartbeat {
		t.Errorf("event type = %v, want heartbeat", event.Type())
	}

	_ = sub.Close()
	_ = sub.Close()

	if err := sub.Send(events.NewHeartbeatEvent(3, 0)); err == nil {
		t.Error("Send() after Close should fail")
	}
	select {
	case <-sub.Done():
	default:
		t.Error("Done() should be closed")
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Events() should be closed")
	}
}

func TestFilteredSubscriber(t *testing.T) {
	inner := testutil.NewMockSubscriber("inner")
	f := NewFilteredSubscriber(inner, events.EventTypeChangesAvailable)

	_ = f.Send(events.NewHeartbeatEvent(1, 0))
	_ = f.Send(events.NewChangesAvailableEvent(1, 0))

	if inner.EventCount() != 1 {
		t.Fatalf("forwarded %d events, want 1", inner.EventCount())
	}

	f.Allow(events.EventTypeHeartbeat)
	_ = f.Send(events.NewHeartbeatEvent(2, 0))
	if inner.EventCount() != 2 {
		t.Errorf("forwarded %d events after Allow, want 2", inner.EventCount())
	}

	all := NewFilteredSubscriber(testutil.NewMockSubscriber("all"))
	if !all.shouldForward(events.NewHeartbeatEvent(1, 0)) {
		t.Error("empty filter should forward everything")
	}
}

// errTestSendFailed is a test error for failed sends.
var errTestSendFailed = &testSendError{}

type testSendError struct{}

func (e *testSendError) Error() string { return "test send failed" }
