package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/changefeed/internal/domain/events"
	"github.com/brianly1003/changefeed/internal/hub"
	"github.com/gorilla/websocket"
)

type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func setup(t *testing.T) (*Handler, *hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.New()
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	handler := NewHandler(h, "shared")
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		handler.Stop()
		_ = h.Stop()
		srv.Close()
	})
	return handler, h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandler_ConnectedFirst(t *testing.T) {
	handler, h, srv := setup(t)
	conn := dial(t, srv)

	f := readFrame(t, conn)
	if f.Event != string(events.EventTypeConnected) {
		t.Fatalf("first frame = %s, want connected", f.Event)
	}
	var p events.ConnectedPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.ClientID == "" || p.Root != "shared" {
		t.Errorf("payload = %+v", p)
	}

	waitFor(t, func() bool { return handler.ClientCount() == 1 && h.SubscriberCount() == 1 })
}

func TestHandler_ForwardsChangesAvailable(t *testing.T) {
	_, h, srv := setup(t)
	conn := dial(t, srv)
	readFrame(t, conn)
	waitFor(t, func() bool { return h.SubscriberCount() == 1 })

	h.Publish(events.NewChangesAvailableEvent(3, 1))

	f := readFrame(t, conn)
	if f.Event != string(events.EventTypeChangesAvailable) {
		t.Fatalf("frame = %s, want changes_available", f.Event)
	}
	var p events.ChangesAvailablePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Changed != 3 || p.Deleted != 1 {
		t.Errorf("payload = %+v, want 3/1", p)
	}
}

func TestHandler_FiltersOtherEvents(t *testing.T) {
	_, h, srv := setup(t)
	conn := dial(t, srv)
	readFrame(t, conn)
	waitFor(t, func() bool { return h.SubscriberCount() == 1 })

	// A connected event meant for someone else must not be forwarded.
	h.Publish(events.NewConnectedEvent("other", "elsewhere"))
	h.Publish(events.NewChangesAvailableEvent(1, 0))

	f := readFrame(t, conn)
	if f.Event != string(events.EventTypeChangesAvailable) {
		t.Fatalf("frame = %s, want changes_available", f.Event)
	}
}

func TestHandler_Heartbeat(t *testing.T) {
	h := hub.New()
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	handler := NewHandler(h, "shared")
	handler.SetHeartbeatInterval(30 * time.Millisecond)
	handler.Start()
	srv := httptest.NewServer(handler)
	defer func() {
		handler.Stop()
		_ = h.Stop()
		srv.Close()
	}()

	conn := dial(t, srv)
	readFrame(t, conn)

	f := readFrame(t, conn)
	if f.Event != string(events.EventTypeHeartbeat) {
		t.Fatalf("frame = %s, want heartbeat", f.Event)
	}
}

func TestHandler_ClientDisconnectUnsubscribes(t *testing.T) {
	handler, h, srv := setup(t)
	conn := dial(t, srv)
	readFrame(t, conn)
	waitFor(t, func() bool { return h.SubscriberCount() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitFor(t, func() bool { return handler.ClientCount() == 0 && h.SubscriberCount() == 0 })
}

func TestHandler_StopClosesClients(t *testing.T) {
	handler, _, srv := setup(t)
	conn := dial(t, srv)
	readFrame(t, conn)
	waitFor(t, func() bool { return handler.ClientCount() == 1 })

	handler.Stop()
	handler.Stop()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after Stop")
	}
	if handler.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", handler.ClientCount())
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	handler, _, _ := setup(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code < 400 {
		t.Errorf("status = %d, want a client error", rec.Code)
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	c := &Client{id: "x", send: make(chan []byte, 1), done: make(chan struct{})}
	c.Close()
	c.Close()
	if c.Send([]byte("hi")) {
		t.Error("Send on closed client should report false")
	}
	if err := NewClientSubscriber(c).Send(events.NewChangesAvailableEvent(1, 0)); err == nil {
		t.Error("expected ErrSubscriberClosed")
	}
}
