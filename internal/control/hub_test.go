package control

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeDispatcher struct {
	calls []string
}

func (f *fakeDispatcher) Dispatch(verb string, payload json.RawMessage) (any, error) {
	f.calls = append(f.calls, verb)
	if verb == "fail_verb" {
		return nil, fmt.Errorf("boom")
	}
	return map[string]string{"echo": verb}, nil
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDispatchRoundTrip(t *testing.T) {
	disp := &fakeDispatcher{}
	hub := NewHub(disp)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	req := Request{ID: "1", Verb: "app_status"}
	data, _ := json.Marshal(req)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID != "1" || resp.Error != "" {
		t.Fatalf("got %+v, want id=1 with no error", resp)
	}
}

func TestDispatchErrorIsReturnedNotDropped(t *testing.T) {
	disp := &fakeDispatcher{}
	hub := NewHub(disp)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	req := Request{ID: "2", Verb: "fail_verb"}
	data, _ := json.Marshal(req)
	conn.WriteMessage(websocket.TextMessage, data)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	json.Unmarshal(raw, &resp)
	if resp.Error == "" {
		t.Fatal("expected a non-empty error for fail_verb")
	}
}

func TestBroadcastReachesConnectedClient(t *testing.T) {
	hub := NewHub(&fakeDispatcher{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(Event{Type: "lifecycle", Data: "Streaming"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != "lifecycle" {
		t.Fatalf("got type %q, want lifecycle", ev.Type)
	}
}
