package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"example.com/trigger_bridge/pkg/signal"
)

func ids(peers []*Peer) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out
}

func newRoom(peerIDs ...string) *Room {
	rm := NewRoomManager()
	var room *Room
	for _, id := range peerIDs {
		room = rm.Join("r", &Peer{ID: id})
	}
	return room
}

func TestRecipients(t *testing.T) {
	room := newRoom("agent", "alice", "bob")

	tests := []struct {
		name   string
		from   string
		target string
		want   string
	}{
		{"broadcast", "agent", "", "alice,bob"},
		{"targeted", "agent", "alice", "alice"},
		{"unknown target", "agent", "carol", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(ids(room.Recipients(tt.from, tt.target)), ",")
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRoomManagerDeletesEmptyRooms(t *testing.T) {
	rm := NewRoomManager()
	room := rm.Join("r", &Peer{ID: "a"})

	rm.DeleteRoom("r")
	if rm.GetRoom("r") != room {
		t.Fatal("room with peers must not be deleted")
	}

	if !room.RemovePeer("a") {
		t.Fatal("expected room to be empty")
	}
	rm.DeleteRoom("r")
	if rm.GetRoom("r") != nil {
		t.Fatal("expected empty room to be deleted")
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips negotiation traffic until a message of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) signal.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg signal.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestTriggerEventRelay(t *testing.T) {
	srv := NewServer(log.New(io.Discard))
	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	alice := dial(t, url)
	if err := alice.WriteJSON(signal.Message{Type: signal.TypeJoin, Room: "r", ClientID: "alice"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, alice, signal.TypeOffer)

	agent := dial(t, url)
	if err := agent.WriteJSON(signal.Message{Type: signal.TypeJoin, Room: "r", ClientID: "agent"}); err != nil {
		t.Fatal(err)
	}
	if msg := readUntil(t, alice, signal.TypePeerJoined); msg.ClientID != "agent" {
		t.Fatalf("unexpected peer_joined: %+v", msg)
	}

	if err := agent.WriteJSON(signal.Message{
		Type:     signal.TypeTriggerEvent,
		ClientID: "alice",
		Event:    []byte(`{"type":"begin"}`),
	}); err != nil {
		t.Fatal(err)
	}

	msg := readUntil(t, alice, signal.TypeTriggerEvent)
	if msg.ClientID != "alice" || string(msg.Event) != `{"type":"begin"}` {
		t.Fatalf("unexpected relayed event: %+v", msg)
	}
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	NewServer(log.New(io.Discard)).Routes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}
