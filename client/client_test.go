package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"example.com/trigger_bridge/pkg/signal"
	"example.com/trigger_bridge/pkg/trigger"
)

// fakeServer records every message a client sends and lets the test push
// messages back.
type fakeServer struct {
	received chan signal.Message
	outgoing chan signal.Message
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	fs := &fakeServer{
		received: make(chan signal.Message, 16),
		outgoing: make(chan signal.Message, 16),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for msg := range fs.outgoing {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}()

		for {
			var msg signal.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			fs.received <- msg
		}
	}))
	t.Cleanup(srv.Close)

	return fs, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (fs *fakeServer) next(t *testing.T) signal.Message {
	t.Helper()
	select {
	case msg := <-fs.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return signal.Message{}
	}
}

func TestConnectJoinsRoom(t *testing.T) {
	fs, url := newFakeServer(t)
	c := NewClient("agent-1", url, log.New(io.Discard))
	if err := c.Connect("kitchen"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	msg := fs.next(t)
	if msg.Type != signal.TypeJoin || msg.Room != "kitchen" || msg.ClientID != "agent-1" {
		t.Fatalf("unexpected join message: %+v", msg)
	}
	if !c.IsConnected() {
		t.Fatal("expected client to be connected")
	}
	if err := c.Connect("kitchen"); err == nil {
		t.Fatal("expected error on second connect")
	}
}

func TestSendEvent(t *testing.T) {
	fs, url := newFakeServer(t)
	c := NewClient("agent-1", url, log.New(io.Discard))
	if err := c.Connect("room"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()
	fs.next(t) // join

	if err := c.SendEvent("alice", trigger.Word("lights")); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	msg := fs.next(t)
	if msg.Type != signal.TypeTriggerEvent || msg.ClientID != "alice" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var ev struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(msg.Event, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Type != "word" || ev.Text != "lights" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestSendEventBeforeConnect(t *testing.T) {
	c := NewClient("agent-1", "ws://unused", log.New(io.Discard))
	if err := c.SendEvent("alice", trigger.Begin()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPeerAndTriggerCallbacks(t *testing.T) {
	fs, url := newFakeServer(t)
	c := NewClient("agent-1", url, log.New(io.Discard))

	peers := make(chan string, 2)
	c.OnPeerEvent(func(peerID string, joined bool) {
		if joined {
			peers <- "+" + peerID
		} else {
			peers <- "-" + peerID
		}
	})
	events := make(chan string, 1)
	c.OnTriggerEvent(func(peerID string, event []byte) {
		events <- peerID + " " + string(event)
	})

	if err := c.Connect("room"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	fs.outgoing <- signal.Message{Type: signal.TypePeerJoined, ClientID: "bob"}
	fs.outgoing <- signal.Message{Type: signal.TypePeerLeft, ClientID: "bob"}
	fs.outgoing <- signal.Message{Type: signal.TypeTriggerEvent, ClientID: "bob", Event: json.RawMessage(`{"type":"begin"}`)}

	for _, want := range []string{"+bob", "-bob"} {
		select {
		case got := <-peers:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	select {
	case got := <-events:
		if got != `bob {"type":"begin"}` {
			t.Fatalf("unexpected trigger event %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trigger event")
	}
}

func TestPeerFromStream(t *testing.T) {
	if got := PeerFromStream("stream-alice"); got != "alice" {
		t.Fatalf("expected alice, got %s", got)
	}
	if got := PeerFromStream("bob"); got != "bob" {
		t.Fatalf("expected bob, got %s", got)
	}
}
