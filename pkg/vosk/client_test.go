package vosk

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"example.com/trigger_bridge/pkg/stt"
)

type callbackRecorder struct {
	calls chan string
}

func newRecorder() *callbackRecorder {
	return &callbackRecorder{calls: make(chan string, 16)}
}

func (r *callbackRecorder) OnPartialResult(h stt.Hypothesis) { r.calls <- "partial " + string(h) }
func (r *callbackRecorder) OnResult(h stt.Hypothesis)        { r.calls <- "result " + string(h) }
func (r *callbackRecorder) OnFinalResult(h stt.Hypothesis)   { r.calls <- "final " + string(h) }
func (r *callbackRecorder) OnTimeout()                       { r.calls <- "timeout" }
func (r *callbackRecorder) OnError(err error)                { r.calls <- "error: " + err.Error() }

func (r *callbackRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a callback")
		return ""
	}
}

func (r *callbackRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case call := <-r.calls:
		t.Fatalf("unexpected callback %q", call)
	case <-time.After(100 * time.Millisecond):
	}
}

var upgrader = websocket.Upgrader{}

func fakeServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cfg configMessage
		if err := json.Unmarshal(data, &cfg); err != nil || cfg.Config.SampleRate != 16000 {
			t.Errorf("unexpected config message %s", data)
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestClient(url string, timeout time.Duration) (*Client, *callbackRecorder) {
	c := NewClient(Config{URL: url, Timeout: timeout, Logger: log.New(io.Discard)})
	rec := newRecorder()
	c.Listen(rec)
	return c, rec
}

func TestClientDispatchesResults(t *testing.T) {
	replies := map[string]string{
		"a": `{"partial" : "st"}`,
		"b": `{"text" : "start"}`,
	}
	url := fakeServer(t, func(conn *websocket.Conn) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"text" : "hello"}`))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(replies[string(data)]))
		}
	})

	c, rec := newTestClient(url, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if err := c.SendAudio([]byte("a")); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := rec.next(t); got != `partial {"partial" : "st"}` {
		t.Fatalf("unexpected callback %q", got)
	}

	if err := c.SendAudio([]byte("b")); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := rec.next(t); got != `result {"text" : "start"}` {
		t.Fatalf("unexpected callback %q", got)
	}

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := rec.next(t); got != `final {"text" : "hello"}` {
		t.Fatalf("unexpected callback %q", got)
	}
	rec.none(t)
}

func TestClientTimeout(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	c, rec := newTestClient(url, 50*time.Millisecond)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if got := rec.next(t); got != "timeout" {
		t.Fatalf("expected timeout, got %q", got)
	}
}

func TestClientReportsBrokenConnection(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		conn.UnderlyingConn().Close()
	})

	c, rec := newTestClient(url, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if got := rec.next(t); !strings.HasPrefix(got, "error: ") {
		t.Fatalf("expected error, got %q", got)
	}
}

func closeNormally(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func TestClientReportsServerClose(t *testing.T) {
	url := fakeServer(t, closeNormally)

	c, rec := newTestClient(url, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	want := "error: vosk: " + stt.ErrStreamClosed.Error()
	if got := rec.next(t); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	rec.none(t)
}

func TestClientCloseAfterFinishIsFinal(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				closeNormally(conn)
				return
			}
		}
	})

	c, rec := newTestClient(url, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := rec.next(t); got != "final " {
		t.Fatalf("expected final without payload, got %q", got)
	}
	rec.none(t)
}

func TestClientResultInFlightAtFinish(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		// hold back the result for the audio until eof arrives
		if mt, _, err := conn.ReadMessage(); err != nil || mt != websocket.BinaryMessage {
			return
		}
		if mt, _, err := conn.ReadMessage(); err != nil || mt != websocket.TextMessage {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"text" : "start"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"text" : "hello"}`))
		closeNormally(conn)
	})

	c, rec := newTestClient(url, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if err := c.SendAudio([]byte("a")); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	want := []string{`final {"text" : "start"}`, `result {"text" : "hello"}`}
	for _, w := range want {
		if got := rec.next(t); got != w {
			t.Fatalf("expected %q, got %q", w, got)
		}
	}
	rec.none(t)
}

func TestClientCloseIsSilent(t *testing.T) {
	url := fakeServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	c, rec := newTestClient(url, time.Second)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rec.none(t)
	if c.IsConnected() {
		t.Fatalf("expected disconnected client")
	}
	if err := c.SendAudio([]byte("a")); err == nil {
		t.Fatalf("expected error sending on closed client")
	}
}

func TestConnectRequiresListener(t *testing.T) {
	c := NewClient(Config{Logger: log.New(io.Discard)})
	if err := c.Connect(); err == nil {
		t.Fatalf("expected error without listener")
	}
}
