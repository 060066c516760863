// Package vosk is a client for the vosk-server websocket protocol.
package vosk

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"example.com/trigger_bridge/pkg/stt"
)

const (
	defaultURL        = "ws://localhost:2700"
	defaultSampleRate = 16000
	defaultTimeout    = 10 * time.Second
)

// Config holds vosk-server connection settings
type Config struct {
	URL        string        // e.g., ws://localhost:2700
	SampleRate int           // PCM s16le mono sample rate
	Timeout    time.Duration // silence on the socket before OnTimeout, negative disables
	Logger     *log.Logger
}

// Client streams PCM to a vosk-server and reports results to a listener
type Client struct {
	url        string
	sampleRate int
	timeout    time.Duration
	logger     *log.Logger

	conn      *websocket.Conn
	listener  stt.Listener
	mu        sync.Mutex
	connected bool
	finishing bool
	finalized bool
	done      chan struct{}
}

var _ stt.Client = (*Client)(nil)

type configMessage struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

// NewClient creates a new vosk client
func NewClient(config Config) *Client {
	if config.URL == "" {
		config.URL = defaultURL
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultSampleRate
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Client{
		url:        config.URL,
		sampleRate: config.SampleRate,
		timeout:    config.Timeout,
		logger:     config.Logger.WithPrefix("vosk"),
		done:       make(chan struct{}),
	}
}

// Listen sets the listener receiving recognition callbacks
func (c *Client) Listen(listener stt.Listener) {
	c.listener = listener
}

// Connect dials the server and sends the stream configuration
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if c.listener == nil {
		return errors.New("vosk listener not set")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("vosk connection failed: %w", err)
	}

	var cfg configMessage
	cfg.Config.SampleRate = c.sampleRate
	if err := conn.WriteJSON(cfg); err != nil {
		conn.Close()
		return fmt.Errorf("vosk config failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.finishing = false
	c.finalized = false
	c.done = make(chan struct{})

	go c.readResponses(conn, c.done)

	c.logger.Info("connected", "url", c.url, "sample_rate", c.sampleRate)
	return nil
}

func (c *Client) readResponses(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		if c.timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.timeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				c.logger.Debug("server closed the stream")
				c.streamClosed()
			case stt.IsTimeout(err):
				c.logger.Warn("no result in time", "timeout", c.timeout)
				c.listener.OnTimeout()
			default:
				c.logger.Error("read error", "err", err)
				c.listener.OnError(fmt.Errorf("vosk read failed: %w", err))
			}
			return
		}

		c.dispatch(message)
	}
}

// streamClosed reports a close by the server. After Finish it ends the
// stream unless the final result already did; before Finish the engine
// gave up early.
func (c *Client) streamClosed() {
	c.mu.Lock()
	done := c.done
	finishing, finalized := c.finishing, c.finalized
	c.mu.Unlock()

	select {
	case <-done:
		return
	default:
	}

	switch {
	case finalized:
	case finishing:
		c.listener.OnFinalResult(nil)
	default:
		c.listener.OnError(fmt.Errorf("vosk: %w", stt.ErrStreamClosed))
	}
}

// dispatch routes one server message. Messages carrying "partial" are
// intermediate; everything else is a result, and the first result read
// after Finish is the final one. vosk-server sends no acknowledgement for
// eof, so a result already in flight when Finish is called is taken as
// the final result and its words are not forwarded.
func (c *Client) dispatch(message []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(message, &fields); err == nil {
		if _, ok := fields["partial"]; ok {
			c.listener.OnPartialResult(message)
			return
		}
	}

	c.mu.Lock()
	final := c.finishing && !c.finalized
	if final {
		c.finalized = true
	}
	c.mu.Unlock()

	if final {
		c.listener.OnFinalResult(message)
		return
	}
	c.listener.OnResult(message)
}

// SendAudio sends PCM audio data to the server
func (c *Client) SendAudio(pcmData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, pcmData)
}

// Finish asks the server for the final result of the stream
func (c *Client) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.finishing = true
	return c.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
}

// Close closes the connection without reporting further callbacks
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)

	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	err := c.conn.Close()

	c.connected = false
	c.logger.Info("disconnected")
	return err
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
