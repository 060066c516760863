package deepgram

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"example.com/trigger_bridge/pkg/stt"
)

const (
	deepgramWSURL = "wss://api.deepgram.com/v1/listen"
)

// Client is a Deepgram real-time STT client
type Client struct {
	apiKey         string
	url            string
	conn           *websocket.Conn
	listener       stt.Listener
	logger         *log.Logger
	mu             sync.Mutex
	connected      bool
	done           chan struct{}
	sampleRate     int
	channels       int
	utteranceEndMs int
	timeout        time.Duration
}

var _ stt.Client = (*Client)(nil)

// Config holds Deepgram connection settings
type Config struct {
	APIKey         string
	URL            string        // defaults to the public listen endpoint
	SampleRate     int           // e.g., 16000
	Channels       int           // e.g., 1 or 2
	UtteranceEndMs int           // Milliseconds of silence before utterance end (default: 1000)
	Timeout        time.Duration // silence on the socket before OnTimeout, negative disables
	Logger         *log.Logger
}

// MessageType is used to determine the type of Deepgram message
type MessageType struct {
	Type string `json:"type"`
}

// TranscriptResponse represents Deepgram's transcript response
type TranscriptResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// ErrorResponse is sent by Deepgram when the stream fails
type ErrorResponse struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// NewClient creates a new Deepgram client
func NewClient(config Config) *Client {
	if config.URL == "" {
		config.URL = deepgramWSURL
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.UtteranceEndMs == 0 {
		config.UtteranceEndMs = 1000
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Client{
		apiKey:         config.APIKey,
		url:            config.URL,
		logger:         config.Logger.WithPrefix("deepgram"),
		sampleRate:     config.SampleRate,
		channels:       config.Channels,
		utteranceEndMs: config.UtteranceEndMs,
		timeout:        config.Timeout,
		done:           make(chan struct{}),
	}
}

// Listen sets the listener receiving recognition callbacks
func (c *Client) Listen(listener stt.Listener) {
	c.listener = listener
}

func (c *Client) streamURL() string {
	q := url.Values{}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.sampleRate))
	q.Set("channels", strconv.Itoa(c.channels))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", strconv.Itoa(c.utteranceEndMs))
	return c.url + "?" + q.Encode()
}

// Connect establishes WebSocket connection to Deepgram
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if c.apiKey == "" {
		return errors.New("deepgram api key is empty")
	}
	if c.listener == nil {
		return errors.New("deepgram listener not set")
	}

	header := make(map[string][]string)
	header["Authorization"] = []string{"Token " + c.apiKey}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(c.streamURL(), header)
	if err != nil {
		return fmt.Errorf("deepgram connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})

	go c.readResponses(conn, c.done)

	c.logger.Info("connected to speech-to-text service")
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
				// the stream was closed after CloseStream
				c.listener.OnFinalResult(nil)
			case stt.IsTimeout(err):
				c.listener.OnTimeout()
			default:
				c.logger.Error("read error", "err", err)
				c.listener.OnError(fmt.Errorf("deepgram read failed: %w", err))
			}
			return
		}

		if stop := c.handleMessage(message); stop {
			return
		}
	}
}

// handleMessage dispatches one Deepgram message and reports whether the
// stream is over.
func (c *Client) handleMessage(message []byte) bool {
	var msgType MessageType
	if err := json.Unmarshal(message, &msgType); err != nil {
		c.logger.Warn("failed to parse message", "err", err)
		return false
	}

	switch msgType.Type {
	case "Results":
		var resp TranscriptResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			c.logger.Warn("failed to parse results", "err", err)
			return false
		}
		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}
		if resp.IsFinal {
			c.listener.OnResult(stt.TextHypothesis(transcript))
		} else {
			c.listener.OnPartialResult(stt.TextHypothesis(transcript))
		}

	case "UtteranceEnd":
		c.logger.Debug("utterance end detected")
		c.listener.OnFinalResult(message)

	case "Error":
		var resp ErrorResponse
		json.Unmarshal(message, &resp)
		c.listener.OnError(fmt.Errorf("deepgram error: %s", resp.Description))
		return true

	default:
		c.logger.Debug("ignored message", "type", msgType.Type)
	}
	return false
}

// SendAudio sends PCM audio data to Deepgram
func (c *Client) SendAudio(pcmData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, pcmData)
}

// Finish asks Deepgram to flush pending results and close the stream
func (c *Client) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}

	return c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
}

// Close closes the connection
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

	c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
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
