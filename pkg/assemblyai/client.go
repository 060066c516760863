package assemblyai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"example.com/trigger_bridge/pkg/stt"
)

const (
	// Universal Streaming API endpoint
	assemblyWSURL = "wss://streaming.assemblyai.com/v3/ws"

	// minAudioBytes is the minimum chunk AssemblyAI accepts (100ms at 16kHz mono)
	minAudioBytes = 3200
)

// Client is an AssemblyAI Universal Streaming STT client
type Client struct {
	apiKey     string
	url        string
	sampleRate int
	timeout    time.Duration
	conn       *websocket.Conn
	listener   stt.Listener
	logger     *log.Logger
	mu         sync.Mutex
	connected  bool
	finishing  bool
	done       chan struct{}

	// transcript of the current turn already reported to the listener
	lastTranscript string

	// AssemblyAI requires 50-1000ms of audio per message
	audioBuffer []byte
}

var _ stt.Client = (*Client)(nil)

// Config holds AssemblyAI connection settings
type Config struct {
	APIKey     string
	URL        string        // defaults to the Universal Streaming endpoint
	SampleRate int           // PCM s16le mono sample rate, default 16000
	Timeout    time.Duration // silence on the socket before OnTimeout, negative disables
	Logger     *log.Logger
}

// TurnMessage represents AssemblyAI's Universal Streaming transcript response
type TurnMessage struct {
	Type                string  `json:"type"`
	TurnOrder           int     `json:"turn_order"`
	Transcript          string  `json:"transcript"`
	EndOfTurn           bool    `json:"end_of_turn"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewClient creates a new AssemblyAI client
func NewClient(config Config) *Client {
	if config.URL == "" {
		config.URL = assemblyWSURL
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Client{
		apiKey:      config.APIKey,
		url:         config.URL,
		sampleRate:  config.SampleRate,
		timeout:     config.Timeout,
		logger:      config.Logger.WithPrefix("assemblyai"),
		done:        make(chan struct{}),
		audioBuffer: make([]byte, 0, minAudioBytes*2),
	}
}

// Listen sets the listener receiving recognition callbacks
func (c *Client) Listen(listener stt.Listener) {
	c.listener = listener
}

// Connect establishes WebSocket connection to AssemblyAI Universal Streaming
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if c.apiKey == "" {
		return errors.New("assemblyai api key is empty")
	}
	if c.listener == nil {
		return errors.New("assemblyai listener not set")
	}

	// format_turns=true is required to receive Turn messages
	wsURL := c.url + "?sample_rate=" + strconv.Itoa(c.sampleRate) + "&format_turns=true"

	header := make(map[string][]string)
	header["Authorization"] = []string{c.apiKey}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("assemblyai connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.finishing = false
	c.done = make(chan struct{})
	c.lastTranscript = ""
	c.audioBuffer = c.audioBuffer[:0]

	go c.readResponses(conn, c.done)

	c.logger.Info("connected to universal streaming service")
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
				c.logger.Debug("session closed")
				c.streamClosed()
			case stt.IsTimeout(err):
				c.listener.OnTimeout()
			default:
				c.logger.Error("read error", "err", err)
				c.listener.OnError(fmt.Errorf("assemblyai read failed: %w", err))
			}
			return
		}

		if stop := c.handleMessage(message); stop {
			return
		}
	}
}

func (c *Client) handleMessage(message []byte) bool {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		c.logger.Warn("failed to parse message", "err", err)
		return false
	}

	switch base.Type {
	case "Begin", "SessionBegins":
		c.logger.Debug("session started")

	case "Turn":
		var turn TurnMessage
		if err := json.Unmarshal(message, &turn); err != nil {
			c.logger.Warn("failed to parse turn", "err", err)
			return false
		}

		// transcripts are immutable within a turn, report only the new words
		if words := newWords(c.lastTranscript, turn.Transcript); words != "" {
			c.lastTranscript = turn.Transcript
			c.listener.OnResult(stt.TextHypothesis(words))
		}

		if turn.EndOfTurn {
			c.logger.Debug("end of turn", "confidence", turn.EndOfTurnConfidence)
			c.lastTranscript = ""
			c.listener.OnFinalResult(message)
		}

	case "Termination", "SessionTerminated":
		c.logger.Debug("session terminated")
		c.streamClosed()
		return true

	case "Error":
		var e errorMessage
		json.Unmarshal(message, &e)
		c.listener.OnError(fmt.Errorf("assemblyai error: %s", e.Error))
		return true
	}
	return false
}

// streamClosed ends the stream when the service closes it: as a final
// result after Finish, as an error otherwise.
func (c *Client) streamClosed() {
	c.mu.Lock()
	done := c.done
	finishing := c.finishing
	c.mu.Unlock()

	select {
	case <-done:
		return
	default:
	}

	if finishing {
		c.listener.OnFinalResult(nil)
		return
	}
	c.listener.OnError(fmt.Errorf("assemblyai: %w", stt.ErrStreamClosed))
}

// newWords returns the part of transcript not yet covered by last.
func newWords(last, transcript string) string {
	if transcript == "" || transcript == last {
		return ""
	}
	if strings.HasPrefix(transcript, last) {
		return strings.TrimSpace(transcript[len(last):])
	}
	return strings.TrimSpace(transcript)
}

// SendAudio buffers PCM audio and sends it in chunks of at least 100ms
func (c *Client) SendAudio(pcmData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.audioBuffer = append(c.audioBuffer, pcmData...)
	if len(c.audioBuffer) < minAudioBytes {
		return nil
	}
	return c.flushLocked()
}

func (c *Client) flushLocked() error {
	if len(c.audioBuffer) == 0 {
		return nil
	}
	err := c.conn.WriteMessage(websocket.BinaryMessage, c.audioBuffer)
	c.audioBuffer = c.audioBuffer[:0]
	return err
}

// Finish sends buffered audio and forces the end of the current turn
func (c *Client) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.finishing = true
	return c.conn.WriteJSON(map[string]string{"type": "ForceEndpoint"})
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

	c.conn.WriteJSON(map[string]string{"type": "Terminate"})
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
