package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/trigger_bridge/pkg/signal"
	"example.com/trigger_bridge/pkg/trigger"
)

// ErrNotConnected is returned when sending before Connect
var ErrNotConnected = errors.New("not connected")

// AudioCallback is called when audio is received from another peer
type AudioCallback func(peerID string, track *webrtc.TrackRemote)

// PeerEventCallback is called when peers join or leave
type PeerEventCallback func(peerID string, joined bool)

// TriggerEventCallback is called when another agent publishes an event
type TriggerEventCallback func(peerID string, event []byte)

// Client is a listen-only room participant
type Client struct {
	ID        string
	ServerURL string
	Room      string

	conn           *websocket.Conn
	peerConnection *webrtc.PeerConnection
	onAudio        AudioCallback
	onPeerEvent    PeerEventCallback
	onTrigger      TriggerEventCallback
	logger         *log.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex // separate mutex for WebSocket writes
	connected bool
	done      chan struct{}
}

// NewClient creates a new room client
func NewClient(id, serverURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		ID:        id,
		ServerURL: serverURL,
		logger:    logger.WithPrefix("client").With("id", id),
		done:      make(chan struct{}),
	}
}

// OnAudioReceived sets the callback for received audio tracks
func (c *Client) OnAudioReceived(callback AudioCallback) {
	c.onAudio = callback
}

// OnPeerEvent sets the callback for peer join/leave events
func (c *Client) OnPeerEvent(callback PeerEventCallback) {
	c.onPeerEvent = callback
}

// OnTriggerEvent sets the callback for events relayed by the server
func (c *Client) OnTriggerEvent(callback TriggerEventCallback) {
	c.onTrigger = callback
}

// Connect establishes connection to the server and joins a room
func (c *Client) Connect(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	c.Room = room

	conn, _, err := websocket.DefaultDialer.Dial(c.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn

	pc, err := signal.NewPeerConnection()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	c.peerConnection = pc

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		c.sendMessage(signal.Message{
			Type:      signal.TypeCandidate,
			Candidate: candidate.ToJSON().Candidate,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info("received audio track", "track", track.ID())
		if c.onAudio != nil {
			go c.onAudio(PeerFromStream(track.StreamID()), track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("connection state", "state", state.String())
	})

	go c.handleMessages()

	// the server sends the offer once we joined
	if err := c.sendMessage(signal.Message{
		Type:     signal.TypeJoin,
		Room:     room,
		ClientID: c.ID,
	}); err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("failed to join room: %w", err)
	}

	c.connected = true
	c.logger.Info("connected", "room", room)

	return nil
}

// PeerFromStream extracts the peer ID from a forwarded stream ID
// (format: stream-peerID).
func PeerFromStream(streamID string) string {
	return strings.TrimPrefix(streamID, "stream-")
}

func (c *Client) handleMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		var msg signal.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Error("read error", "err", err)
			}
			return
		}

		switch msg.Type {
		case signal.TypeOffer:
			c.handleOffer(msg)
		case signal.TypeAnswer:
			c.handleAnswer(msg)
		case signal.TypeCandidate:
			c.handleCandidate(msg)
		case signal.TypePeerJoined:
			c.logger.Info("peer joined", "peer", msg.ClientID)
			if c.onPeerEvent != nil {
				c.onPeerEvent(msg.ClientID, true)
			}
		case signal.TypePeerLeft:
			c.logger.Info("peer left", "peer", msg.ClientID)
			if c.onPeerEvent != nil {
				c.onPeerEvent(msg.ClientID, false)
			}
		case signal.TypeTriggerEvent:
			if c.onTrigger != nil {
				c.onTrigger(msg.ClientID, msg.Event)
			}
		}
	}
}

func (c *Client) handleOffer(msg signal.Message) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}

	if err := c.peerConnection.SetRemoteDescription(offer); err != nil {
		c.logger.Error("failed to set remote description", "err", err)
		return
	}

	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		c.logger.Error("failed to create answer", "err", err)
		return
	}

	if err := c.peerConnection.SetLocalDescription(answer); err != nil {
		c.logger.Error("failed to set local description", "err", err)
		return
	}

	c.sendMessage(signal.Message{
		Type: signal.TypeAnswer,
		SDP:  answer.SDP,
	})
}

func (c *Client) handleAnswer(msg signal.Message) {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  msg.SDP,
	}

	if err := c.peerConnection.SetRemoteDescription(answer); err != nil {
		c.logger.Error("failed to set remote description", "err", err)
	}
}

func (c *Client) handleCandidate(msg signal.Message) {
	candidate := webrtc.ICECandidateInit{
		Candidate: msg.Candidate,
	}

	if err := c.peerConnection.AddICECandidate(candidate); err != nil {
		c.logger.Warn("failed to add ICE candidate", "err", err)
	}
}

// SendEvent publishes an event recognized in peerID's audio to the room.
func (c *Client) SendEvent(peerID string, event trigger.Event) error {
	msg, err := signal.TriggerEvent(peerID, "", event)
	if err != nil {
		return err
	}
	return c.sendMessage(msg)
}

func (c *Client) sendMessage(msg signal.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}

// Disconnect closes the connection
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	close(c.done)

	if c.peerConnection != nil {
		c.peerConnection.Close()
	}

	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	c.logger.Info("disconnected")
	return nil
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
