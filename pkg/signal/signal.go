// Package signal holds the signalling messages exchanged between room
// clients and the server, and the peer connection setup they share.
package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"example.com/trigger_bridge/pkg/trigger"
)

// Message types
const (
	TypeJoin         = "join"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "candidate"
	TypePeerJoined   = "peer_joined"
	TypePeerLeft     = "peer_left"
	TypeTriggerEvent = "trigger_event"
)

// Message is a signalling message between client and server
type Message struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate string          `json:"candidate,omitempty"`
	TargetID  string          `json:"target_id,omitempty"` // recipient of a trigger event, empty for the whole room
	Event     json.RawMessage `json:"event,omitempty"`
}

// TriggerEvent builds the message announcing event for the speaking peer.
func TriggerEvent(peerID, targetID string, event trigger.Event) (Message, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:     TypeTriggerEvent,
		ClientID: peerID,
		TargetID: targetID,
		Event:    raw,
	}, nil
}

// NewPeerConnection creates a peer connection restricted to Opus audio
func NewPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(config)
}
