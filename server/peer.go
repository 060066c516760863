package main

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/trigger_bridge/pkg/signal"
)

// Peer represents a connected client
type Peer struct {
	ID             string
	Conn           *websocket.Conn
	PeerConnection *webrtc.PeerConnection
	Room           *Room
	LocalTracks    map[string]*webrtc.TrackLocalStaticRTP
	mu             sync.Mutex
	writeMu        sync.Mutex
}

// SendMessage sends a signalling message to the peer
func (p *Peer) SendMessage(msg signal.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.Conn == nil {
		return nil
	}
	return p.Conn.WriteJSON(msg)
}

// addTrackToPeer adds a forwarded track to the peer and renegotiates
func (s *Server) addTrackToPeer(peer *Peer, track *webrtc.TrackLocalStaticRTP) {
	sender, err := peer.PeerConnection.AddTrack(track)
	if err != nil {
		s.logger.Error("failed to add track", "peer", peer.ID, "err", err)
		return
	}

	// Read and discard RTCP packets to keep the connection alive
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	s.negotiate(peer)
}
