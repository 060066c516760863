package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/trigger_bridge/pkg/signal"
)

// Server forwards peer audio within rooms and relays trigger events
type Server struct {
	rooms    *RoomManager
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer creates a signalling server
func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		rooms: NewRoomManager(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.WithPrefix("sfu"),
	}
}

// Routes registers the server endpoints on mux
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	var peer *Peer

	for {
		var msg signal.Message
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Debug("websocket read", "err", err)
			if peer != nil {
				s.handlePeerDisconnect(peer)
			}
			return
		}

		s.logger.Debug("received message", "type", msg.Type, "from", msg.ClientID)

		switch msg.Type {
		case signal.TypeJoin:
			if peer != nil {
				s.logger.Warn("duplicate join", "peer", peer.ID)
				continue
			}
			peer = s.handleJoin(conn, msg)
			if peer == nil {
				return
			}

		case signal.TypeOffer:
			if peer != nil {
				s.handleOffer(peer, msg)
			}

		case signal.TypeAnswer:
			if peer != nil {
				s.handleAnswer(peer, msg)
			}

		case signal.TypeCandidate:
			if peer != nil {
				s.handleCandidate(peer, msg)
			}

		case signal.TypeTriggerEvent:
			if peer != nil {
				s.handleTriggerEvent(peer, msg)
			}
		}
	}
}

// handleJoin handles a peer joining a room
func (s *Server) handleJoin(conn *websocket.Conn, msg signal.Message) *Peer {
	s.logger.Info("client joining", "peer", msg.ClientID, "room", msg.Room)

	pc, err := signal.NewPeerConnection()
	if err != nil {
		s.logger.Error("failed to create peer connection", "err", err)
		return nil
	}

	peer := &Peer{
		ID:             msg.ClientID,
		Conn:           conn,
		PeerConnection: pc,
		LocalTracks:    make(map[string]*webrtc.TrackLocalStaticRTP),
	}

	room := s.rooms.Join(msg.Room, peer)
	room.BroadcastExcept(peer.ID, signal.Message{
		Type:     signal.TypePeerJoined,
		ClientID: peer.ID,
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		peer.SendMessage(signal.Message{
			Type:      signal.TypeCandidate,
			Candidate: candidate.ToJSON().Candidate,
		})
	})

	// audio from this peer is forwarded to everyone else in the room
	pc.OnTrack(func(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("received track", "peer", peer.ID, "codec", remoteTrack.Codec().MimeType)

		localTrack, err := webrtc.NewTrackLocalStaticRTP(
			remoteTrack.Codec().RTPCodecCapability,
			fmt.Sprintf("audio-%s", peer.ID),
			fmt.Sprintf("stream-%s", peer.ID),
		)
		if err != nil {
			s.logger.Error("failed to create local track", "err", err)
			return
		}

		peer.mu.Lock()
		peer.LocalTracks[remoteTrack.ID()] = localTrack
		peer.mu.Unlock()

		for _, otherPeer := range room.GetOtherPeers(peer.ID) {
			s.addTrackToPeer(otherPeer, localTrack)
		}

		go func() {
			buf := make([]byte, 1500)
			for {
				n, _, err := remoteTrack.Read(buf)
				if err != nil {
					s.logger.Debug("track ended", "peer", peer.ID, "err", err)
					return
				}
				if _, err := localTrack.Write(buf[:n]); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("connection state", "peer", peer.ID, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed ||
			state == webrtc.PeerConnectionStateDisconnected {
			s.handlePeerDisconnect(peer)
		}
	})

	for _, existingPeer := range room.GetOtherPeers(peer.ID) {
		existingPeer.mu.Lock()
		for _, track := range existingPeer.LocalTracks {
			s.addTrackToPeer(peer, track)
		}
		existingPeer.mu.Unlock()
	}

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		s.logger.Error("failed to add transceiver", "peer", peer.ID, "err", err)
	}

	s.negotiate(peer)

	return peer
}

// handleOffer handles an SDP offer from a peer
func (s *Server) handleOffer(peer *Peer, msg signal.Message) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}

	if err := peer.PeerConnection.SetRemoteDescription(offer); err != nil {
		s.logger.Error("failed to set remote description", "peer", peer.ID, "err", err)
		return
	}

	answer, err := peer.PeerConnection.CreateAnswer(nil)
	if err != nil {
		s.logger.Error("failed to create answer", "peer", peer.ID, "err", err)
		return
	}

	if err := peer.PeerConnection.SetLocalDescription(answer); err != nil {
		s.logger.Error("failed to set local description", "peer", peer.ID, "err", err)
		return
	}

	peer.SendMessage(signal.Message{
		Type: signal.TypeAnswer,
		SDP:  answer.SDP,
	})
}

// handleAnswer handles an SDP answer from a peer
func (s *Server) handleAnswer(peer *Peer, msg signal.Message) {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  msg.SDP,
	}

	if err := peer.PeerConnection.SetRemoteDescription(answer); err != nil {
		s.logger.Error("failed to set remote description", "peer", peer.ID, "err", err)
	}
}

// handleCandidate handles an ICE candidate from a peer
func (s *Server) handleCandidate(peer *Peer, msg signal.Message) {
	candidate := webrtc.ICECandidateInit{
		Candidate: msg.Candidate,
	}

	if err := peer.PeerConnection.AddICECandidate(candidate); err != nil {
		s.logger.Warn("failed to add ICE candidate", "peer", peer.ID, "err", err)
	}
}

// handleTriggerEvent relays an agent's event to its target or the room
func (s *Server) handleTriggerEvent(peer *Peer, msg signal.Message) {
	if peer.Room == nil || len(msg.Event) == 0 {
		s.logger.Warn("dropping trigger event", "from", peer.ID)
		return
	}

	recipients := peer.Room.Recipients(peer.ID, msg.TargetID)
	if len(recipients) == 0 && msg.TargetID != "" {
		s.logger.Warn("trigger event target not found", "from", peer.ID, "target", msg.TargetID)
		return
	}

	out := signal.Message{
		Type:     signal.TypeTriggerEvent,
		ClientID: msg.ClientID,
		Event:    msg.Event,
	}
	if out.ClientID == "" {
		out.ClientID = peer.ID
	}

	s.logger.Debug("relaying trigger event", "from", peer.ID, "speaker", out.ClientID, "recipients", len(recipients))
	for _, r := range recipients {
		if err := r.SendMessage(out); err != nil {
			s.logger.Warn("failed to relay trigger event", "to", r.ID, "err", err)
		}
	}
}

// handlePeerDisconnect handles cleanup when a peer disconnects
func (s *Server) handlePeerDisconnect(peer *Peer) {
	if peer.Room != nil {
		room := peer.Room
		if room.RemovePeer(peer.ID) {
			s.rooms.DeleteRoom(room.ID)
		}
		room.BroadcastExcept(peer.ID, signal.Message{
			Type:     signal.TypePeerLeft,
			ClientID: peer.ID,
		})
	}

	if peer.PeerConnection != nil {
		peer.PeerConnection.Close()
	}

	s.logger.Info("peer disconnected", "peer", peer.ID)
}
