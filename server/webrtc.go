package main

import (
	"example.com/trigger_bridge/pkg/signal"
)

// negotiate creates and sends an offer to the peer
func (s *Server) negotiate(peer *Peer) {
	offer, err := peer.PeerConnection.CreateOffer(nil)
	if err != nil {
		s.logger.Error("failed to create offer", "peer", peer.ID, "err", err)
		return
	}

	if err := peer.PeerConnection.SetLocalDescription(offer); err != nil {
		s.logger.Error("failed to set local description", "peer", peer.ID, "err", err)
		return
	}

	peer.SendMessage(signal.Message{
		Type: signal.TypeOffer,
		SDP:  offer.SDP,
	})
}
