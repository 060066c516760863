package main

import (
	"sync"

	"example.com/trigger_bridge/pkg/signal"
)

// Room holds all peers in a room
type Room struct {
	ID    string
	Peers map[string]*Peer
	mu    sync.RWMutex
}

// AddPeer adds a peer to the room
func (r *Room) AddPeer(peer *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Peers[peer.ID] = peer
	peer.Room = r
}

// RemovePeer removes a peer from the room and reports whether the room
// is now empty.
func (r *Room) RemovePeer(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Peers, peerID)
	return len(r.Peers) == 0
}

// GetOtherPeers returns all peers except the one with excludeID
func (r *Room) GetOtherPeers(excludeID string) []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*Peer, 0, len(r.Peers))
	for id, peer := range r.Peers {
		if id != excludeID {
			peers = append(peers, peer)
		}
	}
	return peers
}

// Recipients returns the peers a message from fromID should reach: the
// target alone when targetID is set, everyone else otherwise. An unknown
// target yields no recipients.
func (r *Room) Recipients(fromID, targetID string) []*Peer {
	if targetID == "" {
		return r.GetOtherPeers(fromID)
	}
	if peer := r.GetPeer(targetID); peer != nil {
		return []*Peer{peer}
	}
	return nil
}

// BroadcastExcept sends a message to all peers except the one with excludeID
func (r *Room) BroadcastExcept(excludeID string, msg signal.Message) {
	for _, peer := range r.GetOtherPeers(excludeID) {
		peer.SendMessage(msg)
	}
}

// GetPeer returns the peer with the given ID
func (r *Room) GetPeer(peerID string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Peers[peerID]
}

// RoomManager manages all rooms
type RoomManager struct {
	Rooms map[string]*Room
	mu    sync.RWMutex
}

// NewRoomManager creates an empty room manager
func NewRoomManager() *RoomManager {
	return &RoomManager{Rooms: make(map[string]*Room)}
}

// Join adds peer to the room named roomID, creating it if needed.
func (rm *RoomManager) Join(roomID string, peer *Peer) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, exists := rm.Rooms[roomID]
	if !exists {
		room = &Room{
			ID:    roomID,
			Peers: make(map[string]*Peer),
		}
		rm.Rooms[roomID] = room
	}
	room.AddPeer(peer)
	return room
}

// GetRoom returns the room named roomID, if any
func (rm *RoomManager) GetRoom(roomID string) *Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.Rooms[roomID]
}

// DeleteRoom drops an empty room
func (rm *RoomManager) DeleteRoom(roomID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if room, ok := rm.Rooms[roomID]; ok {
		room.mu.RLock()
		empty := len(room.Peers) == 0
		room.mu.RUnlock()
		if empty {
			delete(rm.Rooms, roomID)
		}
	}
}
