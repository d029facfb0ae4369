package ws

import (
	"sync"
)

// Hub keeps the live viewers of each auction.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room // auctionID -> viewers
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*room)} }

// Broadcast sends msg to every viewer of the auction. Viewers whose write
// fails are dropped.
func (h *Hub) Broadcast(auctionID string, msg []byte) {
	h.mu.Lock()
	r, ok := h.rooms[auctionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	for _, c := range r.broadcast(msg) {
		h.Leave(auctionID, c)
	}
}

func (h *Hub) Join(auctionID string, c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[auctionID]
	if !ok {
		r = newRoom()
		h.rooms[auctionID] = r
	}
	r.add(c)
}

// Leave removes c and reports whether it was still a member. Empty rooms
// are discarded.
func (h *Hub) Leave(auctionID string, c *clientConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[auctionID]
	if !ok {
		return false
	}
	removed, left := r.remove(c)
	if left == 0 {
		delete(h.rooms, auctionID)
	}
	return removed
}

// Viewers returns the number of connections watching the auction.
func (h *Hub) Viewers(auctionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[auctionID]; ok {
		return r.size()
	}
	return 0
}
