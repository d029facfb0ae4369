package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

type room struct {
	mu    sync.RWMutex
	conns map[*clientConn]struct{}
}

func newRoom() *room { return &room{conns: map[*clientConn]struct{}{}} }

func (r *room) add(c *clientConn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// remove closes c if it was a member and returns the remaining size.
func (r *room) remove(c *clientConn) (removed bool, left int) {
	r.mu.Lock()
	_, removed = r.conns[c]
	delete(r.conns, c)
	left = len(r.conns)
	r.mu.Unlock()
	if removed && c.rawConn != nil {
		_ = c.rawConn.Close()
	}
	return removed, left
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// broadcast writes msg to every member and returns the ones that failed.
func (r *room) broadcast(msg []byte) []*clientConn {
	// Take a quick snapshot of the current connections
	r.mu.RLock()
	conns := make([]*clientConn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	// Do the I/O outside the lock
	var failed []*clientConn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}
