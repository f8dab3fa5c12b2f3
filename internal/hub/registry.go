package hub

import (
	"errors"
	"sync"
)

// ErrConnClosed is returned by Conn.Send after the connection has closed.
var ErrConnClosed = errors.New("hub: connection closed")

// Conn is an opaque handle to one live client session. A handle belongs to
// exactly one canvas for its lifetime and is never reused after Close.
// Send must not block on network I/O; implementations enqueue the frame and
// report an error when the connection can no longer accept writes.
type Conn interface {
	ID() string
	Send(Envelope) error
	Close() error
}

// Registry tracks the set of live connections per canvas id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[Conn]struct{})}
}

// Join registers a connection under the canvas id.
func (r *Registry) Join(canvasID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[canvasID]
	if set == nil {
		set = make(map[Conn]struct{})
		r.conns[canvasID] = set
	}
	set[conn] = struct{}{}
}

// Leave removes a connection. It reports whether the connection was present.
func (r *Registry) Leave(canvasID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[canvasID]
	if !ok {
		return false
	}
	if _, present := set[conn]; !present {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, canvasID)
	}
	return true
}

// Members returns a snapshot of the connections for a canvas, safe to iterate
// while membership changes concurrently. Order is unspecified.
func (r *Registry) Members(canvasID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[canvasID]
	if len(set) == 0 {
		return nil
	}
	members := make([]Conn, 0, len(set))
	for conn := range set {
		members = append(members, conn)
	}
	return members
}
