// Package connection owns the per-user WhatsApp connections: the in-memory
// registry of live handles and the session state machine that connects,
// pairs, reconnects and logs users out.
package connection

import (
	"sync"

	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

// Handle is one live provider session. A reconnect registers a new Handle
// rather than changing Conn on the old one.
type Handle struct {
	UserID int64
	Conn   whatsapp.Connection

	mu         sync.RWMutex
	state      whatsapp.State
	generation uint64
}

func NewHandle(userID int64, conn whatsapp.Connection) *Handle {
	return &Handle{UserID: userID, Conn: conn, state: whatsapp.StateConnecting}
}

func (h *Handle) State() whatsapp.State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) setState(s whatsapp.State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Generation increases with every registration; zero means never registered.
func (h *Handle) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Registry maps user IDs to their current Handle. It never tears down the
// connections it forgets; that is the caller's job.
type Registry struct {
	mu      sync.RWMutex
	handles map[int64]*Handle
	next    uint64
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[int64]*Handle)}
}

// Register stores h for userID and returns the handle it replaced, if any.
func (r *Registry) Register(userID int64, h *Handle) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h.mu.Lock()
	h.generation = r.next
	h.mu.Unlock()

	prev := r.handles[userID]
	r.handles[userID] = h
	return prev
}

func (r *Registry) Get(userID int64) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[userID]
	return h, ok
}

func (r *Registry) Remove(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, userID)
}

// RemoveIf removes the entry only while it still points at h.
func (r *Registry) RemoveIf(userID int64, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[userID] != h {
		return false
	}
	delete(r.handles, userID)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns the registered handles in no particular order.
func (r *Registry) Snapshot() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}
