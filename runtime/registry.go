package runtime

import (
	"fmt"
	"sync"

	"chat-router/errors"
)

// Registry tracks the outbound channels of the sessions connected to
// one room entity. Membership here is transient: it is rebuilt per
// connection and lost on entity failover, at which point previously
// connected clients must rejoin with their last cursor.
//
// The owning entity is the only writer; the mutex exists so telemetry
// can read sizes from other goroutines.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Outbound
	cursors  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Outbound),
		cursors:  make(map[string]string),
	}
}

// Register adds a session's outbound channel. The first registered
// session wins; a duplicate id is rejected.
func (r *Registry) Register(sessionID string, out *Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateSession, sessionID)
	}
	r.sessions[sessionID] = out
	return nil
}

// Remove drops a session and its cursor bookkeeping, returning the
// outbound channel so the caller can close it. Nil if unknown.
func (r *Registry) Remove(sessionID string) *Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	delete(r.cursors, sessionID)
	return out
}

// SetCursor records the last event id published to a session.
func (r *Registry) SetCursor(sessionID, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		r.cursors[sessionID] = eventID
	}
}

func (r *Registry) Cursor(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cursor, ok := r.cursors[sessionID]
	return cursor, ok
}

// Snapshot returns the current session set for a broadcast pass.
func (r *Registry) Snapshot() map[string]*Outbound {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Outbound, len(r.sessions))
	for id, o := range r.sessions {
		out[id] = o
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered channel and clears the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, out := range r.sessions {
		out.Close()
	}
	r.sessions = make(map[string]*Outbound)
	r.cursors = make(map[string]string)
}
