package session

import "sync"

// Registry is the set of live sessions. It is owned by whichever component
// starts the reaper and passed explicitly to everything that needs to sweep
// or enumerate sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*ClientSession
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*ClientSession)}
}

// Add registers a session.
func (r *Registry) Add(s *ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove drops a session by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a snapshot of all live sessions.
func (r *Registry) List() []*ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ClientSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
