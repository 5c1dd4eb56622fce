package server

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/zsiec/playback/internal/session"
)

// Registry tracks the live sessions of a server by ID.
type Registry struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRegistry creates an empty registry. If log is nil, slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "session-registry"),
		sessions: make(map[string]*session.Session),
	}
}

// Add registers s. It returns false if a session with the same ID is
// already registered.
func (r *Registry) Add(s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID()]; ok {
		r.log.Warn("session already registered, rejecting duplicate", "session", s.ID())
		return false
	}
	r.sessions[s.ID()] = s
	r.log.Debug("session registered", "session", s.ID(), "live", len(r.sessions))
	return true
}

// Remove unregisters the session with the given ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	live := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.log.Debug("session removed", "session", id, "live", live)
	}
}

// Get returns the session with the given ID, or false if not found.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of all live sessions ordered by start time.
func (r *Registry) List() []session.Snapshot {
	r.mu.RLock()
	out := make([]session.Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
