// ABOUTME: In-memory registry of users' active transport connections
// ABOUTME: Collapses multi-device sessions into a single presence state

package session

import (
	"log/slog"
	"sync"
)

// Registry tracks which transport connections belong to which user. A user
// with multiple devices or tabs has several connection IDs registered under
// one user ID; presence is derived from the set being non-empty.
//
// The registry is not persisted: a process restart is equivalent to every
// user going offline, and clients must treat presence as best-effort.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]map[string]struct{} // userID -> set of connection IDs
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]map[string]struct{}),
		logger: logger.With("component", "session"),
	}
}

// Register adds a connection for the user. Returns true when this is the
// user's first active connection, which is the caller's cue to broadcast a
// presence "online" event exactly once.
func (r *Registry) Register(userID, connID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}

	r.logger.Debug("connection registered", "user_id", userID, "conn_id", connID, "total", len(set))
	return len(set) == 1
}

// Unregister removes a connection for the user. Returns true when the user's
// connection set became empty, the cue for a single presence "offline"
// broadcast. Unknown connections are ignored.
func (r *Registry) Unregister(userID, connID string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}

	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		r.logger.Debug("user offline", "user_id", userID)
		return true
	}

	r.logger.Debug("connection unregistered", "user_id", userID, "conn_id", connID, "remaining", len(set))
	return false
}

// IsOnline reports whether the user has at least one active connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}

// OnlineCount returns the number of users with at least one connection.
func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
