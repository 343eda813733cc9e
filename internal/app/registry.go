package app

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateConn indicates a second registration for a live connection
	// id. This should not happen under correct transport semantics and is
	// fatal to that connection only, never to the process.
	ErrDuplicateConn = errors.New("connection already registered")
	// ErrConnNotFound indicates a registry operation against a connection
	// that is no longer (or never was) registered, e.g. a race with
	// disconnect. Callers fail the single request and move on.
	ErrConnNotFound = errors.New("connection not registered")
)

// ConnID identifies one live transport connection. It is derived from the
// server-observed remote address and is never client-supplied. Two ConnIDs
// are the same connection iff the strings are equal; an id is only reused
// after the previous connection holding it has fully torn down.
type ConnID string

// ConnState is the session state bound to one connection. Token is empty
// while the connection is anonymous.
type ConnState struct {
	ID          ConnID
	Token       string
	ConnectedAt time.Time
}

// Authenticated reports whether a token is currently bound to the connection.
func (s ConnState) Authenticated() bool {
	return s.Token != ""
}

// Registry is the shared table mapping live connections to their session
// state. All access goes through its methods; critical sections are O(1)
// map operations with no I/O under the lock.
type Registry struct {
	mu    sync.Mutex
	conns map[ConnID]*ConnState
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]*ConnState)}
}

// Register inserts a fresh anonymous entry for the connection.
func (r *Registry) Register(id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return ErrDuplicateConn
	}
	r.conns[id] = &ConnState{ID: id, ConnectedAt: time.Now()}
	return nil
}

// Get returns a copy of the connection's session state.
func (r *Registry) Get(id ConnID) (ConnState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[id]
	if !ok {
		return ConnState{}, false
	}
	return *st, true
}

// SetToken binds a token to the connection.
func (r *Registry) SetToken(id ConnID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[id]
	if !ok {
		return ErrConnNotFound
	}
	st.Token = token
	return nil
}

// ClearToken returns the connection to the anonymous state.
func (r *Registry) ClearToken(id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.conns[id]
	if !ok {
		return ErrConnNotFound
	}
	st.Token = ""
	return nil
}

// Remove deletes the connection's entry. Idempotent.
func (r *Registry) Remove(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Snapshot returns a consistent point-in-time copy of every entry, sorted by
// connection id so output does not depend on map iteration order.
func (r *Registry) Snapshot() []ConnState {
	r.mu.Lock()
	out := make([]ConnState, 0, len(r.conns))
	for _, st := range r.conns {
		out = append(out, *st)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
