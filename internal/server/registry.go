package server

import "sync"

// Registry is the set of currently active connections. It is safe for
// concurrent use by multiple goroutines.
type Registry struct {
	m map[Conn]struct{}
	sync.RWMutex
}

// NewRegistry creates and returns a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[Conn]struct{})}
}

// Add inserts conn. Adding a connection that is already present is a no-op.
//
// Returns the registry size after the insert.
func (r *Registry) Add(conn Conn) int {
	r.Lock()
	defer r.Unlock()
	r.m[conn] = struct{}{}
	return len(r.m)
}

// Remove deletes conn. Removing an absent connection is a no-op.
//
// Returns true if conn was present, and the registry size after the delete.
func (r *Registry) Remove(conn Conn) (bool, int) {
	r.Lock()
	defer r.Unlock()
	_, ok := r.m[conn]
	delete(r.m, conn)
	return ok, len(r.m)
}

// Contains reports whether conn is registered.
func (r *Registry) Contains(conn Conn) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.m[conn]
	return ok
}

// Size returns the number of registered connections.
func (r *Registry) Size() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.m)
}

// Snapshot returns a point-in-time copy of the members. Callers may iterate
// it freely while the registry keeps changing.
func (r *Registry) Snapshot() []Conn {
	r.RLock()
	defer r.RUnlock()
	conns := make([]Conn, 0, len(r.m))
	for conn := range r.m {
		conns = append(conns, conn)
	}
	return conns
}
