package presence

import "sync"

// Handle is one active connection belonging to a user. The gateway's
// websocket client implements it; tests use fakes.
type Handle interface {
	Send(event string, data any)
}

// Registry is the process-wide user -> connection mapping. It is the only
// piece of shared mutated-by-many state in the server, guarded by a single
// coarse mutex; every operation is O(1) amortized.
//
// The registry itself emits no events: Register/Unregister report the
// online/offline edge transitions and the gateway broadcasts them, so a
// second device coming up never re-announces an already-online user.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]map[Handle]struct{}
	owners map[Handle]string
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]map[Handle]struct{}),
		owners: make(map[Handle]string),
	}
}

// Register adds a connection handle for userID and reports whether this
// made the user newly online (first handle). A handle already bound to a
// different user is evicted from that user first, so a re-login can never
// leave a stale registration behind.
func (r *Registry) Register(userID string, h Handle) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, bound := r.owners[h]; bound && prev != userID {
		r.dropLocked(prev, h)
	}

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Handle]struct{})
		r.conns[userID] = set
	}
	set[h] = struct{}{}
	r.owners[h] = userID
	return !ok
}

// Unregister removes a handle by reverse lookup and reports the owning
// user and whether the user is now offline (last handle removed).
func (r *Registry) Unregister(h Handle) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[h]
	if !ok {
		return "", false
	}
	r.dropLocked(userID, h)
	_, online := r.conns[userID]
	return userID, !online
}

func (r *Registry) dropLocked(userID string, h Handle) {
	delete(r.owners, h)
	set := r.conns[userID]
	delete(set, h)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}

// Connections returns a snapshot of userID's active handles.
func (r *Registry) Connections(userID string) []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Handle, 0, len(r.conns[userID]))
	for h := range r.conns[userID] {
		out = append(out, h)
	}
	return out
}

// OnlineUserIDs returns a snapshot of every user with at least one handle.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Broadcast sends an event to every registered connection of every user.
func (r *Registry) Broadcast(event string, data any) {
	for _, h := range r.allHandles() {
		h.Send(event, data)
	}
}

func (r *Registry) allHandles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Handle, 0, len(r.owners))
	for h := range r.owners {
		out = append(out, h)
	}
	return out
}
