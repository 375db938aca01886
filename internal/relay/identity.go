// Package relay tracks registered display names and their connection handles
// via the Registry type.
package relay

import "sync"

// Conn is the handle the router uses to push events to one connection. The
// gateway implements it on top of the websocket write pump.
//
// TrySend must never block: a connection whose buffer is full or that has
// already closed reports false and the event is dropped for that recipient
// only. Close asks the transport to tear the connection down; it must be safe
// to call at any time and from any goroutine.
type Conn interface {
	TrySend(ev Outbound) bool
	Close()
}

// Registry maps display names to live connection handles and enforces name
// uniqueness at join time. It remembers join order so client-list snapshots
// are deterministic.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
	order []string
}

// NewRegistry returns an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register claims name for the given connection. The uniqueness check and the
// insert happen under one lock, so two racing joins for the same name cannot
// both succeed. Matching is case-sensitive and exact.
func (r *Registry) Register(name string, c Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.conns[name]; taken {
		return ErrNameTaken
	}
	r.conns[name] = c
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the connection handle registered under name, if any.
func (r *Registry) Lookup(name string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[name]
	return c, ok
}

// Unregister removes name from the registry. Unregistering an absent name is a
// no-op, which makes disconnect cleanup safe to run more than once.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[name]; !ok {
		return
	}
	delete(r.conns, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names returns all registered names in join order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// All returns every registered connection handle in join order. The router
// uses it to build fan-out sets while holding its own lock.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.order))
	for _, name := range r.order {
		conns = append(conns, r.conns[name])
	}
	return conns
}

// Len reports the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
