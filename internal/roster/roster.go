// Package roster keeps the set of registered users currently connected to the
// relay, in registration order.
package roster

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateConnection is returned when a connection registers twice.
var ErrDuplicateConnection = errors.New("connection already registered")

// ConnectedUser is a registered connection. ID is the connection identifier.
type ConnectedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Roster is safe for concurrent use. All mutations and snapshots go through a
// single lock, so a snapshot never observes a half-applied change.
type Roster struct {
	mu      sync.RWMutex
	order   *list.List
	entries map[string]*list.Element
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Register adds connectionID under username. Usernames are not unique.
func (r *Roster) Register(connectionID, username string) (ConnectedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[connectionID]; exists {
		return ConnectedUser{}, fmt.Errorf("register %s: %w", connectionID, ErrDuplicateConnection)
	}

	user := ConnectedUser{ID: connectionID, Username: username}
	r.entries[connectionID] = r.order.PushBack(user)
	return user, nil
}

// Rename replaces the username of an existing entry without moving it.
func (r *Roster) Rename(connectionID, username string) (ConnectedUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.entries[connectionID]
	if !ok {
		return ConnectedUser{}, false
	}
	user := ConnectedUser{ID: connectionID, Username: username}
	elem.Value = user
	return user, true
}

// Remove deletes and returns the entry for connectionID. Removing an unknown
// connection is a no-op.
func (r *Roster) Remove(connectionID string) (ConnectedUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.entries[connectionID]
	if !ok {
		return ConnectedUser{}, false
	}
	delete(r.entries, connectionID)
	return r.order.Remove(elem).(ConnectedUser), true
}

// Get returns the entry for connectionID.
func (r *Roster) Get(connectionID string) (ConnectedUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	elem, ok := r.entries[connectionID]
	if !ok {
		return ConnectedUser{}, false
	}
	return elem.Value.(ConnectedUser), true
}

// Snapshot returns a copy of the roster in registration order. The result is
// never nil so it always encodes as a JSON array.
func (r *Roster) Snapshot() []ConnectedUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]ConnectedUser, 0, r.order.Len())
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		users = append(users, elem.Value.(ConnectedUser))
	}
	return users
}

// Len returns the number of registered connections.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order.Len()
}
