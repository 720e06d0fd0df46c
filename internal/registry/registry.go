// Package registry tracks which users currently hold a live realtime
// connection. It is the single source of truth for liveness and is never
// persisted.
package registry

import (
	"sync"
	"time"
)

// Conn is the handle the registry holds for a live connection. It is
// satisfied by the websocket connection wrapper in the handlers package
// and by test fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Registry maps user ids to their active live connection. At most one
// connection per user: registering a user who already has one closes and
// replaces the stale handle.
//
// Implementations must be safe under unbounded concurrent callers. This
// interface assumes a single process; a multi-node deployment needs an
// external keyed store plus a cross-process fanout transport behind the
// same three operations.
type Registry interface {
	Register(userID string, conn Conn)
	Unregister(userID string, conn Conn)
	Lookup(userID string) (Conn, bool)
}

type entry struct {
	conn        Conn
	connectedAt time.Time
}

// Memory is the in-process Registry implementation: a single
// RWMutex-guarded map. Lookups take the read lock only, so they never
// block on registrations for other users beyond the map write itself.
type Memory struct {
	mu    sync.RWMutex
	conns map[string]entry
}

func NewMemory() *Memory {
	return &Memory{conns: make(map[string]entry)}
}

// Register installs conn as the user's live connection. Any previous
// connection for the same user is closed before the new one becomes
// visible, so a Lookup never observes a handle that is being replaced.
func (m *Memory) Register(userID string, conn Conn) {
	m.mu.Lock()
	prev, ok := m.conns[userID]
	m.conns[userID] = entry{conn: conn, connectedAt: time.Now()}
	m.mu.Unlock()

	if ok && prev.conn != conn {
		_ = prev.conn.Close()
	}
}

// Unregister removes the user's entry, but only if it still refers to
// conn. A disconnect racing a reconnect must not tear down the newer
// connection.
func (m *Memory) Unregister(userID string, conn Conn) {
	m.mu.Lock()
	if cur, ok := m.conns[userID]; ok && cur.conn == conn {
		delete(m.conns, userID)
	}
	m.mu.Unlock()
}

func (m *Memory) Lookup(userID string) (Conn, bool) {
	m.mu.RLock()
	e, ok := m.conns[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Online reports whether the user currently holds a live connection.
func (m *Memory) Online(userID string) bool {
	_, ok := m.Lookup(userID)
	return ok
}
