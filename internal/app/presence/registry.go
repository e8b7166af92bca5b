package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"marketchat/internal/app/events"
)

// Conn is a live transport session. Send must not block on a slow peer.
type Conn interface {
	Send(evt events.Outbound) error
	Close() error
}

// Registry maps each online user to exactly one connection. A newer connection
// for the same user replaces and closes the previous one.
//
// Mutations are serialized by mu; no I/O happens while it is held. Broadcasts
// go out after mu is released under bmu, which is taken before mu is dropped,
// so snapshots reach every connection in the order they were taken. A reader
// may still observe a list that is one broadcast behind.
type Registry struct {
	mu     sync.RWMutex
	bmu    sync.Mutex
	byUser map[string]Conn
	byConn map[Conn]string
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byUser: make(map[string]Conn),
		byConn: make(map[Conn]string),
		logger: logger,
		now:    time.Now,
	}
}

// Admit registers conn for userID, evicting any prior connection of that user.
func (r *Registry) Admit(userID string, conn Conn) {
	r.mu.Lock()
	prev, replaced := r.byUser[userID]
	if replaced && prev != conn {
		delete(r.byConn, prev)
	}
	r.byUser[userID] = conn
	r.byConn[conn] = userID
	targets, online := r.snapshotLocked()
	r.bmu.Lock()
	r.mu.Unlock()
	defer r.bmu.Unlock()

	if replaced && prev != conn {
		if err := prev.Close(); err != nil {
			r.debug("close replaced connection failed", "user_id", userID, "error", err)
		}
		r.debug("connection replaced", "user_id", userID)
	}
	if r.logger != nil {
		r.logger.Info("user connected", "user_id", userID, "online", len(online))
	}
	r.broadcast(targets, events.UserOnlineEvent{UserID: userID, Timestamp: r.now().UTC()})
	r.broadcast(targets, events.OnlineUsersEvent{Users: online})
}

// Evict removes conn. It returns the user the connection belonged to and false
// when conn is unknown, e.g. because it was already replaced.
func (r *Registry) Evict(conn Conn) (string, bool) {
	r.mu.Lock()
	userID, ok := r.byConn[conn]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.byConn, conn)
	if current, exists := r.byUser[userID]; exists && current == conn {
		delete(r.byUser, userID)
	}
	targets, online := r.snapshotLocked()
	r.bmu.Lock()
	r.mu.Unlock()
	defer r.bmu.Unlock()

	if r.logger != nil {
		r.logger.Info("user disconnected", "user_id", userID, "online", len(online))
	}
	r.broadcast(targets, events.UserOfflineEvent{UserID: userID, Timestamp: r.now().UTC()})
	r.broadcast(targets, events.OnlineUsersEvent{Users: online})
	return userID, true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// ListOnline returns the ids of connected users in ascending order.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// Push delivers evt to userID's connection if there is one. It reports whether
// the event was handed to the transport.
func (r *Registry) Push(userID string, evt events.Outbound) bool {
	conn, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	if err := conn.Send(evt); err != nil {
		r.debug("push failed", "user_id", userID, "event", evt.EventName(), "error", err)
		return false
	}
	return true
}

// Close drops every connection. Used on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.byConn))
	for conn := range r.byConn {
		conns = append(conns, conn)
	}
	r.byUser = make(map[string]Conn)
	r.byConn = make(map[Conn]string)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (r *Registry) snapshotLocked() ([]Conn, []string) {
	targets := make([]Conn, 0, len(r.byUser))
	for _, conn := range r.byUser {
		targets = append(targets, conn)
	}
	return targets, r.onlineLocked()
}

func (r *Registry) onlineLocked() []string {
	online := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		online = append(online, userID)
	}
	sort.Strings(online)
	return online
}

func (r *Registry) broadcast(targets []Conn, evt events.Outbound) {
	for _, conn := range targets {
		if err := conn.Send(evt); err != nil {
			r.debug("broadcast failed", "event", evt.EventName(), "error", err)
		}
	}
}

func (r *Registry) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
