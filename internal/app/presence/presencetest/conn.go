// Package presencetest provides an in-memory presence.Conn for tests.
package presencetest

import (
	"errors"
	"sync"

	"marketchat/internal/app/events"
)

var ErrClosed = errors.New("presencetest: connection closed")

// Conn records every event it is sent.
type Conn struct {
	mu     sync.Mutex
	events []events.Outbound
	closed bool
	// FailSends makes Send return an error, simulating a dead peer.
	FailSends bool
	// OnSend runs before an event is recorded, outside the lock. Set it before
	// the connection is shared.
	OnSend func(evt events.Outbound)
}

func NewConn() *Conn {
	return &Conn{}
}

func (c *Conn) Send(evt events.Outbound) error {
	if c.OnSend != nil {
		c.OnSend(evt)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.FailSends {
		return ErrClosed
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Events() []events.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Outbound(nil), c.events...)
}

// Named returns the recorded events with the given name.
func (c *Conn) Named(name events.Name) []events.Outbound {
	var out []events.Outbound
	for _, evt := range c.Events() {
		if evt.EventName() == name {
			out = append(out, evt)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
