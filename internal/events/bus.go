// Package events carries panel occurrences from their producers to the
// automation engine. Events arrive over the HTTP ingest endpoint or the
// optional NATS bridge and fan out to in-process subscribers.
package events

import (
	"sync"
	"time"
)

// Event names the engine understands. Payload keys by convention:
//
//	violation.detected     user_uuid, user, type, score
//	node.went_offline      node_uuid, node, offline_minutes
//	user.traffic_exceeded  user_uuid, user, used_gb, limit_gb, traffic_percent
const (
	ViolationDetected   = "violation.detected"
	NodeWentOffline     = "node.went_offline"
	UserTrafficExceeded = "user.traffic_exceeded"
)

// Known reports whether name is an event the engine understands.
func Known(name string) bool {
	switch name {
	case ViolationDetected, NodeWentOffline, UserTrafficExceeded:
		return true
	}
	return false
}

// Names returns every known event name, for validation messages and the UI.
func Names() []string {
	return []string{ViolationDetected, NodeWentOffline, UserTrafficExceeded}
}

// Event is one occurrence published on the bus.
type Event struct {
	Name    string         `json:"event"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// Handler consumes events. Delivery is synchronous on the publisher's
// goroutine, so handlers must hand off long work themselves.
type Handler func(Event)

// Bus is a minimal in-process pub/sub fan-out. Subscriptions never expire.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for every subsequently published event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers evt to all current subscribers. A zero At is stamped with
// the current time.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	if evt.Payload == nil {
		evt.Payload = map[string]any{}
	}
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}
