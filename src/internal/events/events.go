// Package events carries typed notifications from the core to observers such
// as the dashboard. The core publishes; observers subscribe over channels.
package events

import (
	"sync"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	ProfileAdded        Type = "profile-added"
	ProfileRemoved      Type = "profile-removed"
	ProfileRenamed      Type = "profile-renamed"
	ProfileStarted      Type = "profile-started"
	ProfileStopped      Type = "profile-stopped"
	AutoConnectProgress Type = "autoconnect-progress"
	AutoConnectFinished Type = "autoconnect-finished"
)

// Event is a single notification. Fields beyond Type are populated only where
// they make sense for the event kind.
type Event struct {
	Type      Type      `json:"type"`
	Profile   string    `json:"profile,omitempty"`
	NewName   string    `json:"newName,omitempty"`
	Port      int       `json:"port,omitempty"`
	Error     string    `json:"error,omitempty"`
	Started   int       `json:"started,omitempty"`
	Attempted int       `json:"attempted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to any number of subscribers. Publishing never blocks:
// a subscriber that stops draining its channel misses events rather than
// stalling the core.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel. The buffer
// size controls how far a slow subscriber may lag before dropping events.
func (b *Bus) Subscribe(buffer int) chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber, stamping the time if the
// caller left it zero.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is not keeping up; drop rather than block the core.
		}
	}
}
