// Package notifier provides the push side of the workbench: a broadcast of
// change pings that shells use to re-query state.
package notifier

import "sync"

// Topic names the kind of state that changed.
type Topic string

// Topics.
const (
	TopicProfiles Topic = "profiles"
	TopicSession  Topic = "session"
	TopicLog      Topic = "log"
	TopicSchema   Topic = "schema"
)

// Event is a change ping. Listeners should re-query the component named by
// Topic rather than treat the event as the state itself.
type Event struct {
	Topic      Topic
	Generation uint64
	EntryID    int64
}

const listenerBuffer = 16

// Notifier broadcasts events to all subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives events.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, listenerBuffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
// Unsubscribing an unknown channel is a no-op.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast sends ev to all listeners.
// Non-blocking: if a listener's channel is full, the event is skipped.
func (n *Notifier) Broadcast(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
			// Channel full, skip (listener will catch up on next broadcast)
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
