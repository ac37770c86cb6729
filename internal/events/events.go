// Package events fans debate progress out to live observers.
//
// Events are ephemeral: a disconnected observer loses in-flight deltas and
// there is no replay. Publication is fire-and-forget and never blocks the
// publishing turn chain on a slow or absent subscriber.
package events

import (
	"sync"
)

// Event type names published on a debate's channel.
const (
	TypeDebateStarted   = "debate_started"
	TypeTurnStarted     = "turn_started"
	TypeTurnDelta       = "turn_delta"
	TypeTurnCompleted   = "turn_completed"
	TypeDebateCompleted = "debate_completed"
	TypeChainAborted    = "chain_aborted"
)

// Event is one structured notification on a debate channel.
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// Publisher is the collaborator contract the orchestrator depends on.
// Publish is best-effort: not retried, not acknowledged.
type Publisher interface {
	Publish(debateID, eventType string, data any)
}

// subscriberBuffer bounds how many undelivered events a subscriber may hold
// before further events to it are dropped.
const subscriberBuffer = 256

// Broker is an in-process Publisher with per-debate subscriber channels.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Publish delivers an event to every current subscriber of the debate's
// channel. Subscribers with a full buffer miss the event.
func (b *Broker) Publish(debateID, eventType string, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[debateID] {
		select {
		case ch <- Event{Type: eventType, Data: data}:
		default:
			// Slow subscriber, drop rather than block the chain.
		}
	}
}

// Subscribe registers a new observer for a debate channel. The returned
// cancel function unregisters the observer and closes the channel.
func (b *Broker) Subscribe(debateID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[debateID] == nil {
		b.subs[debateID] = make(map[chan Event]struct{})
	}
	b.subs[debateID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[debateID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(b.subs, debateID)
				}
			}
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of live observers for a debate.
func (b *Broker) SubscriberCount(debateID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[debateID])
}
