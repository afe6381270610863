// Package outbox implements the live side of spec §6's message
// emission: deletion-planned/deletion-done/deletion-failed events.
// Durability is the Catalog Gateway's
// AddMessage operation, not this package's concern; Broker only fans a
// message out to in-process subscribers (metrics exporters, anything
// wanting to watch events as they happen rather than poll the catalog),
// and polices the one domain invariant spec §4.7 depends on: a
// deletion-done or deletion-failed message for a replica must be
// preceded by a deletion-planned message for that same (scope, name,
// rse), and a replica cannot be finalized twice.
package outbox

import (
	"sync"
	"time"

	"github.com/lattice-dmcp/lattice/pkg/log"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// Subscriber is a channel that receives broadcast messages.
type Subscriber chan *types.Message

// replicaKey identifies the replica a planned/done/failed message
// sequence is about.
type replicaKey struct {
	scope string
	name  string
	rse   string
}

func keyOf(msg *types.Message) (replicaKey, bool) {
	scope, ok1 := msg.Payload["scope"].(string)
	name, ok2 := msg.Payload["name"].(string)
	rse, ok3 := msg.Payload["rse"].(string)
	if !ok1 || !ok2 || !ok3 {
		return replicaKey{}, false
	}
	return replicaKey{scope: scope, name: name, rse: rse}, true
}

// Broker fans a published message out to every live subscriber,
// dropping it for subscribers whose buffer is full rather than
// blocking the publisher. It also enforces the deletion-planned →
// {deletion-done, deletion-failed} ordering guarantee: a done/failed
// message with no matching planned message is rejected rather than
// broadcast, since it would otherwise tell a subscriber a replica
// finished reaping that was never announced as in flight.
type Broker struct {
	subscribers map[Subscriber]bool
	pending     map[replicaKey]struct{}
	mu          sync.Mutex
	msgCh       chan *types.Message
	stopCh      chan struct{}
}

// NewBroker builds a Broker with a 100-message publish buffer.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		pending:     make(map[replicaKey]struct{}),
		msgCh:       make(chan *types.Message, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution. It is not safe to call Publish after Stop.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe returns a new 50-message-buffered channel of broadcast
// messages.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues msg for broadcast, stamping CreatedAt if unset. A
// deletion-done or deletion-failed message that does not have a prior,
// still-open deletion-planned message for the same replica is dropped
// and logged rather than broadcast; it can never be wired wrongly by
// a caller, it is a sign of a genuine ordering bug upstream.
func (b *Broker) Publish(msg *types.Message) {
	if !b.admit(msg) {
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	select {
	case b.msgCh <- msg:
	case <-b.stopCh:
	}
}

func (b *Broker) admit(msg *types.Message) bool {
	switch msg.EventType {
	case types.EventDeletionPlanned:
		key, ok := keyOf(msg)
		if !ok {
			return true
		}
		b.mu.Lock()
		b.pending[key] = struct{}{}
		b.mu.Unlock()
		return true
	case types.EventDeletionDone, types.EventDeletionFailed:
		key, ok := keyOf(msg)
		if !ok {
			return true
		}
		b.mu.Lock()
		_, open := b.pending[key]
		delete(b.pending, key)
		b.mu.Unlock()
		if !open {
			log.Logger.Warn().
				Str("scope", key.scope).Str("name", key.name).Str("rse", key.rse).
				Str("event_type", string(msg.EventType)).
				Msg("dropping finalization message with no open deletion-planned message")
			return false
		}
		return true
	default:
		return true
	}
}

func (b *Broker) run() {
	for {
		select {
		case msg := <-b.msgCh:
			b.broadcast(msg)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(msg *types.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		select {
		case sub <- msg:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// PendingCount reports the number of deletion-planned messages still
// awaiting a done/failed finalization.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
