// Package notifier is the in-process change bus. Every inventory mutation is
// broadcast to each subscriber over its own typed channel; events carry an id
// usable as an idempotency key, and consumers are expected to re-read
// authoritative state rather than treat the payload as state.
package notifier

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionReserved  Action = "reserved"
	ActionReleased  Action = "released"
	ActionUpdated   Action = "updated"
	ActionDelivered Action = "delivered"
)

// Event describes one mutation. Quantity fields are optional; Status is the
// record's status after the mutation, when the emitter knows it.
type Event struct {
	EventID           string          `json:"event_id"`
	ItemID            string          `json:"item_id"`
	ItemType          string          `json:"item_type"`
	Action            Action          `json:"action"`
	Quantity          decimal.Decimal `json:"quantity,omitempty"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity,omitempty"`
	Status            string          `json:"status,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and timestamp.
func NewEvent(itemID, itemType string, action Action) Event {
	return Event{
		EventID:   uuid.NewString(),
		ItemID:    itemID,
		ItemType:  itemType,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// Notifier fans events out to per-subscriber buffered channels. Delivery is
// synchronous within Emit and at-least-once: a full buffer blocks the emitter
// instead of dropping. No ordering is guaranteed across distinct items.
type Notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

func New() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe registers a channel with the given buffer size and returns it with
// a cancel func. Cancel is idempotent and closes the channel; subscribers
// should keep draining until cancel returns.
func (n *Notifier) Subscribe(buffer int) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Event, buffer)
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Emit delivers ev to every current subscriber before returning. The read
// lock is held across the sends so no channel closes mid-delivery.
func (n *Notifier) Emit(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		ch <- ev
	}
}
