// Package outbox persists change events in the same transaction as the
// inventory mutation that produced them and relays them to Kafka afterwards,
// so external observers see every cascade at least once.
package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one pending notification. AggregateType names the record kind
// (stock_item, stock_lot, warehouse, delivery, reservation) and Payload holds
// the serialized notifier event, whose id doubles as the consumer-side
// idempotency key.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}
