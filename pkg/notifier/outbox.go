package notifier

import (
	"encoding/json"

	"github.com/agricoop/stockflow/pkg/outbox"
)

// OutboxEvent converts a change event into an outbox row so the mutation and
// its external notification commit together. The notifier EventID rides along
// in the payload as the consumer idempotency key.
func (e Event) OutboxEvent(aggregateType string) outbox.Event {
	payload, _ := json.Marshal(e)
	return outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   e.ItemID,
		Type:          string(e.Action),
		Payload:       payload,
	}
}
