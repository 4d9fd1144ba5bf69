package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	messages []kafka.Message
	err      error
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatch(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(testLogger(), producer, "stock.events")

	err := d.Dispatch(context.Background(), Event{
		ID:          7,
		AggregateID: "i1",
		Type:        "reserved",
		Payload:     []byte(`{"event_id":"e1"}`),
		Traceparent: "00-abc-def-01",
		Headers:     map[string]string{"source": "stockflow"},
	})
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, "stock.events", msg.Topic)
	assert.Equal(t, []byte("i1"), msg.Key, "keyed by aggregate id for per-record ordering")
	assert.JSONEq(t, `{"event_id":"e1"}`, string(msg.Value))

	keys := map[string]string{}
	for _, h := range msg.Headers {
		keys[h.Key] = string(h.Value)
	}
	assert.Equal(t, "reserved", keys["event_type"])
	assert.Equal(t, "00-abc-def-01", keys["traceparent"])
	assert.Equal(t, "stockflow", keys["source"])
}

func TestDispatchPropagatesProducerError(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	d := NewDispatcher(testLogger(), producer, "stock.events")

	err := d.Dispatch(context.Background(), Event{ID: 1, AggregateID: "i1"})
	assert.Error(t, err)
}
