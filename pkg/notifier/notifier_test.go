package notifier

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut(t *testing.T) {
	n := New()
	a, cancelA := n.Subscribe(4)
	b, cancelB := n.Subscribe(4)
	defer cancelA()
	defer cancelB()

	n.Emit(NewEvent("i1", "stock", ActionReserved))

	evA := <-a
	evB := <-b
	assert.Equal(t, evA.EventID, evB.EventID, "all subscribers see the same event id")
	assert.Equal(t, ActionReserved, evA.Action)
}

func TestEveryEventCarriesAFreshID(t *testing.T) {
	a := NewEvent("i1", "stock", ActionUpdated)
	b := NewEvent("i1", "stock", ActionUpdated)
	require.NotEmpty(t, a.EventID)
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestCancelStopsDelivery(t *testing.T) {
	n := New()
	ch, cancel := n.Subscribe(1)
	cancel()
	cancel() // idempotent

	n.Emit(NewEvent("i1", "stock", ActionUpdated))

	_, open := <-ch
	assert.False(t, open, "cancelled channel is closed")
}

func TestOrderingPerSubscriber(t *testing.T) {
	n := New()
	ch, cancel := n.Subscribe(8)
	defer cancel()

	actions := []Action{ActionReserved, ActionUpdated, ActionReleased}
	for _, a := range actions {
		n.Emit(NewEvent("i1", "stock", a))
	}
	for _, want := range actions {
		ev := <-ch
		assert.Equal(t, want, ev.Action)
	}
}

func TestConcurrentEmitAndCancel(t *testing.T) {
	n := New()
	ch, cancel := n.Subscribe(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 100 {
			n.Emit(NewEvent("i1", "stock", ActionUpdated))
		}
	}()

	for range 10 {
		<-ch
	}
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	cancel()
	wg.Wait()
	<-done
}
