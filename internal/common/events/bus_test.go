package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToMatchingSubscriber(t *testing.T) {
	bus := NewBus()
	incidents, cancelIncidents := bus.Subscribe("incident")
	defer cancelIncidents()
	problems, cancelProblems := bus.Subscribe("problem")
	defer cancelProblems()

	bus.Publish(Event{EntityType: "incident", EntityID: "42", TicketNumber: "INC-0042"})

	select {
	case ev := <-incidents:
		assert.Equal(t, "incident", ev.EntityType)
		assert.Equal(t, "42", ev.EntityID)
		assert.Equal(t, "INC-0042", ev.TicketNumber)
	case <-time.After(time.Second):
		t.Fatal("incident subscriber did not receive event")
	}

	select {
	case ev := <-problems:
		t.Fatalf("problem subscriber received unrelated event: %+v", ev)
	default:
	}
}

func TestBusWildcardSubscriber(t *testing.T) {
	bus := NewBus()
	all, cancel := bus.Subscribe("")
	defer cancel()

	bus.Publish(Event{EntityType: "change", EntityID: "7"})
	bus.Publish(Event{EntityType: "asset", EntityID: "8"})

	ev := <-all
	assert.Equal(t, "change", ev.EntityType)
	ev = <-all
	assert.Equal(t, "asset", ev.EntityType)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("incident")

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	bus.Publish(Event{EntityType: "incident"})
}

func TestBusFullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe("incident")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{EntityType: "incident"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
