package jobs

import "testing"

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestEventBusSubscribe verifies live fan-out and unsubscribe.
func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	ch, cancel := bus.Subscribe(4)

	bus.Publish(Event{Source: SourceJob, Type: EventTypeProgress, Progress: 50})
	got := <-ch
	if got.Seq != 1 || got.Progress != 50 {
		t.Fatalf("event = %+v, want seq 1 progress 50", got)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	bus.Publish(Event{Message: "after"})
	if len(bus.Since(0)) != 2 {
		t.Fatal("history should still record events without subscribers")
	}
}

// TestEventBusDropsForSlowSubscriber verifies publishers never block.
func TestEventBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewEventBus(10)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})

	if got := <-ch; got.Message != "1" {
		t.Fatalf("message = %q, want 1", got.Message)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered event %+v", extra)
	default:
	}
}
