package jobs

import (
	"sync"
	"time"
)

// EventType classifies messages emitted by the session and the job.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeTick     EventType = "tick"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeWarning  EventType = "warning"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// EventSource names the component an event came from.
type EventSource string

const (
	SourceSession EventSource = "session"
	SourceJob     EventSource = "job"
	SourceLibrary EventSource = "library"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq        int64       `json:"seq"`
	Timestamp  time.Time   `json:"timestamp"`
	Source     EventSource `json:"source"`
	Type       EventType   `json:"type"`
	JobID      string      `json:"jobId,omitempty"`
	ArtifactID string      `json:"artifactId,omitempty"`
	Status     string      `json:"status,omitempty"`
	Progress   float64     `json:"progress,omitempty"`
	Elapsed    int         `json:"elapsed,omitempty"`
	Message    string      `json:"message,omitempty"`
	Hint       string      `json:"hint,omitempty"`
}

// EventBus stores recent events, provides incremental reads and fans new
// events out to live subscribers.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	subscribers map[chan Event]struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish appends one event and assigns sequence and timestamp. Slow
// subscribers miss events rather than block the publisher; they can catch
// up with Since.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a live listener. The returned cancel func removes it
// and closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
