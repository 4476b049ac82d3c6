package engine

import (
	"sync"
	"time"
)

// EventType names an engine notification
type EventType string

const (
	EventDroppedFrames  EventType = "dropped_frames"
	EventFirstFrame     EventType = "first_frame"
	EventStreamFinished EventType = "stream_finished"
)

// DroppedFrames carries the loss rates that crossed a threshold
type DroppedFrames struct {
	SkippedPercent   float64 `json:"skipped_percent"`
	DiscardedPercent float64 `json:"discarded_percent"`
	SkipThreshold    int     `json:"skip_threshold"`
	DiscardThreshold int     `json:"discard_threshold"`
}

// Event is delivered to subscribers
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	StreamID string         `json:"stream_id,omitempty"`
	VPTS     int64          `json:"vpts,omitempty"`
	Dropped  *DroppedFrames `json:"dropped,omitempty"`
}

// eventBus fans events out to subscribers without ever blocking the
// publisher. A subscriber that falls behind misses events.
type eventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func (b *eventBus) init() {
	b.subs = make(map[int]chan Event)
}

func (b *eventBus) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel receiving engine events and a function that
// unsubscribes and closes it
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b := &e.events
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
