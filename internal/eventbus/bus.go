package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventScreen signals a fresh screen snapshot for a session.
	EventScreen EventType = "screen"
	// EventState signals a session lifecycle transition.
	EventState EventType = "state"
	// EventSessions signals that the session table or active pointer changed.
	EventSessions EventType = "sessions"
)

// Event represents a UI-facing event emitted by the session core.
type Event struct {
	Type      EventType
	SessionID schema.SessionID
	State     schema.ConnectionState
	Seq       uint64
}

// Bus fans events out to subscribers. Publishing never blocks; events are
// dropped for subscribers whose queue is full.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnScreen publishes a screen event.
func (b *Bus) OnScreen(id schema.SessionID, seq uint64) {
	b.publish(Event{Type: EventScreen, SessionID: id, Seq: seq})
}

// OnState publishes a state transition event.
func (b *Bus) OnState(id schema.SessionID, state schema.ConnectionState) {
	b.publish(Event{Type: EventState, SessionID: id, State: state})
}

// OnSessions publishes a session table change.
func (b *Bus) OnSessions() {
	b.publish(Event{Type: EventSessions})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		return
	}
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
