package storage

import "sync"

// EventKind enumerates storage and rotation events.
type EventKind string

const (
	EventLowSpace          EventKind = "low_space"
	EventPathUnavailable   EventKind = "path_unavailable"
	EventPathRecovered     EventKind = "path_recovered"
	EventStorageFull       EventKind = "storage_full"
	EventCleanupStarted    EventKind = "cleanup_started"
	EventCleanupCompleted  EventKind = "cleanup_completed"
	EventRotationStarted   EventKind = "rotation_started"
	EventRotationCompleted EventKind = "rotation_completed"
	EventBufferOverflow    EventKind = "buffer_overflow"
)

// Event is a single published storage/rotation event.
type Event struct {
	Kind   EventKind
	Path   string
	Data   map[string]interface{}
}

// Broadcaster is a bounded fan-out for storage/rotation events: slow
// subscribers drop events rather than block publishers, generalizing
// a simple broadcast-channel-per-subscriber model: subscribers each
// get a buffered channel, lossy for slow consumers.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	bufferSize  int
}

// NewBroadcaster constructs a Broadcaster whose per-subscriber channel
// has the given buffer size.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Broadcaster{
		subscribers: make(map[int]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
}

// Publish sends ev to every subscriber; a subscriber whose channel is
// full is skipped (the event is dropped for that subscriber only).
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
