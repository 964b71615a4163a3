package event

import "sync"

// Topic names an event stream on the bus.
type Topic string

const (
	TopicPieceMoved    Topic = "piece_moved"
	TopicPieceCaptured Topic = "piece_captured"
	TopicGameStart     Topic = "game_start"
	TopicGameEnd       Topic = "game_end"
)

// Handler receives the payload published on a topic.
type Handler func(data any)

// Bus is an in-process publish/subscribe dispatcher. Each game session owns
// its own instance; there is no package-level listener table. Publish runs
// handlers synchronously on the caller's goroutine, so handlers must not
// block; listeners that talk to connections only enqueue.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Topic][]Handler),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function for that registration.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], fn)
	idx := len(b.handlers[topic]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[topic]
		if idx < len(hs) && hs[idx] != nil {
			hs[idx] = nil
		}
	}
}

// Publish delivers data to every handler subscribed to the topic.
func (b *Bus) Publish(topic Topic, data any) {
	b.mu.RLock()
	hs := b.handlers[topic]
	b.mu.RUnlock()

	for _, fn := range hs {
		if fn != nil {
			fn(data)
		}
	}
}
