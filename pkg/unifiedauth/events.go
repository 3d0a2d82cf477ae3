package unifiedauth

import (
	"slices"
	"sync"
	"time"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// EventType names a provider lifecycle event.
type EventType string

const (
	EventConnecting     EventType = "connecting"
	EventConnected      EventType = "connected"
	EventDisconnected   EventType = "disconnected"
	EventError          EventType = "error"
	EventTokenRefreshed EventType = "tokenRefreshed"
)

// Event is delivered to listeners after the state change it describes.
type Event struct {
	Type     EventType
	Provider string
	User     *AuthUser
	Token    string
	Message  string
	At       time.Time
}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(Event)

// Bus fans events out to listeners. A panicking listener is logged and
// skipped; the rest still run.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	byType    map[EventType]map[int]Listener
	wildcards map[int]Listener
	logger    logging.Logger
}

func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		byType:    make(map[EventType]map[int]Listener),
		wildcards: make(map[int]Listener),
		logger:    logging.OrDiscard(logger),
	}
}

// Subscribe registers fn for one event type and returns its unsubscribe func.
func (b *Bus) Subscribe(t EventType, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.byType[t] == nil {
		b.byType[t] = make(map[int]Listener)
	}
	b.byType[t][id] = fn
	return func() {
		b.mu.Lock()
		delete(b.byType[t], id)
		b.mu.Unlock()
	}
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.wildcards[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.wildcards, id)
		b.mu.Unlock()
	}
}

// Emit calls listeners in subscription order.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.byType[ev.Type])+len(b.wildcards))
	fns := make(map[int]Listener, cap(ids))
	for id, fn := range b.byType[ev.Type] {
		ids = append(ids, id)
		fns[id] = fn
	}
	for id, fn := range b.wildcards {
		ids = append(ids, id)
		fns[id] = fn
	}
	b.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		b.deliver(fns[id], ev)
	}
}

func (b *Bus) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logging.Fields{
				"event": ev.Type,
				"panic": r,
			}).Warn("Auth event listener panicked")
		}
	}()
	fn(ev)
}
