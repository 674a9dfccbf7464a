package events

import (
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the default per-subscriber channel capacity.
const DefaultBufferSize = 100

const (
	// EventTypeGenerationStarted marks the start of a generation or review flow.
	EventTypeGenerationStarted = "GenerationStarted"
	// EventTypeBackendAttempt reports one backend try, success or failure.
	EventTypeBackendAttempt = "BackendAttempt"
	// EventTypeGenerationCompleted marks a flow that produced a result.
	EventTypeGenerationCompleted = "GenerationCompleted"
	// EventTypeGenerationFailed marks a flow that exhausted every backend.
	EventTypeGenerationFailed = "GenerationFailed"
	// EventTypeGameSaved reports a generated game written to disk.
	EventTypeGameSaved = "GameSaved"
	// EventTypeHealthCheck identifies liveness check events.
	EventTypeHealthCheck = "HealthCheck"
	// EventTypeSystemAlert identifies high-severity system alert events.
	EventTypeSystemAlert = "SystemAlert"
)

const (
	// SeverityInfo indicates informational event severity.
	SeverityInfo = "INFO"
	// SeverityWarn indicates warning event severity.
	SeverityWarn = "WARN"
	// SeverityError indicates error event severity.
	SeverityError = "ERROR"
)

// Event is the normalized message delivered through the in-process event bus.
type Event struct {
	Type       string
	Timestamp  time.Time
	EntityType string
	EntityID   string
	Payload    any
	Severity   string
}

// Handler consumes a published event.
type Handler func(Event)

// Logger captures warning logs for dropped events.
type Logger interface {
	Printf(format string, args ...any)
}

// Bus defines event subscription and publish behavior.
type Bus interface {
	Subscribe(eventType string, handler Handler)
	SubscribeAll(handler Handler)
	Publish(event Event)
}

// Option customizes bus construction.
type Option func(*InMemoryBus)

// WithBufferSize configures per-subscriber channel capacity.
func WithBufferSize(size int) Option {
	return func(bus *InMemoryBus) {
		if size > 0 {
			bus.bufferSize = size
		}
	}
}

// WithLogger configures the log sink used for dropped-event warnings.
func WithLogger(logger Logger) Option {
	return func(bus *InMemoryBus) {
		if logger != nil {
			bus.logger = logger
		}
	}
}

// InMemoryBus is a thread-safe in-process pub/sub bus backed by buffered
// channels. Publish never blocks; a subscriber that cannot keep up loses
// events, with a warning logged per drop.
type InMemoryBus struct {
	mu         sync.RWMutex
	bufferSize int
	logger     Logger
	subsByType map[string][]*subscriber
	allSubs    []*subscriber
	nextID     uint64
}

type subscriber struct {
	id uint64
	ch chan Event
}

// New creates an in-memory event bus with optional configuration.
func New(options ...Option) *InMemoryBus {
	bus := &InMemoryBus{
		bufferSize: DefaultBufferSize,
		logger:     log.Default(),
		subsByType: make(map[string][]*subscriber),
	}
	for _, option := range options {
		option(bus)
	}
	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || handler == nil {
		return
	}
	sub := b.addSubscriber(func(sub *subscriber) {
		b.subsByType[eventType] = append(b.subsByType[eventType], sub)
	})
	go b.consume(sub, handler)
}

// SubscribeAll registers a handler that receives every published event.
func (b *InMemoryBus) SubscribeAll(handler Handler) {
	if handler == nil {
		return
	}
	sub := b.addSubscriber(func(sub *subscriber) {
		b.allSubs = append(b.allSubs, sub)
	})
	go b.consume(sub, handler)
}

// Publish delivers an event to typed subscribers and wildcard subscribers.
func (b *InMemoryBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	typed, wildcard := b.snapshot(strings.TrimSpace(event.Type))
	for _, sub := range typed {
		b.deliver(sub, event)
	}
	for _, sub := range wildcard {
		b.deliver(sub, event)
	}
}

func (b *InMemoryBus) addSubscriber(register func(*subscriber)) *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscriber{
		id: b.nextID,
		ch: make(chan Event, b.bufferSize),
	}
	register(sub)
	return sub
}

func (b *InMemoryBus) snapshot(eventType string) ([]*subscriber, []*subscriber) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := make([]*subscriber, len(b.subsByType[eventType]))
	copy(typed, b.subsByType[eventType])

	wildcard := make([]*subscriber, len(b.allSubs))
	copy(wildcard, b.allSubs)

	return typed, wildcard
}

func (b *InMemoryBus) deliver(sub *subscriber, event Event) {
	select {
	case sub.ch <- event:
	default:
		b.logger.Printf(
			"events: dropping event for subscriber=%d type=%s entity_type=%s entity_id=%s",
			sub.id,
			event.Type,
			event.EntityType,
			event.EntityID,
		)
	}
}

func (b *InMemoryBus) consume(sub *subscriber, handler Handler) {
	for event := range sub.ch {
		handler(event)
	}
}
