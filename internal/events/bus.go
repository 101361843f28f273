// Package events carries fire-and-forget notifications from the service
// layer to any number of subscribers.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TypeBatchEvaluationQueued = "quality.batch_evaluation_queued"
	TypeBranchMerged          = "branch.merged"
)

const defaultBuffer = 256

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ProjectID  string    `json:"projectId,omitempty"`
	BranchID   string    `json:"branchId,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Handler func(ctx context.Context, event Event)

// Bus fans events out to subscribers from a single run loop. Publish never
// blocks; when the buffer is full the event is dropped.
type Bus struct {
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	logger  zerolog.Logger

	mu          sync.RWMutex
	subscribers []Handler
}

func NewBus(logger zerolog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, handler)
}

func (b *Bus) Publish(_ context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case <-b.done:
		b.drop(event, "bus closed")
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		b.drop(event, "buffer full")
	}
}

func (b *Bus) drop(event Event, reason string) {
	b.dropped.Add(1)
	b.logger.Warn().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("reason", reason).
		Msg("event dropped")
}

// Dropped returns how many events were discarded since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Run delivers events until ctx is cancelled or Close is called.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event := <-b.queue:
			b.dispatch(ctx, event)
		}
	}
}

func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers))
	copy(handlers, b.subscribers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.deliver(ctx, handler, event)
	}
}

func (b *Bus) deliver(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Interface("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	handler(ctx, event)
}
