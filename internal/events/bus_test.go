package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 8)
	first := make(chan Event, 1)
	second := make(chan Event, 1)
	bus.Subscribe(func(_ context.Context, event Event) { first <- event })
	bus.Subscribe(func(_ context.Context, event Event) { second <- event })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Publish(ctx, Event{Type: TypeBranchMerged, BranchID: "b1"})

	for _, ch := range []chan Event{first, second} {
		select {
		case got := <-ch:
			if got.Type != TypeBranchMerged || got.BranchID != "b1" {
				t.Fatalf("delivered event = %+v", got)
			}
			if got.ID == "" || got.OccurredAt.IsZero() {
				t.Fatalf("delivered event missing id or timestamp: %+v", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 1)
	ctx := context.Background()

	bus.Publish(ctx, Event{Type: TypeBranchMerged})
	bus.Publish(ctx, Event{Type: TypeBranchMerged})

	if got := bus.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}

func TestBusDropsAfterClose(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 4)
	bus.Close()
	bus.Close()

	bus.Publish(context.Background(), Event{Type: TypeBranchMerged})
	if got := bus.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}

func TestBusSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 4)
	delivered := make(chan struct{}, 1)
	bus.Subscribe(func(context.Context, Event) { panic("boom") })
	bus.Subscribe(func(context.Context, Event) { delivered <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Publish(ctx, Event{Type: TypeBranchMerged})
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("second subscriber not called after first panicked")
	}
}

func TestRedisForwarderPublishesJSON(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	forwarder := NewRedisForwarder(client, "", zerolog.Nop())
	forwarder.Handle(ctx, Event{ID: "e1", Type: TypeBatchEvaluationQueued, BranchID: "b1"})

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage() error = %v", err)
	}
	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.ID != "e1" || got.Type != TypeBatchEvaluationQueued || got.BranchID != "b1" {
		t.Fatalf("forwarded event = %+v", got)
	}
}
