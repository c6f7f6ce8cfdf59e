package watch

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub[[]int]()
	ch := hub.Subscribe(ctx)

	hub.Publish([]int{1, 2, 3})
	select {
	case got := <-ch:
		if len(got) != 3 {
			t.Fatalf("expected full snapshot, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestLatestSnapshotWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub[int]()
	ch := hub.Subscribe(ctx)

	// Two publishes before the subscriber reads: only the newest survives.
	hub.Publish(1)
	hub.Publish(2)

	select {
	case got := <-ch:
		if got != 2 {
			t.Fatalf("expected latest snapshot 2, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestUnsubscribeOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub[int]()
	ch := hub.Subscribe(ctx)

	cancel()
	// Wait for the channel to close.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if hub.Subscribers() != 0 {
					t.Fatalf("expected 0 subscribers, got %d", hub.Subscribers())
				}
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after context cancellation")
		}
	}
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub[int]()
	done := make(chan struct{})
	go func() {
		hub.Publish(42)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}
