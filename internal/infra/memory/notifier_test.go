package memory

import (
	"context"
	"testing"
	"time"
)

func TestNotifierSignalsSubscribers(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier()

	ch, cancel, err := n.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	<-ch // initial signal

	n.Publish(ctx, "s1")
	n.Publish(ctx, "s1") // coalesced, must not block
	n.Publish(ctx, "other")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected a signal")
	}
	select {
	case <-ch:
		t.Fatalf("expected signals to coalesce")
	default:
	}
}

func TestNotifierCancelClosesChannel(t *testing.T) {
	n := NewNotifier()
	ch, cancel, _ := n.Subscribe(context.Background(), "s1")
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	n.Publish(context.Background(), "s1")
}
