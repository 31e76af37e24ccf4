package memory

import (
	"context"
	"testing"
	"time"

	"tugwar-quiz-service/internal/domain"
)

func TestFeedDeliversPerSession(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed()

	ch, cancel, err := feed.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	_ = feed.Publish(ctx, domain.Event{ID: "e0", SessionID: "other", Type: domain.EventEndGame})
	_ = feed.Publish(ctx, domain.Event{ID: "e1", SessionID: "s1", Type: domain.EventStartQuestion})

	select {
	case ev := <-ch:
		if ev.ID != "e1" {
			t.Fatalf("expected e1, got %s", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestFeedCancelClosesChannel(t *testing.T) {
	feed := NewFeed()
	ch, cancel, _ := feed.Subscribe(context.Background(), "s1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	// Publishing after cancel must not panic.
	_ = feed.Publish(context.Background(), domain.Event{SessionID: "s1"})
}

func TestFeedKeepsBroadcastsWhenAnswersOverflow(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed()
	ch, cancel, _ := feed.Subscribe(ctx, "s1")
	defer cancel()

	_ = feed.Publish(ctx, domain.Event{ID: "end", SessionID: "s1", Type: domain.EventEndQuestion})
	for i := 0; i < 40; i++ {
		_ = feed.Publish(ctx, domain.Event{SessionID: "s1", Type: domain.EventPlayerAnswer})
	}

	if first := <-ch; first.ID != "end" {
		t.Fatalf("expected end_question to survive, got %+v", first)
	}
	for len(ch) > 0 {
		<-ch
	}
	_ = feed.Publish(ctx, domain.Event{ID: "next", SessionID: "s1", Type: domain.EventStartQuestion})
	select {
	case ev, ok := <-ch:
		if !ok || ev.ID != "next" {
			t.Fatalf("expected subscriber to stay open, got %+v %v", ev, ok)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestFeedClosesLaggingSubscriberOnBroadcast(t *testing.T) {
	ctx := context.Background()
	feed := NewFeed()
	lagging, cancelLagging, _ := feed.Subscribe(ctx, "s1")
	defer cancelLagging()

	for i := 0; i < 32; i++ {
		_ = feed.Publish(ctx, domain.Event{SessionID: "s1", Type: domain.EventPlayerAnswer})
	}
	healthy, cancelHealthy, _ := feed.Subscribe(ctx, "s1")
	defer cancelHealthy()

	_ = feed.Publish(ctx, domain.Event{ID: "end", SessionID: "s1", Type: domain.EventEndQuestion})

	received := 0
	for ev := range lagging {
		if ev.Type != domain.EventPlayerAnswer {
			t.Fatalf("unexpected event on lagging subscriber %+v", ev)
		}
		received++
	}
	if received != 32 {
		t.Fatalf("expected 32 buffered answers before close, got %d", received)
	}
	if ev := <-healthy; ev.ID != "end" {
		t.Fatalf("expected healthy subscriber to get end_question, got %+v", ev)
	}
}
