package memory

import (
	"context"
	"sync"

	"tugwar-quiz-service/internal/domain"
)

// Feed is an in-process event feed with per-session fan-out. Publish never
// blocks: a subscriber with a full buffer misses player_answer events, and is
// closed when a broadcast does not fit, so it can rejoin and resync instead of
// silently losing a round transition.
type Feed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

func (f *Feed) Publish(_ context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			if event.Broadcast() {
				delete(f.subscribers[event.SessionID], ch)
				close(ch)
			}
		}
	}
	return nil
}

func (f *Feed) Subscribe(_ context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 32)

	f.mu.Lock()
	subs, ok := f.subscribers[sessionID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		f.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(f.subscribers[sessionID]) == 0 {
			delete(f.subscribers, sessionID)
		}
	}
	return ch, cancel, nil
}
