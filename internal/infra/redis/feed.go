package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tugwar-quiz-service/internal/domain"
)

// Feed appends events to a per-session list and fans them out over Redis
// pub/sub, so every instance behind a load balancer sees every broadcast.
type Feed struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewFeed(client *redis.Client, log logrus.FieldLogger) *Feed {
	return &Feed{client: client, log: log}
}

func (f *Feed) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pipe := f.client.Pipeline()
	pipe.RPush(ctx, eventsKey(event.SessionID), data)
	pipe.Publish(ctx, eventsChannel(event.SessionID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// History returns the stored events of a session in publish order.
func (f *Feed) History(ctx context.Context, sessionID string) ([]domain.Event, error) {
	raw, err := f.client.LRange(ctx, eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(raw))
	for _, r := range raw {
		var ev domain.Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (f *Feed) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ps := f.client.Subscribe(ctx, eventsChannel(sessionID))
	// Wait for the subscription confirmation so no publish is missed after
	// Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe events: %w", err)
	}

	out := make(chan domain.Event, 32)
	done := make(chan struct{})
	msgs := ps.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					f.log.WithError(err).WithField("session", sessionID).Warn("dropping undecodable event")
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
