package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"tugwar-quiz-service/internal/domain"
)

// EventsChannel is the LISTEN/NOTIFY channel shared by all sessions.
const EventsChannel = "tugwar_events"

// Feed stores admin broadcasts in game_broadcast and notifies listeners over
// LISTEN/NOTIFY. Player answers are already persisted by Store, so only the
// notification is sent for them.
type Feed struct {
	db  *bun.DB
	log logrus.FieldLogger
}

func NewFeed(db *bun.DB, log logrus.FieldLogger) *Feed {
	return &Feed{db: db, log: log}
}

func (f *Feed) Publish(ctx context.Context, event domain.Event) error {
	if event.Broadcast() {
		row := &broadcastRow{
			ID:            event.ID,
			SessionID:     event.SessionID,
			BroadcastType: string(event.Type),
			Payload:       event,
			CreatedAt:     event.CreatedAt,
		}
		if _, err := f.db.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert broadcast: %w", err)
		}
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := pgdriver.Notify(ctx, f.db, EventsChannel, string(data)); err != nil {
		return fmt.Errorf("notify event: %w", err)
	}
	return nil
}

// History returns the stored broadcasts of a session in insertion order.
func (f *Feed) History(ctx context.Context, sessionID string) ([]domain.Event, error) {
	var rows []broadcastRow
	err := f.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("broadcast history: %w", err)
	}
	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.Payload)
	}
	return events, nil
}

// Subscribe opens a dedicated listener connection and filters notifications
// down to one session.
func (f *Feed) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ln := pgdriver.NewListener(f.db)
	if err := ln.Listen(ctx, EventsChannel); err != nil {
		_ = ln.Close()
		return nil, nil, fmt.Errorf("listen events: %w", err)
	}

	out := make(chan domain.Event, 32)
	done := make(chan struct{})
	notes := ln.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case n, ok := <-notes:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
					f.log.WithError(err).WithField("session", sessionID).Warn("dropping undecodable notification")
					continue
				}
				if ev.SessionID != sessionID {
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
			_ = ln.Close()
		})
	}
	return out, cancel, nil
}
