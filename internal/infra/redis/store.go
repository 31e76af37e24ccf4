package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"tugwar-quiz-service/internal/domain"
)

// Store is a Redis implementation of app.Store.
//   - Answers live in a hash per (session, player) keyed by question number;
//     HSETNX makes the insert conditional.
//   - Team scores live in a hash per session and only change through HINCRBY.
//   - The active session pointer is a plain key; a race between two admins
//     starting sessions is accepted.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	key := sessionKey(session.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, sessionFields(session))
	pipe.HSet(ctx, scoresKey(session.ID), zeroScores()...)
	pipe.Set(ctx, activeSessionKey(), session.ID, s.ttl)
	s.expire(ctx, pipe, key, scoresKey(session.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	if len(raw) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return parseSession(raw), nil
}

func (s *Store) ActiveSession(ctx context.Context) (domain.Session, error) {
	id, err := s.client.Get(ctx, activeSessionKey()).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("active session: %w", err)
	}
	session, err := s.GetSession(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) || (err == nil && session.Status != domain.SessionActive) {
		return domain.Session{}, domain.ErrNoActiveSession
	}
	return session, err
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	err := s.client.HSet(ctx, sessionKey(sessionID),
		"status", string(domain.SessionEnded),
		"ended_at", endedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if id, err := s.client.Get(ctx, activeSessionKey()).Result(); err == nil && id == sessionID {
		_ = s.client.Del(ctx, activeSessionKey()).Err()
	}
	return nil
}

func (s *Store) ResetSession(ctx context.Context, sessionID string) error {
	players, err := s.client.SMembers(ctx, answerersKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	keys := []string{answerersKey(sessionID), playersKey(sessionID), eventsKey(sessionID)}
	for _, p := range players {
		keys = append(keys, answersKey(sessionID, p))
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.HSet(ctx, scoresKey(sessionID), zeroScores()...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

func (s *Store) UpsertPlayer(ctx context.Context, player domain.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, playersKey(player.SessionID), player.Name, data)
	s.expire(ctx, pipe, playersKey(player.SessionID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetPlayer(ctx context.Context, sessionID, name string) (domain.Player, error) {
	raw, err := s.client.HGet(ctx, playersKey(sessionID), name).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, err
	}
	var player domain.Player
	if err := json.Unmarshal(raw, &player); err != nil {
		return domain.Player{}, fmt.Errorf("decode player: %w", err)
	}
	return player, nil
}

func (s *Store) InsertAnswer(ctx context.Context, record domain.AnswerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	// The answerer index is written first so ResetSession always finds the answers hash.
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, answerersKey(record.SessionID), record.Player)
	s.expire(ctx, pipe, answerersKey(record.SessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index answerer: %w", err)
	}
	key := answersKey(record.SessionID, record.Player)
	inserted, err := s.client.HSetNX(ctx, key, field(record.QuestionNo), data).Result()
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if !inserted {
		return domain.ErrAlreadyAnswered
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("expire answers: %w", err)
		}
	}
	return nil
}

func (s *Store) HasAnswered(ctx context.Context, sessionID, player string, questionNo int) (bool, error) {
	return s.client.HExists(ctx, answersKey(sessionID, player), field(questionNo)).Result()
}

func (s *Store) PlayerAnswers(ctx context.Context, sessionID, player string) ([]domain.AnswerRecord, error) {
	values, err := s.client.HVals(ctx, answersKey(sessionID, player)).Result()
	if err != nil {
		return nil, err
	}
	records := make([]domain.AnswerRecord, 0, len(values))
	for _, v := range values {
		var r domain.AnswerRecord
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *Store) IncrementScore(ctx context.Context, sessionID string, team domain.Team, delta int) (int, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, scoresKey(sessionID), string(team), int64(delta))
	s.expire(ctx, pipe, scoresKey(sessionID), sessionKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *Store) Scores(ctx context.Context, sessionID string) (domain.Scores, error) {
	var raw struct {
		Boy  int `redis:"boy"`
		Girl int `redis:"girl"`
	}
	if err := s.client.HGetAll(ctx, scoresKey(sessionID)).Scan(&raw); err != nil {
		return domain.Scores{}, fmt.Errorf("scores: %w", err)
	}
	return domain.Scores{Boy: raw.Boy, Girl: raw.Girl}, nil
}

func (s *Store) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, k := range keys {
		pipe.Expire(ctx, k, s.ttl)
	}
}

func zeroScores() []interface{} {
	values := make([]interface{}, 0, 2*len(domain.Teams))
	for _, t := range domain.Teams {
		values = append(values, string(t), 0)
	}
	return values
}

func sessionFields(session domain.Session) map[string]interface{} {
	fields := map[string]interface{}{
		"id":         session.ID,
		"status":     string(session.Status),
		"started_at": session.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if session.EndedAt != nil {
		fields["ended_at"] = session.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func parseSession(raw map[string]string) domain.Session {
	session := domain.Session{
		ID:     raw["id"],
		Status: domain.SessionStatus(raw["status"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, raw["started_at"]); err == nil {
		session.StartedAt = t
	}
	if v, ok := raw["ended_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			session.EndedAt = &t
		}
	}
	return session
}
