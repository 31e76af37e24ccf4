package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tugwar-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. All operations take a
// single mutex, which gives the conditional insert and the increment the same
// atomicity a database would.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionData
	order    []string
}

type answerKey struct {
	player     string
	questionNo int
}

type sessionData struct {
	session domain.Session
	scores  domain.Scores
	players map[string]domain.Player
	answers map[answerKey]domain.AnswerRecord
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionData)}
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &sessionData{
		session: session,
		players: make(map[string]domain.Player),
		answers: make(map[answerKey]domain.AnswerRecord),
	}
	s.order = append(s.order, session.ID)
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return data.session, nil
}

// ActiveSession returns the most recently created active session.
func (s *Store) ActiveSession(_ context.Context) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if data := s.sessions[s.order[i]]; data.session.Status == domain.SessionActive {
			return data.session, nil
		}
	}
	return domain.Session{}, domain.ErrNoActiveSession
}

func (s *Store) EndSession(_ context.Context, sessionID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	data.session.Status = domain.SessionEnded
	data.session.EndedAt = &endedAt
	return nil
}

func (s *Store) ResetSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	data.scores = domain.Scores{}
	data.players = make(map[string]domain.Player)
	data.answers = make(map[answerKey]domain.AnswerRecord)
	return nil
}

func (s *Store) UpsertPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[player.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	data.players[player.Name] = player
	return nil
}

func (s *Store) GetPlayer(_ context.Context, sessionID, name string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return domain.Player{}, domain.ErrSessionNotFound
	}
	player, ok := data.players[name]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) InsertAnswer(_ context.Context, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[record.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	key := answerKey{player: record.Player, questionNo: record.QuestionNo}
	if _, exists := data.answers[key]; exists {
		return domain.ErrAlreadyAnswered
	}
	data.answers[key] = record
	return nil
}

func (s *Store) HasAnswered(_ context.Context, sessionID, player string, questionNo int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	_, exists := data.answers[answerKey{player: player, questionNo: questionNo}]
	return exists, nil
}

func (s *Store) PlayerAnswers(_ context.Context, sessionID, player string) ([]domain.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	var records []domain.AnswerRecord
	for key, record := range data.answers {
		if key.player == player {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].QuestionNo > records[j].QuestionNo
	})
	return records, nil
}

func (s *Store) IncrementScore(_ context.Context, sessionID string, team domain.Team, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	total := data.scores.Get(team) + delta
	data.scores.Set(team, total)
	return total, nil
}

func (s *Store) Scores(_ context.Context, sessionID string) (domain.Scores, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return domain.Scores{}, domain.ErrSessionNotFound
	}
	return data.scores, nil
}
