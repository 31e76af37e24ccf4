package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tugwar-quiz-service/internal/domain"
	"tugwar-quiz-service/internal/metrics"
	"tugwar-quiz-service/internal/scoring"
)

// DefaultPlayerIdleTimeout matches the one hour player session lifetime.
const DefaultPlayerIdleTimeout = time.Hour

// Options configures a GameService. Zero values fall back to defaults.
type Options struct {
	QuestionSet       string
	PlayerIdleTimeout time.Duration
	Scoring           scoring.Config
	Clock             Clock
	Logger            logrus.FieldLogger
	Metrics           *metrics.Metrics
}

// GameService contains the game use cases: session lifecycle, round
// transitions driven by the admin or the timer, and answer grading.
type GameService struct {
	store     Store
	feed      EventFeed
	questions QuestionRepository
	calc      *scoring.Calculator
	clock     Clock
	log       logrus.FieldLogger
	metrics   *metrics.Metrics

	setID      string
	playerIdle time.Duration

	round *RoundCoordinator
}

func NewGameService(store Store, feed EventFeed, questions QuestionRepository, opts Options) *GameService {
	if opts.QuestionSet == "" {
		opts.QuestionSet = "default"
	}
	if opts.PlayerIdleTimeout == 0 {
		opts.PlayerIdleTimeout = DefaultPlayerIdleTimeout
	}
	if opts.Scoring == (scoring.Config{}) {
		opts.Scoring = scoring.DefaultConfig()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}

	s := &GameService{
		store:      store,
		feed:       feed,
		questions:  questions,
		calc:       scoring.NewCalculator(opts.Scoring),
		clock:      opts.Clock,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		setID:      opts.QuestionSet,
		playerIdle: opts.PlayerIdleTimeout,
	}
	s.round = NewRoundCoordinator(opts.Clock, s.expire)
	return s
}

// Close cancels pending round timers.
func (s *GameService) Close() {
	s.round.Close()
}

// StartSession ends any active session and creates a fresh one with both team
// scores at zero.
func (s *GameService) StartSession(ctx context.Context) (domain.Session, error) {
	if prev, err := s.store.ActiveSession(ctx); err == nil {
		if err := s.store.EndSession(ctx, prev.ID, s.clock.Now()); err != nil {
			return domain.Session{}, fmt.Errorf("end previous session: %w", err)
		}
	} else if !errors.Is(err, domain.ErrNoActiveSession) {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:        "session-" + uuid.NewString(),
		Status:    domain.SessionActive,
		StartedAt: s.clock.Now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.round.Reset(session.ID)
	s.metrics.Sessions.Inc()
	s.log.WithField("session", session.ID).Info("game session started")
	return session, nil
}

// CurrentSession returns the active session and binds the round coordinator to
// it, so a restarted process picks up where the store left off.
func (s *GameService) CurrentSession(ctx context.Context) (domain.Session, error) {
	session, err := s.store.ActiveSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if !s.round.Bound(session.ID) {
		s.round.Reset(session.ID)
	}
	return session, nil
}

// EndSession marks the active session ended and stops its round.
func (s *GameService) EndSession(ctx context.Context) (domain.Session, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	s.round.Finish(session.ID)
	now := s.clock.Now()
	if err := s.store.EndSession(ctx, session.ID, now); err != nil {
		return domain.Session{}, err
	}
	session.Status = domain.SessionEnded
	session.EndedAt = &now
	s.log.WithField("session", session.ID).Info("game session ended")
	return session, nil
}

// ResetSession clears answers, players and broadcasts of the active session
// and zeroes both team scores.
func (s *GameService) ResetSession(ctx context.Context) error {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return err
	}
	s.round.Reset(session.ID)
	if err := s.store.ResetSession(ctx, session.ID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.log.WithField("session", session.ID).Info("game session reset")
	return nil
}

// Questions returns the configured question set.
func (s *GameService) Questions(ctx context.Context) (domain.QuestionSet, error) {
	return s.questions.GetQuestionSet(ctx, s.setID)
}

// RoundStatus returns the coordinator snapshot.
func (s *GameService) RoundStatus() RoundStatus {
	return s.round.Status()
}

// CurrentQuestion returns the public view of the active question, if any.
func (s *GameService) CurrentQuestion(ctx context.Context) (domain.Question, bool) {
	status := s.round.Status()
	if status.State != RoundActive {
		return domain.Question{}, false
	}
	set, err := s.Questions(ctx)
	if err != nil {
		return domain.Question{}, false
	}
	q, ok := set.Find(status.QuestionNo)
	return q.Public(), ok
}

// StartQuestion broadcasts question no and starts its timer. Questions run in
// set order; when the previous question is still active it is locked first.
func (s *GameService) StartQuestion(ctx context.Context, no int) (RoundStatus, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return RoundStatus{}, err
	}
	set, err := s.Questions(ctx)
	if err != nil {
		return RoundStatus{}, err
	}
	q, ok := set.Find(no)
	if !ok {
		return RoundStatus{}, domain.ErrQuestionNotFound
	}

	prev := set.Prev(no)
	if current := s.round.Status(); current.State == RoundActive && current.QuestionNo != no {
		if current.QuestionNo != prev {
			return current, domain.ErrInvalidTransition
		}
		if err := s.lockQuestion(ctx, session.ID, current.QuestionNo, LockSuperseded); err != nil {
			return RoundStatus{}, err
		}
	}

	status, changed, err := s.round.Start(session.ID, q, prev, len(set.Questions))
	if err != nil || !changed {
		return status, err
	}
	s.metrics.Rounds.WithLabelValues("started").Inc()
	s.log.WithFields(logrus.Fields{"session": session.ID, "question": no}).Info("question started")

	err = s.feed.Publish(ctx, s.newEvent(session.ID, domain.EventStartQuestion, func(e *domain.Event) {
		e.StartQuestion = &domain.StartQuestion{
			Question:       q.Public(),
			TotalQuestions: len(set.Questions),
			Deadline:       status.Deadline,
		}
	}))
	if err != nil {
		return status, fmt.Errorf("broadcast start_question: %w", err)
	}
	return status, nil
}

// RevealQuestion locks question no before its timer ends.
func (s *GameService) RevealQuestion(ctx context.Context, no int) (RoundStatus, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return RoundStatus{}, err
	}
	if err := s.lockQuestion(ctx, session.ID, no, LockReveal); err != nil {
		return RoundStatus{}, err
	}
	return s.round.Status(), nil
}

// EndGame locks the active question, if any, and emits end_game.
func (s *GameService) EndGame(ctx context.Context) (domain.Scores, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return domain.Scores{}, err
	}
	if current := s.round.Status(); current.State == RoundActive {
		if err := s.lockQuestion(ctx, session.ID, current.QuestionNo, LockEndGame); err != nil {
			return domain.Scores{}, err
		}
	}
	if err := s.finishGame(ctx, session.ID); err != nil {
		return domain.Scores{}, err
	}
	return s.store.Scores(ctx, session.ID)
}

// expire runs after the coordinator locked a question whose budget elapsed.
func (s *GameService) expire(sessionID string, no int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.questionLocked(ctx, sessionID, no, LockTimeout); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session": sessionID, "question": no}).Error("lock on timeout failed")
	}
}

// lockQuestion locks question no on behalf of an admin action. Only the first
// lock of a question, by the timer or here, broadcasts end_question.
func (s *GameService) lockQuestion(ctx context.Context, sessionID string, no int, reason LockReason) error {
	if _, changed := s.round.Lock(sessionID, no); !changed {
		return nil
	}
	return s.questionLocked(ctx, sessionID, no, reason)
}

func (s *GameService) questionLocked(ctx context.Context, sessionID string, no int, reason LockReason) error {
	s.metrics.Rounds.WithLabelValues("locked").Inc()
	s.log.WithFields(logrus.Fields{"session": sessionID, "question": no, "reason": reason}).Info("question locked")

	set, err := s.Questions(ctx)
	if err != nil {
		return err
	}
	q, _ := set.Find(no)
	err = s.feed.Publish(ctx, s.newEvent(sessionID, domain.EventEndQuestion, func(e *domain.Event) {
		e.EndQuestion = &domain.EndQuestion{
			QuestionNo:    no,
			CorrectAnswer: q.Answer,
			Reason:        string(reason),
		}
	}))
	if err != nil {
		return fmt.Errorf("broadcast end_question: %w", err)
	}

	if no == set.Last() && reason != LockEndGame {
		return s.finishGame(ctx, sessionID)
	}
	return nil
}

func (s *GameService) finishGame(ctx context.Context, sessionID string) error {
	if _, changed := s.round.Finish(sessionID); !changed {
		return nil
	}
	scores, err := s.store.Scores(ctx, sessionID)
	if err != nil {
		return err
	}
	set, err := s.Questions(ctx)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"session": sessionID, "boy": scores.Boy, "girl": scores.Girl}).Info("game finished")
	err = s.feed.Publish(ctx, s.newEvent(sessionID, domain.EventEndGame, func(e *domain.Event) {
		e.EndGame = &domain.EndGame{
			FinalScores:    scores,
			Winner:         scores.Leader(),
			TotalQuestions: len(set.Questions),
		}
	}))
	if err != nil {
		return fmt.Errorf("broadcast end_game: %w", err)
	}
	return nil
}

// JoinPlayer registers a player with a team in the active session.
func (s *GameService) JoinPlayer(ctx context.Context, name string, team domain.Team) (domain.Player, error) {
	if !team.Valid() {
		return domain.Player{}, domain.ErrInvalidTeam
	}
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return domain.Player{}, err
	}
	player := domain.Player{
		Name:         name,
		Team:         team,
		SessionID:    session.ID,
		LastActivity: s.clock.Now(),
	}
	if err := s.store.UpsertPlayer(ctx, player); err != nil {
		return domain.Player{}, err
	}
	return player, nil
}

// SubmitAnswer grades a submission and applies its delta to the player's team.
//
// domain.ErrAlreadyAnswered and domain.ErrNotAccepting are the expected
// rejections; the answer record is written before the score is incremented so a
// failure in between under-counts rather than double-counts.
func (s *GameService) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	if !sub.Team.Valid() {
		return domain.AnswerResult{}, domain.ErrInvalidTeam
	}
	log := s.log.WithFields(logrus.Fields{
		"session":  sub.SessionID,
		"question": sub.QuestionNo,
		"player":   sub.Player,
		"team":     sub.Team,
	})

	if sub.SessionID == "" {
		session, err := s.CurrentSession(ctx)
		if err != nil {
			return domain.AnswerResult{}, domain.ErrNotAccepting
		}
		sub.SessionID = session.ID
	}

	left, err := s.round.Accepting(sub.SessionID, sub.QuestionNo)
	if err != nil {
		s.metrics.Answers.WithLabelValues(metrics.OutcomeLate).Inc()
		log.Debug("submission outside active round")
		return domain.AnswerResult{}, err
	}

	answered, err := s.store.HasAnswered(ctx, sub.SessionID, sub.Player, sub.QuestionNo)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if answered {
		s.metrics.Answers.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	player, err := s.activePlayer(ctx, sub)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	set, err := s.Questions(ctx)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	q, ok := set.Find(sub.QuestionNo)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	budget := q.TimeSec
	if budget <= 0 {
		budget = int(DefaultQuestionTime / time.Second)
	}

	// Clients report what their countdown shows; never trust more than the
	// server-side remaining time.
	remaining := int(math.Ceil(left.Seconds()))
	if sub.TimeRemaining >= 0 && sub.TimeRemaining < remaining {
		remaining = sub.TimeRemaining
	}

	grade := scoring.Evaluate(q.Answer, sub.Answer)
	delta := s.calc.Score(float64(budget), float64(remaining), grade)

	record := domain.AnswerRecord{
		ID:            uuid.NewString(),
		Player:        sub.Player,
		Team:          sub.Team,
		QuestionNo:    sub.QuestionNo,
		Answer:        sub.Answer,
		Correct:       grade.Correct,
		Partial:       grade.Partial,
		Score:         delta,
		TimeRemaining: remaining,
		SessionID:     sub.SessionID,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.InsertAnswer(ctx, record); err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			s.metrics.Answers.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			log.Debug("duplicate submission rejected")
		}
		return domain.AnswerResult{}, err
	}
	player.LastActivity = record.CreatedAt
	if err := s.store.UpsertPlayer(ctx, player); err != nil {
		log.WithError(err).Warn("refresh player activity failed")
	}

	total, err := s.store.IncrementScore(ctx, sub.SessionID, sub.Team, delta)
	if err != nil {
		log.WithError(err).Error("answer recorded but score increment failed")
		return domain.AnswerResult{}, fmt.Errorf("increment score: %w", err)
	}
	s.metrics.Answers.WithLabelValues(outcome(grade)).Inc()
	s.metrics.ScoreDelta.Observe(float64(delta))
	log.WithFields(logrus.Fields{"delta": delta, "correct": grade.Correct, "partial": grade.Partial}).Info("answer graded")

	scores, err := s.store.Scores(ctx, sub.SessionID)
	if err != nil {
		scores.Set(sub.Team, total)
	}

	if err := s.feed.Publish(ctx, s.newEvent(sub.SessionID, domain.EventPlayerAnswer, func(e *domain.Event) {
		e.Answer = &record
	})); err != nil {
		log.WithError(err).Warn("publish player_answer failed")
	}

	return domain.AnswerResult{
		QuestionNo: sub.QuestionNo,
		Correct:    grade.Correct,
		Partial:    grade.Partial,
		Unanswered: grade.Unanswered,
		Awarded:    delta,
		TeamScore:  total,
		Scores:     scores,
	}, nil
}

// activePlayer loads the submitting player, or a new one for an unknown name,
// and rejects players idle for longer than the configured timeout. Activity is
// only refreshed once an answer is accepted.
func (s *GameService) activePlayer(ctx context.Context, sub domain.AnswerSubmission) (domain.Player, error) {
	player, err := s.store.GetPlayer(ctx, sub.SessionID, sub.Player)
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound):
		return domain.Player{Name: sub.Player, Team: sub.Team, SessionID: sub.SessionID}, nil
	case err != nil:
		return domain.Player{}, err
	case s.clock.Now().Sub(player.LastActivity) > s.playerIdle:
		return domain.Player{}, domain.ErrPlayerExpired
	}
	return player, nil
}

// Scores returns the running totals of the active session.
func (s *GameService) Scores(ctx context.Context) (domain.Scores, error) {
	session, err := s.CurrentSession(ctx)
	if err != nil {
		return domain.Scores{}, err
	}
	return s.store.Scores(ctx, session.ID)
}

// PlayerAnswers returns the player's graded answers, newest first.
func (s *GameService) PlayerAnswers(ctx context.Context, sessionID, player string) ([]domain.AnswerRecord, error) {
	return s.store.PlayerAnswers(ctx, sessionID, player)
}

// AllAnswered reports whether the player has a record for every question of
// the set. It costs one ledger read per call.
func (s *GameService) AllAnswered(ctx context.Context, sessionID, player string) (bool, error) {
	set, err := s.Questions(ctx)
	if err != nil {
		return false, err
	}
	if len(set.Questions) == 0 {
		return false, nil
	}
	records, err := s.store.PlayerAnswers(ctx, sessionID, player)
	if err != nil {
		return false, err
	}
	seen := make(map[int]struct{}, len(records))
	for _, r := range records {
		seen[r.QuestionNo] = struct{}{}
	}
	for _, q := range set.Questions {
		if _, ok := seen[q.No]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Subscribe returns a channel that receives events for a session.
func (s *GameService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	return s.feed.Subscribe(ctx, sessionID)
}

func (s *GameService) newEvent(sessionID string, typ domain.EventType, fill func(*domain.Event)) domain.Event {
	e := domain.Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      typ,
		CreatedAt: s.clock.Now(),
	}
	fill(&e)
	return e
}

func outcome(g scoring.Grade) string {
	switch {
	case g.Unanswered:
		return metrics.OutcomeUnanswered
	case g.Correct:
		return metrics.OutcomeCorrect
	case g.Partial > 0:
		return metrics.OutcomePartial
	}
	return metrics.OutcomeWrong
}
