package app

import (
	"sync"
	"time"

	"tugwar-quiz-service/internal/domain"
)

// RoundState is the lifecycle of the current question.
type RoundState string

const (
	RoundIdle     RoundState = "idle"
	RoundActive   RoundState = "active"
	RoundLocked   RoundState = "locked"
	RoundFinished RoundState = "finished"
)

// LockReason explains why a round left the active state.
type LockReason string

const (
	LockTimeout    LockReason = "timeout"
	LockReveal     LockReason = "reveal"
	LockSuperseded LockReason = "superseded"
	LockEndGame    LockReason = "end_game"
)

// DefaultQuestionTime is used when a question carries no time budget.
const DefaultQuestionTime = 15 * time.Second

// RoundStatus is a snapshot of the coordinator.
type RoundStatus struct {
	SessionID      string     `json:"sessionId"`
	State          RoundState `json:"state"`
	QuestionNo     int        `json:"questionNo"`
	TotalQuestions int        `json:"totalQuestions"`
	Deadline       time.Time  `json:"deadline"`
}

// RoundCoordinator drives Idle -> Active -> Locked for one session. Every
// transition is safe to repeat: handlers that do not apply are no-ops.
type RoundCoordinator struct {
	clock    Clock
	onExpire func(sessionID string, questionNo int)

	mu         sync.Mutex
	sessionID  string
	state      RoundState
	questionNo int
	lastNo     int
	total      int
	deadline   time.Time
	timer      Timer
	// gen changes on every Reset and Start; a timer only acts for the
	// generation that armed it.
	gen uint64
}

// NewRoundCoordinator builds an idle coordinator. onExpire runs on the timer
// goroutine after an active question's budget elapsed and the coordinator
// locked it.
func NewRoundCoordinator(clock Clock, onExpire func(sessionID string, questionNo int)) *RoundCoordinator {
	return &RoundCoordinator{
		clock:    clock,
		onExpire: onExpire,
		state:    RoundIdle,
	}
}

// Reset binds the coordinator to a session and returns it to Idle.
func (c *RoundCoordinator) Reset(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.gen++
	c.sessionID = sessionID
	c.state = RoundIdle
	c.questionNo = 0
	c.lastNo = 0
	c.total = 0
	c.deadline = time.Time{}
}

// Bound reports whether the coordinator currently tracks sessionID.
func (c *RoundCoordinator) Bound(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID != "" && c.sessionID == sessionID
}

// Start activates question q. prev is the question that precedes q in the set
// (0 for the first one) and must be the last question started, so questions
// advance one at a time. Starting the question that is already active is a
// no-op (changed=false).
func (c *RoundCoordinator) Start(sessionID string, q domain.Question, prev, total int) (RoundStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID != c.sessionID {
		return c.statusLocked(), false, domain.ErrSessionNotFound
	}
	switch {
	case c.state == RoundFinished:
		return c.statusLocked(), false, domain.ErrGameOver
	case c.state == RoundActive && c.questionNo == q.No:
		return c.statusLocked(), false, nil
	case c.state == RoundActive:
		return c.statusLocked(), false, domain.ErrInvalidTransition
	case q.No <= c.lastNo || prev != c.lastNo:
		return c.statusLocked(), false, domain.ErrInvalidTransition
	}

	budget := time.Duration(q.TimeSec) * time.Second
	if budget <= 0 {
		budget = DefaultQuestionTime
	}

	c.state = RoundActive
	c.questionNo = q.No
	c.lastNo = q.No
	c.total = total
	c.deadline = c.clock.Now().Add(budget)
	c.gen++

	gen, no := c.gen, q.No
	c.timer = c.clock.AfterFunc(budget, func() { c.expire(gen, sessionID, no) })
	return c.statusLocked(), true, nil
}

// expire locks the question armed in generation gen. A callback that raced
// with Stop, Reset or a later Start finds a newer generation and does nothing.
func (c *RoundCoordinator) expire(gen uint64, sessionID string, questionNo int) {
	c.mu.Lock()
	if gen != c.gen || c.state != RoundActive || c.questionNo != questionNo {
		c.mu.Unlock()
		return
	}
	c.state = RoundLocked
	c.timer = nil
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire(sessionID, questionNo)
	}
}

// Lock moves the active question to Locked. It returns changed=false when the
// question is not the active one, so a late timer or repeated reveal is harmless.
func (c *RoundCoordinator) Lock(sessionID string, questionNo int) (RoundStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID != c.sessionID || c.state != RoundActive || c.questionNo != questionNo {
		return c.statusLocked(), false
	}
	c.stopTimerLocked()
	c.state = RoundLocked
	return c.statusLocked(), true
}

// Finish ends the game for the session; no further rounds can start.
func (c *RoundCoordinator) Finish(sessionID string) (RoundStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID != c.sessionID || c.state == RoundFinished {
		return c.statusLocked(), false
	}
	c.stopTimerLocked()
	c.state = RoundFinished
	return c.statusLocked(), true
}

// Accepting returns the time left for questionNo, or domain.ErrNotAccepting.
func (c *RoundCoordinator) Accepting(sessionID string, questionNo int) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID != c.sessionID || c.state != RoundActive || c.questionNo != questionNo {
		return 0, domain.ErrNotAccepting
	}
	left := c.deadline.Sub(c.clock.Now())
	if left <= 0 {
		return 0, domain.ErrNotAccepting
	}
	return left, nil
}

// Status returns a snapshot of the coordinator.
func (c *RoundCoordinator) Status() RoundStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Close cancels any pending timer.
func (c *RoundCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
}

func (c *RoundCoordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *RoundCoordinator) statusLocked() RoundStatus {
	return RoundStatus{
		SessionID:      c.sessionID,
		State:          c.state,
		QuestionNo:     c.questionNo,
		TotalQuestions: c.total,
		Deadline:       c.deadline,
	}
}
