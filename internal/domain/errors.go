package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a game session does not exist.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrNoActiveSession is returned when no session is currently running.
	ErrNoActiveSession = errors.New("no active game session")
	// ErrQuestionNotFound indicates a question number is not part of the set.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrAlreadyAnswered is the expected conflict for a repeated (player, question, session).
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrNotAccepting is returned when the round for a question is not active.
	ErrNotAccepting = errors.New("question is not accepting answers")
	// ErrInvalidTeam rejects anything other than boy or girl.
	ErrInvalidTeam = errors.New("invalid team")
	// ErrInvalidTransition rejects round transitions that go backwards.
	ErrInvalidTransition = errors.New("invalid round transition")
	// ErrGameOver is returned once end_game has been emitted for the session.
	ErrGameOver = errors.New("game is over")
	// ErrPlayerExpired is returned for players idle past the configured timeout.
	ErrPlayerExpired = errors.New("player session expired")
	// ErrPlayerNotFound is returned when a player never joined the session.
	ErrPlayerNotFound = errors.New("player not found in session")
)
