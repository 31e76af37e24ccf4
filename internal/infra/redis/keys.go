package redis

import "strconv"

const keyPrefix = "tugwar:"

func sessionKey(sessionID string) string { return keyPrefix + "session:" + sessionID }

func activeSessionKey() string { return keyPrefix + "session:active" }

func scoresKey(sessionID string) string { return sessionKey(sessionID) + ":scores" }

func playersKey(sessionID string) string { return sessionKey(sessionID) + ":players" }

// answersKey holds one field per question number; HSETNX on it is the
// at-most-once guard for (player, question, session).
func answersKey(sessionID, player string) string {
	return sessionKey(sessionID) + ":answers:" + player
}

func answerersKey(sessionID string) string { return sessionKey(sessionID) + ":answerers" }

func eventsKey(sessionID string) string { return sessionKey(sessionID) + ":events" }

func eventsChannel(sessionID string) string { return keyPrefix + "events:" + sessionID }

func questionsKey(setID string) string { return keyPrefix + "questions:" + setID }

func field(no int) string { return strconv.Itoa(no) }
