package scoring

import (
	"strings"
)

// Grade is the verdict of comparing a submission with the expected answer.
type Grade struct {
	Correct    bool `json:"correct"`
	Partial    int  `json:"partial"`
	Unanswered bool `json:"unanswered"`
}

// Evaluate grades given against expected. It is total over all strings.
//
// Numeric expected answers require an exact match. Free text is graded by word
// containment: every given word found anywhere in the expected words counts,
// repeats included, and the answer is correct when the matched count equals the
// number of expected words.
func Evaluate(expected, given string) Grade {
	exp := strings.ToLower(strings.TrimSpace(expected))
	giv := strings.ToLower(strings.TrimSpace(given))

	if giv == "" {
		return Grade{Unanswered: true}
	}

	if isDigits(exp) {
		if exp == giv {
			return Grade{Correct: true, Partial: 100}
		}
		return Grade{}
	}

	expWords := strings.Fields(exp)
	if len(expWords) == 0 {
		return Grade{}
	}
	bag := make(map[string]struct{}, len(expWords))
	for _, w := range expWords {
		bag[w] = struct{}{}
	}

	matched := 0
	for _, w := range strings.Fields(giv) {
		if _, ok := bag[w]; ok {
			matched++
		}
	}

	// matched may exceed len(expWords) when correct words repeat; that is not a
	// full match and partial credit saturates at 100.
	partial := matched * 100 / len(expWords)
	if partial > 100 {
		partial = 100
	}
	return Grade{
		Correct: matched == len(expWords),
		Partial: partial,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
