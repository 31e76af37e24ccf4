package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		given    string
		want     Grade
	}{
		{"all words any order", "tarik tambang kuat", "kuat tambang tarik", Grade{Correct: true, Partial: 100}},
		{"two of three words is partial only", "tarik tambang kuat", "tambang tarik", Grade{Partial: 66}},
		{"one of three words", "tarik tambang kuat", "tarik", Grade{Partial: 33}},
		{"case and padding", "Jakarta", "  jAKARTA ", Grade{Correct: true, Partial: 100}},
		{"no overlap", "tarik tambang", "bola", Grade{}},
		{"empty given", "tarik", "", Grade{Unanswered: true}},
		{"whitespace given", "42", " \t\n", Grade{Unanswered: true}},
		{"numeric exact", "50", " 50 ", Grade{Correct: true, Partial: 100}},
		{"numeric prefix gets nothing", "50", "5", Grade{}},
		{"numeric with extra word", "50", "50 kg", Grade{}},
		{"empty expected", "   ", "anything", Grade{}},
		{"repeated correct word counts", "tarik tambang kuat", "tarik tarik", Grade{Partial: 66}},
		{"repeats saturate but are not correct", "tarik tambang", "tarik tarik tambang", Grade{Partial: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.expected, tt.given))
		})
	}
}

func TestEvaluateNumericRequiresExactMatch(t *testing.T) {
	expected := []string{"0", "7", "50", "1945", "007"}
	given := []string{"", "0", "7", "5", "50", "500", "1945", "194", "7.0", "007", "seven", "50 50"}
	for _, exp := range expected {
		for _, giv := range given {
			g := Evaluate(exp, giv)
			if giv == "" {
				assert.True(t, g.Unanswered, "expected %q given %q", exp, giv)
				continue
			}
			assert.Equal(t, exp == giv, g.Correct, "expected %q given %q", exp, giv)
			if !g.Correct {
				assert.Zero(t, g.Partial, "no partial credit for numeric %q given %q", exp, giv)
			}
		}
	}
}
