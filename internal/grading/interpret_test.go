package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/quizmark/internal/model"
)

func TestInterpret(t *testing.T) {
	const max = model.Points(50) // 5 points

	tests := []struct {
		name     string
		raw      string
		score    model.Points
		feedback string
	}{
		{"strict json", `{"score": 3.5, "feedback": "Good"}`, 35, "Good"},
		{"rounded to a tenth", `{"score": 3.46, "feedback": ""}`, 35, ""},
		{"clamped high", `{"score": 9999, "feedback": "wow"}`, 50, "wow"},
		{"clamped low", `{"score": -5, "feedback": "no"}`, 0, "no"},
		{"string score", `{"score": "4,5", "feedback": "ok"}`, 45, "ok"},
		{"fraction string", `{"score": "4/5", "feedback": "ok"}`, 40, "ok"},
		{"french keys", `{"note": 2, "commentaire": "Bien"}`, 20, "Bien"},
		{"case-insensitive key", `{"Score": 1, "Feedback": "meh"}`, 10, "meh"},
		{"code fence", "```json\n{\"score\": 4, \"feedback\": \"fenced\"}\n```", 40, "fenced"},
		{"prose around json", "Here is my grade:\n{\"score\": 2, \"feedback\": \"x\"}\nThanks!", 20, "x"},
		{"think block", "<think>the score should be 1</think>{\"score\": 5, \"feedback\": \"perfect\"}", 50, "perfect"},
		{"label fallback", "Score: 4/5\nClear and correct.", 40, "Clear and correct."},
		{"label with comma", "Réponse incomplète.\nNote = 2,5", 25, "Réponse incomplète."},
		{"markdown bold label", "**Score**: 3\nSolid answer", 30, "Solid answer"},
		{"label fallback clamped", "score: 9999", 50, ""},
		{"label fallback negative", "Score: -5 - nothing right", 0, "- nothing right"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Interpret(tt.raw, max)
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.feedback, res.Feedback)
			assert.Equal(t, model.ProvenanceAI, res.Provenance)
		})
	}
}

// A fraction is read against its own denominator, not the question's points.
func TestInterpretRescalesFractions(t *testing.T) {
	tests := []struct {
		raw   string
		max   model.Points
		score model.Points
	}{
		{"Score: 4/5\nGood.", 100, 80},
		{`{"score": "4/5", "feedback": "Good."}`, 100, 80},
		{"Note : 7/10", 50, 35},
		{`{"note": "15 / 20 points"}`, 20, 15},
		{"Score: 12/10", 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res, err := Interpret(tt.raw, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
		})
	}
}

func TestInterpretFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain prose", "The student seems to understand the topic quite well."},
		{"empty", ""},
		{"json without score", `{"feedback": "no score here"}`},
		{"non-numeric score", `{"score": "excellent", "feedback": "x"}`},
		{"label without number", "Score: excellent"},
		{"word containing label", "The grader denoted 3 errors"},
		{"zero denominator", "Score: 3/0"},
		{"zero denominator json", `{"score": "3/0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Interpret(tt.raw, 50)
			var f *Failure
			require.True(t, errors.As(err, &f), "expected *Failure, got %v", err)
			assert.Equal(t, ReasonMalformed, f.Reason)
			assert.Equal(t, tt.raw, f.Raw)
		})
	}
}

// Whatever the model claims, the score stays within [0, max].
func TestInterpretScoreAlwaysInRange(t *testing.T) {
	claims := []string{"-5", "9999", "0", "2.55", "1e308", "-1e308", "0.04", "4.96"}
	for _, max := range []model.Points{1, 5, 20, 35} {
		for _, c := range claims {
			res, err := Interpret(`{"score": `+c+`}`, max)
			require.NoError(t, err, c)
			assert.GreaterOrEqual(t, res.Score, model.Points(0), c)
			assert.LessOrEqual(t, res.Score, max, c)
		}
	}
}
