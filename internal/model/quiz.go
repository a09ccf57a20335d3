package model

import (
	"encoding/json"
	"math/rand/v2"
)

// QuestionKind discriminates the Question variants.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindOpenEnded      QuestionKind = "open_ended"
)

// ImageRef is an inline image reference (![alt](filename)) found in
// question or option text. The file itself is not resolved here.
type ImageRef struct {
	Alt      string `json:"alt"`
	Filename string `json:"filename"`
}

// Option is one answer choice of a multiple-choice question.
type Option struct {
	Text    string     `json:"text"`
	Correct bool       `json:"correct"`
	Images  []ImageRef `json:"images,omitempty"`
}

// MultipleChoice holds the options of a multiple-choice question in
// authored order. At least one option is correct.
type MultipleChoice struct {
	Options []Option `json:"options"`
}

// CorrectSet returns the indices of the correct options in ascending order.
func (m *MultipleChoice) CorrectSet() []int {
	var idx []int
	for i, o := range m.Options {
		if o.Correct {
			idx = append(idx, i)
		}
	}
	return idx
}

// OpenEnded holds the reference answer used for grading. It is never shown
// to students.
type OpenEnded struct {
	ExpectedAnswer string `json:"expected_answer"`
}

// Question is a tagged variant: exactly one of MultipleChoice and OpenEnded
// is set.
type Question struct {
	Text   string     `json:"text"`
	Points Points     `json:"points"`
	Images []ImageRef `json:"images,omitempty"`
	// Line is the 1-based source line of the question heading.
	Line int `json:"line"`

	MultipleChoice *MultipleChoice `json:"multiple_choice,omitempty"`
	OpenEnded      *OpenEnded      `json:"open_ended,omitempty"`
}

// Kind returns which variant q holds.
func (q Question) Kind() QuestionKind {
	if q.MultipleChoice != nil {
		return KindMultipleChoice
	}
	return KindOpenEnded
}

// Quiz is the parsed form of a Markdown quiz. It is never mutated after
// parsing; re-parsing replaces it.
type Quiz struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// TotalPoints sums the question points. It is recomputed on every call.
func (q *Quiz) TotalPoints() Points {
	var total Points
	for _, qu := range q.Questions {
		total += qu.Points
	}
	return total
}

// MarshalJSON adds the computed total to the encoded quiz.
func (q *Quiz) MarshalJSON() ([]byte, error) {
	type plain Quiz
	return json.Marshal(struct {
		*plain
		TotalPoints Points `json:"total_points"`
	}{(*plain)(q), q.TotalPoints()})
}

// StudentQuestion is the student-facing view of a question: no correctness
// flags and no expected answer.
type StudentQuestion struct {
	Index   int             `json:"index"`
	Kind    QuestionKind    `json:"kind"`
	Text    string          `json:"text"`
	Points  Points          `json:"points"`
	Options []StudentOption `json:"options,omitempty"`
	// Multiple is true when more than one option is correct (checkboxes
	// rather than radio buttons).
	Multiple bool `json:"multiple,omitempty"`
}

// StudentOption carries the authored index so that a shuffled display
// still submits original indices.
type StudentOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ForStudent builds the student view of the quiz. When shuffle is true the
// options of every multiple-choice question are permuted with a generator
// seeded by seed, so a student sees a stable order across reloads.
func (q *Quiz) ForStudent(shuffle bool, seed uint64) []StudentQuestion {
	out := make([]StudentQuestion, 0, len(q.Questions))
	for i, qu := range q.Questions {
		sq := StudentQuestion{Index: i, Kind: qu.Kind(), Text: qu.Text, Points: qu.Points}
		if mc := qu.MultipleChoice; mc != nil {
			order := make([]int, len(mc.Options))
			for j := range order {
				order[j] = j
			}
			if shuffle {
				r := rand.New(rand.NewPCG(seed, uint64(i)))
				r.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
			}
			for _, j := range order {
				sq.Options = append(sq.Options, StudentOption{Index: j, Text: mc.Options[j].Text})
			}
			sq.Multiple = len(mc.CorrectSet()) > 1
		}
		out = append(out, sq)
	}
	return out
}
