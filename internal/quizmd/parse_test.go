package quizmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/quizmark/internal/model"
)

const sampleQuiz = `# Culture générale

Un petit quiz pour commencer.

## QCM - Quelle est la capitale de la France ? [2 points]
- [ ] Lyon
- [x] Paris
- [ ] Marseille

## QCM - Quels nombres sont premiers ? [1.5 points]
Plusieurs réponses possibles.

- [x] 2
- [x] 3

- [ ] 4

## OUVERTE - Expliquez la photosynthèse. [3 points]
Soyez précis. ![schéma](photo.png)

### Réponse attendue
La plante convertit la lumière en énergie chimique.

Elle produit du dioxygène.
`

func TestParseSample(t *testing.T) {
	q, err := Parse(sampleQuiz)
	require.NoError(t, err)

	assert.Equal(t, "Culture générale", q.Title)
	assert.Equal(t, "Un petit quiz pour commencer.", q.Description)
	require.Len(t, q.Questions, 3)

	mc := q.Questions[0]
	assert.Equal(t, model.KindMultipleChoice, mc.Kind())
	assert.Equal(t, "Quelle est la capitale de la France ?", mc.Text)
	assert.Equal(t, model.Points(20), mc.Points)
	assert.Equal(t, 5, mc.Line)
	require.Len(t, mc.MultipleChoice.Options, 3)
	assert.Equal(t, []int{1}, mc.MultipleChoice.CorrectSet())

	multi := q.Questions[1]
	assert.Equal(t, "Quels nombres sont premiers ?\nPlusieurs réponses possibles.", multi.Text)
	assert.Equal(t, model.Points(15), multi.Points)
	assert.Equal(t, []int{0, 1}, multi.MultipleChoice.CorrectSet())
	assert.Len(t, multi.MultipleChoice.Options, 3, "blank lines inside the option list are whitespace")

	open := q.Questions[2]
	assert.Equal(t, model.KindOpenEnded, open.Kind())
	assert.Equal(t, "La plante convertit la lumière en énergie chimique.\n\nElle produit du dioxygène.", open.OpenEnded.ExpectedAnswer)
	assert.Equal(t, []model.ImageRef{{Alt: "schéma", Filename: "photo.png"}}, open.Images)

	assert.Equal(t, model.Points(65), q.TotalPoints())
}

func TestParseMinimal(t *testing.T) {
	q, err := Parse("# T\n\n## QCM - Q1? [2 points]\n- [ ] A\n- [x] B\n")
	require.NoError(t, err)

	assert.Equal(t, "T", q.Title)
	require.Len(t, q.Questions, 1)
	qu := q.Questions[0]
	assert.Equal(t, "Q1?", qu.Text)
	assert.Equal(t, model.Points(20), qu.Points)
	assert.Equal(t, []model.Option{{Text: "A"}, {Text: "B", Correct: true}}, qu.MultipleChoice.Options)
}

func TestParseEnglishKeywords(t *testing.T) {
	q, err := Parse("# T\n## MCQ - Pick [1 point]\n- [X] yes\n## OPEN - Why? [0.5 points]\n### Expected answer\nBecause.\n")
	require.NoError(t, err)
	require.Len(t, q.Questions, 2)
	assert.True(t, q.Questions[0].MultipleChoice.Options[0].Correct)
	assert.Equal(t, "Because.", q.Questions[1].OpenEnded.ExpectedAnswer)
	assert.Equal(t, model.Points(5), q.Questions[1].Points)
}

func TestParseCRLF(t *testing.T) {
	q, err := Parse("# T\r\n## QCM - Q [1 points]\r\n- [x] A\r\n")
	require.NoError(t, err)
	assert.Equal(t, "A", q.Questions[0].MultipleChoice.Options[0].Text)
}

func TestParseStructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []StructuralError
	}{
		{
			name:  "open question without expected answer",
			input: "# T\n\n## OUVERTE - Expliquez. [3 points]\nDu texte.\n",
			want:  []StructuralError{{Line: 3, Code: CodeMissingExpected}},
		},
		{
			name:  "unknown type",
			input: "# T\n## VRAI - Q [1 points]\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeUnknownType, Detail: "VRAI"}},
		},
		{
			name:  "missing points",
			input: "# T\n## QCM - Q\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeMissingPoints}},
		},
		{
			name:  "two decimals",
			input: "# T\n## QCM - Q [1.25 points]\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeBadPoints, Detail: "1.25 points"}},
		},
		{
			name:  "abbreviated unit",
			input: "# T\n## QCM - Q [2 pts]\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeBadPoints, Detail: "2 pts"}},
		},
		{
			name:  "zero points",
			input: "# T\n## QCM - Q [0 points]\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeBadPoints, Detail: "0 points"}},
		},
		{
			name:  "negative points",
			input: "# T\n## QCM - Q [-1 points]\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeBadPoints, Detail: "-1 points"}},
		},
		{
			name:  "no correct option",
			input: "# T\n## QCM - Q [1 points]\n- [ ] A\n- [ ] B\n",
			want:  []StructuralError{{Line: 2, Code: CodeNoCorrectOption}},
		},
		{
			name:  "no options",
			input: "# T\n## QCM - Q [1 points]\nJust text.\n",
			want:  []StructuralError{{Line: 2, Code: CodeNoOptions}},
		},
		{
			name:  "option after list closed",
			input: "# T\n## QCM - Q [1 points]\n- [x] A\nInterruption\n- [ ] B\n",
			want:  []StructuralError{{Line: 5, Code: CodeStrayOption}},
		},
		{
			name:  "missing dash",
			input: "# T\n## QCM Q [1 points]\n- [x] A\n",
			want:  []StructuralError{{Line: 2, Code: CodeBadHeading}},
		},
		{
			name:  "second title",
			input: "# T\n## QCM - Q [1 points]\n- [x] A\n# Other\n",
			want:  []StructuralError{{Line: 4, Code: CodeDuplicateTitle}},
		},
		{
			name:  "every error is reported",
			input: "# T\n## QCM - A [1 points]\n- [ ] x\n## OUVERTE - B [2 points]\n## FOO - C [1 points]\n",
			want: []StructuralError{
				{Line: 2, Code: CodeNoCorrectOption},
				{Line: 4, Code: CodeMissingExpected},
				{Line: 5, Code: CodeUnknownType, Detail: "FOO"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, q)

			var errs StructuralErrors
			require.True(t, errors.As(err, &errs))
			assert.Equal(t, StructuralErrors(tt.want), errs)
		})
	}
}

func TestParseIgnoresStrayLines(t *testing.T) {
	input := "Preamble before the title\n# T\n\n## QCM - Q [1 points]\n- [x] A\n\nAfter the list.\n"
	q, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, "", q.Description)
	assert.Len(t, q.Questions[0].MultipleChoice.Options, 1)
}

func TestParseIdempotent(t *testing.T) {
	a, errA := Parse(sampleQuiz)
	b, errB := Parse(sampleQuiz)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestFormatRoundTrip(t *testing.T) {
	inputs := map[string]string{
		"sample":   sampleQuiz,
		"untitled": "#\nIntro text\n\n## QCM - Q1? [2 points]\n- [x] A\n",
	}
	for name, input := range inputs {
		orig, err := Parse(input)
		require.NoError(t, err)

		for _, lang := range []model.Language{model.LangFR, model.LangEN} {
			t.Run(name+"/"+string(lang), func(t *testing.T) {
				again, err := Parse(Format(orig, lang))
				require.NoError(t, err)
				assert.Equal(t, withoutLines(orig), withoutLines(again))
			})
		}
	}
	untitled, err := Parse(inputs["untitled"])
	require.NoError(t, err)
	assert.Equal(t, "Intro text", untitled.Description)
}

func withoutLines(q *model.Quiz) *model.Quiz {
	c := *q
	c.Questions = make([]model.Question, len(q.Questions))
	for i, qu := range q.Questions {
		qu.Line = 0
		c.Questions[i] = qu
	}
	return &c
}

func TestExtractImages(t *testing.T) {
	tests := []struct {
		in   string
		want []model.ImageRef
	}{
		{"no images", nil},
		{"![a](x.png)", []model.ImageRef{{Alt: "a", Filename: "x.png"}}},
		{"see ![](one.png) and ![two](two.jpg \"Title\")", []model.ImageRef{{Filename: "one.png"}, {Alt: "two", Filename: "two.jpg"}}},
		{"broken ![alt](", nil},
		{"[link](x.html)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, extractImages(tt.in))
		})
	}
}
