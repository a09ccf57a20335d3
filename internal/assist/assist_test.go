package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/llm"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
)

const draft = `# Photosynthesis

## QCM - Where does photosynthesis happen? [2 points]
- [x] Chloroplasts
- [ ] Mitochondria
- [ ] Nucleus
- [ ] Ribosomes

## OUVERTE - Explain the role of light. [3 points]
### Réponse attendue
Light provides the energy to split water.
`

func catalog(t *testing.T) *prompts.Catalog {
	t.Helper()
	c, err := prompts.Load()
	require.NoError(t, err)
	return c
}

type countingQuota struct {
	kinds []model.QuotaKind
	err   error
}

func (q *countingQuota) Consume(_ context.Context, kind model.QuotaKind) error {
	q.kinds = append(q.kinds, kind)
	return q.err
}

func genRequest() GenerateRequest {
	return GenerateRequest{
		Title:      "Photosynthesis",
		Content:    "Plants turn light into chemical energy.",
		NumChoice:  1,
		NumOpen:    1,
		Difficulty: prompts.DifficultyMedium,
		Language:   model.LangEN,
	}
}

func TestGenerate(t *testing.T) {
	var prompt string
	c := llm.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```markdown\n" + draft + "```", nil
	})
	quota := &countingQuota{}
	ctx := grading.WithQuota(context.Background(), quota)

	out, err := NewGenerator(c, catalog(t)).Generate(ctx, genRequest())
	require.NoError(t, err)

	assert.Contains(t, prompt, "Plants turn light into chemical energy.")
	assert.True(t, strings.HasPrefix(out.Markdown, "# Photosynthesis"))
	require.NotNil(t, out.Quiz)
	assert.Len(t, out.Quiz.Questions, 2)
	assert.Equal(t, []model.QuotaKind{model.QuotaQuizGeneration}, quota.kinds)
}

func TestGenerateKeepsBrokenDraft(t *testing.T) {
	broken := "# Draft\n\n## QCM - Pick one [2 points]\n- [ ] a\n- [ ] b\n"
	c := llm.CompleterFunc(func(context.Context, string) (string, error) { return broken, nil })

	out, err := NewGenerator(c, catalog(t)).Generate(context.Background(), genRequest())
	var serr quizmd.StructuralErrors
	require.True(t, errors.As(err, &serr), "got %v", err)
	require.NotNil(t, out)
	assert.Equal(t, strings.TrimSpace(broken), out.Markdown)
	assert.Nil(t, out.Quiz)
}

func TestGenerateRejectsBadRequest(t *testing.T) {
	called := false
	c := llm.CompleterFunc(func(context.Context, string) (string, error) {
		called = true
		return draft, nil
	})
	g := NewGenerator(c, catalog(t))

	tests := []struct {
		name   string
		mutate func(*GenerateRequest)
	}{
		{"no title", func(r *GenerateRequest) { r.Title = " " }},
		{"no content", func(r *GenerateRequest) { r.Content = "" }},
		{"no questions", func(r *GenerateRequest) { r.NumChoice, r.NumOpen = 0, 0 }},
		{"negative count", func(r *GenerateRequest) { r.NumChoice = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := genRequest()
			tt.mutate(&req)
			_, err := g.Generate(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	req := genRequest()
	req.Difficulty = "extreme"
	_, err := g.Generate(context.Background(), req)
	assert.Error(t, err)
	assert.False(t, called)
}

func TestGenerateQuotaExceeded(t *testing.T) {
	called := false
	c := llm.CompleterFunc(func(context.Context, string) (string, error) {
		called = true
		return draft, nil
	})
	quota := &countingQuota{err: fmt.Errorf("tenant 3: %w", grading.ErrQuotaExceeded)}
	ctx := grading.WithQuota(context.Background(), quota)

	_, err := NewGenerator(c, catalog(t)).Generate(ctx, genRequest())
	assert.ErrorIs(t, err, grading.ErrQuotaExceeded)
	assert.False(t, called)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "éé", truncateRunes("ééé", 2))
	assert.Equal(t, "", truncateRunes("abc", 0))

	long := strings.Repeat("x", MaxContentRunes+10)
	var prompt string
	c := llm.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return draft, nil
	})
	req := genRequest()
	req.Content = long
	_, err := NewGenerator(c, catalog(t)).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NotContains(t, prompt, long)
	assert.Contains(t, prompt, long[:MaxContentRunes])
}

func gradedSubmission(t *testing.T) (*model.Quiz, *model.Submission) {
	t.Helper()
	quiz, _, err := quizmd.Load(draft)
	require.NoError(t, err)
	sub := &model.Submission{
		UID: "01J000000000000000000000AN",
		Grades: []model.AnswerGrade{
			{
				Answer:    model.Answer{QuestionIndex: 0, Selected: []int{0}, TimeSpentSeconds: 4, FocusLost: 3},
				MaxPoints: 20,
				Result:    &model.GradeResult{Score: 20, Provenance: model.ProvenanceAutomatic},
			},
			{
				Answer:    model.Answer{QuestionIndex: 1, Text: "It gives energy.", TimeSpentSeconds: 95},
				MaxPoints: 30,
				Result:    &model.GradeResult{Score: 15, Provenance: model.ProvenanceAI},
			},
		},
	}
	sub.Recompute()
	return quiz, sub
}

func TestAnalyzeSubmission(t *testing.T) {
	quiz, sub := gradedSubmission(t)
	var prompt string
	c := llm.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "<think>hmm</think>\n```json\n" + `{
  "attention_level": "Moderate",
  "confidence": 0.7,
  "strengths": ["knows where photosynthesis happens"],
  "learning_gaps": [{"topic": "light reactions", "questions_concerned": [2], "suggestion": "review photolysis"}],
  "behavioral_indicators": [{"type": "focus", "question_number": 1, "description": "left the page 3 times", "level": "attention"}],
  "summary": "Solid basics."
}` + "\n```", nil
	})
	quota := &countingQuota{}
	ctx := grading.WithQuota(context.Background(), quota)

	res, err := NewAnalyzer(c, catalog(t)).AnalyzeSubmission(ctx, quiz, sub, model.LangEN)
	require.NoError(t, err)

	assert.Contains(t, prompt, `"focus_lost": 3`)
	assert.Contains(t, prompt, `"answer_length": 16`)
	assert.Equal(t, AttentionModerate, res.AttentionLevel)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Equal(t, []int{2}, res.LearningGaps[0].QuestionsConcerned)
	assert.Equal(t, "attention", res.BehavioralIndicators[0].Level)
	assert.Equal(t, "Solid basics.", res.Summary)
	assert.Equal(t, []model.QuotaKind{model.QuotaClassAnalysis}, quota.kinds)
}

func TestDecodeAnalysisDefaults(t *testing.T) {
	res, err := decodeAnalysis(`Here you go: {"confidence": 4, "attention_level": "alarming"}`)
	require.NoError(t, err)
	assert.Equal(t, AttentionNone, res.AttentionLevel)
	assert.Equal(t, 1.0, res.Confidence)
	assert.NotNil(t, res.Strengths)
	assert.NotNil(t, res.LearningGaps)
	assert.NotNil(t, res.BehavioralIndicators)

	_, err = decodeAnalysis("I cannot analyze this.")
	assert.ErrorIs(t, err, ErrMalformedAnalysis)
}

func TestAnalyzeMismatchedSubmission(t *testing.T) {
	quiz, sub := gradedSubmission(t)
	sub.Grades = sub.Grades[:1]
	c := llm.CompleterFunc(func(context.Context, string) (string, error) { return "{}", nil })
	_, err := NewAnalyzer(c, catalog(t)).AnalyzeSubmission(context.Background(), quiz, sub, model.LangFR)
	assert.Error(t, err)
}
