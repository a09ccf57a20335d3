package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/llm"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/model"
)

// Attention levels, from nothing to report to a submission worth a look.
const (
	AttentionNone     = "none"
	AttentionLow      = "low"
	AttentionModerate = "moderate"
	AttentionHigh     = "high"
)

var attentionLevels = map[string]bool{
	AttentionNone: true, AttentionLow: true, AttentionModerate: true, AttentionHigh: true,
}

// ErrMalformedAnalysis means the model did not answer with a JSON object.
var ErrMalformedAnalysis = errors.New("malformed analysis")

type LearningGap struct {
	Topic              string `json:"topic"`
	QuestionsConcerned []int  `json:"questions_concerned"`
	DifficultyObserved string `json:"difficulty_observed"`
	Suggestion         string `json:"suggestion"`
}

type Indicator struct {
	Type           string `json:"type"`
	QuestionNumber int    `json:"question_number"`
	Description    string `json:"description"`
	Level          string `json:"level"`
}

// Analysis is the pedagogical reading of one submission.
type Analysis struct {
	AttentionLevel       string        `json:"attention_level"`
	Confidence           float64       `json:"confidence"`
	Strengths            []string      `json:"strengths"`
	LearningGaps         []LearningGap `json:"learning_gaps"`
	BehavioralIndicators []Indicator   `json:"behavioral_indicators"`
	Summary              string        `json:"summary"`
}

// normalize fills in the fields the model left out or got wrong.
func (a *Analysis) normalize() {
	a.AttentionLevel = strings.ToLower(strings.TrimSpace(a.AttentionLevel))
	if !attentionLevels[a.AttentionLevel] {
		a.AttentionLevel = AttentionNone
	}
	a.Confidence = min(max(a.Confidence, 0), 1)
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	if a.LearningGaps == nil {
		a.LearningGaps = []LearningGap{}
	}
	if a.BehavioralIndicators == nil {
		a.BehavioralIndicators = []Indicator{}
	}
	a.Summary = strings.TrimSpace(a.Summary)
}

type questionFacts struct {
	Number           int                `json:"number"`
	Type             model.QuestionKind `json:"type"`
	Points           float64            `json:"points"`
	Score            *float64           `json:"score"`
	AnswerLength     int                `json:"answer_length"`
	OptionsSelected  int                `json:"options_selected,omitempty"`
	Correct          *bool              `json:"correct,omitempty"`
	TimeSpentSeconds int                `json:"time_spent_seconds"`
	FocusLost        int                `json:"focus_lost"`
	NeedsReview      bool               `json:"needs_review,omitempty"`
}

type submissionFacts struct {
	QuizTitle  string          `json:"quiz_title"`
	Score      float64         `json:"score"`
	MaxScore   float64         `json:"max_score"`
	Percentage float64         `json:"percentage"`
	Questions  []questionFacts `json:"questions"`
}

// Analyzer asks a language model for a pedagogical analysis of a
// submission: strengths, gaps and unusual timing or focus behaviour.
type Analyzer struct {
	completer llm.Completer
	prompts   *prompts.Catalog
}

func NewAnalyzer(c llm.Completer, catalog *prompts.Catalog) *Analyzer {
	return &Analyzer{completer: c, prompts: catalog}
}

// AnalyzeSubmission consumes the class_analysis quota of the context.
func (a *Analyzer) AnalyzeSubmission(ctx context.Context, quiz *model.Quiz, sub *model.Submission, lang model.Language) (*Analysis, error) {
	facts, err := describe(quiz, sub)
	if err != nil {
		return nil, err
	}
	prompt, err := a.prompts.BuildAnalysisPrompt(lang, facts)
	if err != nil {
		return nil, fmt.Errorf("build analysis prompt: %w", err)
	}

	if q := grading.QuotaFromContext(ctx); q != nil {
		if err := q.Consume(ctx, model.QuotaClassAnalysis); err != nil {
			return nil, err
		}
	}

	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze submission: %w", err)
	}
	res, err := decodeAnalysis(raw)
	if err != nil {
		slog.Warn("analysis response rejected", "submission", sub.UID, "error", err)
		return nil, err
	}
	return res, nil
}

func describe(quiz *model.Quiz, sub *model.Submission) (string, error) {
	if len(sub.Grades) != len(quiz.Questions) {
		return "", fmt.Errorf("submission has %d answers, quiz has %d questions", len(sub.Grades), len(quiz.Questions))
	}
	f := submissionFacts{
		QuizTitle:  quiz.Title,
		Score:      sub.Score.Float64(),
		MaxScore:   sub.MaxScore.Float64(),
		Percentage: sub.Percentage(),
	}
	for i, q := range quiz.Questions {
		g := sub.Grades[i]
		qf := questionFacts{
			Number:           i + 1,
			Type:             q.Kind(),
			Points:           q.Points.Float64(),
			AnswerLength:     len([]rune(strings.TrimSpace(g.Answer.Text))),
			TimeSpentSeconds: g.Answer.TimeSpentSeconds,
			FocusLost:        g.Answer.FocusLost,
			NeedsReview:      g.NeedsReview,
		}
		if q.MultipleChoice != nil {
			qf.OptionsSelected = len(g.Answer.Selected)
		}
		if g.Result != nil {
			s := g.Result.Score.Float64()
			qf.Score = &s
			if q.MultipleChoice != nil {
				ok := g.Result.Score == q.Points
				qf.Correct = &ok
			}
		}
		f.Questions = append(f.Questions, qf)
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeAnalysis(raw string) (*Analysis, error) {
	text := grading.CleanResponse(raw)
	var res Analysis
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: no JSON object", ErrMalformedAnalysis)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
		}
	}
	res.normalize()
	return &res, nil
}
