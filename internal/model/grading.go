package model

import (
	"fmt"
	"time"
)

// Severity controls how tolerant the AI grader is of imprecise answers.
type Severity string

const (
	SeverityLenient Severity = "lenient"
	SeverityNormal  Severity = "normal"
	SeverityStrict  Severity = "strict"
)

// severityAliases maps the French names stored by older quizzes.
var severityAliases = map[string]Severity{
	"lenient": SeverityLenient,
	"normal":  SeverityNormal,
	"strict":  SeverityStrict,
	"gentil":  SeverityLenient,
	"modere":  SeverityNormal,
	"severe":  SeverityStrict,
}

// ParseSeverity accepts the canonical names and the legacy French aliases.
func ParseSeverity(s string) (Severity, error) {
	if v, ok := severityAliases[s]; ok {
		return v, nil
	}
	return "", &ConfigError{Field: "severity", Value: s}
}

// Tone is the register of the feedback written by the AI grader.
type Tone string

const (
	ToneNeutral      Tone = "neutral"
	ToneJovial       Tone = "jovial"
	ToneTeasing      Tone = "teasing"
	ToneEncouraging  Tone = "encouraging"
	ToneSarcastic    Tone = "sarcastic"
	ToneProfessorial Tone = "professorial"
)

// Tones lists every valid tone.
var Tones = []Tone{ToneNeutral, ToneJovial, ToneTeasing, ToneEncouraging, ToneSarcastic, ToneProfessorial}

// Language is the language prompts and feedback are written in.
type Language string

const (
	LangFR Language = "fr"
	LangEN Language = "en"
)

// GradingConfig is passed explicitly to every grading operation.
type GradingConfig struct {
	Severity Severity `json:"severity"`
	Tone     Tone     `json:"tone"`
	Language Language `json:"language"`
}

// Validate rejects unknown or missing values. Nothing is defaulted.
func (c GradingConfig) Validate() error {
	switch c.Severity {
	case SeverityLenient, SeverityNormal, SeverityStrict:
	default:
		return &ConfigError{Field: "severity", Value: string(c.Severity)}
	}
	valid := false
	for _, t := range Tones {
		if c.Tone == t {
			valid = true
			break
		}
	}
	if !valid {
		return &ConfigError{Field: "tone", Value: string(c.Tone)}
	}
	switch c.Language {
	case LangFR, LangEN:
	default:
		return &ConfigError{Field: "language", Value: string(c.Language)}
	}
	return nil
}

// ConfigError reports a missing or invalid grading configuration value.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("grading config: missing %s", e.Field)
	}
	return fmt.Sprintf("grading config: invalid %s %q", e.Field, e.Value)
}

// Provenance tells where a grade came from.
type Provenance string

const (
	ProvenanceAutomatic Provenance = "automatic"
	ProvenanceAI        Provenance = "ai"
	ProvenanceManual    Provenance = "manual"
)

// GradeResult is the grade of one answer. Score is within [0, points].
type GradeResult struct {
	Score      Points     `json:"score"`
	Feedback   string     `json:"feedback"`
	Provenance Provenance `json:"provenance"`
}

// Answer is a student's answer to one question: selected option indices
// for multiple choice, free text for open-ended questions.
type Answer struct {
	QuestionIndex    int    `json:"question_index"`
	Selected         []int  `json:"selected,omitempty"`
	Text             string `json:"text,omitempty"`
	TimeSpentSeconds int    `json:"time_spent_seconds,omitempty"`
	FocusLost        int    `json:"focus_lost,omitempty"`
}

// SubmissionStatus is the grading state of a submission.
type SubmissionStatus string

const (
	StatusPending         SubmissionStatus = "pending"
	StatusGrading         SubmissionStatus = "grading"
	StatusGraded          SubmissionStatus = "graded"
	StatusPartiallyGraded SubmissionStatus = "partially_graded"
)

// AnswerGrade pairs an answer with its grade. Result is nil while the
// answer waits for manual review.
type AnswerGrade struct {
	Answer        Answer       `json:"answer"`
	MaxPoints     Points       `json:"max_points"`
	Result        *GradeResult `json:"result,omitempty"`
	NeedsReview   bool         `json:"needs_review"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// Submission is one student's graded attempt at a quiz. Grades has one
// slot per quiz question, in quiz order.
type Submission struct {
	ID          int64            `json:"id"`
	UID         string           `json:"uid"`
	QuizID      int64            `json:"quiz_id"`
	StudentID   int64            `json:"student_id"`
	Status      SubmissionStatus `json:"status"`
	Grades      []AnswerGrade    `json:"grades"`
	Score       Points           `json:"score"`
	ResolvedMax Points           `json:"resolved_max"`
	MaxScore    Points           `json:"max_score"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	GradedAt    *time.Time       `json:"graded_at,omitempty"`
}

// Recompute derives the totals and the terminal status from the grade
// slots. Unresolved slots count toward MaxScore only.
func (s *Submission) Recompute() {
	s.Score, s.ResolvedMax, s.MaxScore = 0, 0, 0
	pending := false
	for _, g := range s.Grades {
		s.MaxScore += g.MaxPoints
		if g.Result == nil {
			pending = true
			continue
		}
		s.Score += g.Result.Score
		s.ResolvedMax += g.MaxPoints
	}
	if pending {
		s.Status = StatusPartiallyGraded
	} else {
		s.Status = StatusGraded
	}
}

// Percentage is the score over the points of resolved questions only.
func (s *Submission) Percentage() float64 {
	if s.ResolvedMax <= 0 {
		return 0
	}
	return float64(s.Score) / float64(s.ResolvedMax) * 100
}

// PendingReview returns the indices of answers awaiting manual review.
func (s *Submission) PendingReview() []int {
	var idx []int
	for i, g := range s.Grades {
		if g.Result == nil {
			idx = append(idx, i)
		}
	}
	return idx
}
