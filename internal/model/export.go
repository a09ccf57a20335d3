package model

import "time"

// QuizExport is the top-level JSON structure for result export.
type QuizExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one submission for export.
type StudentResult struct {
	SubmissionUID string           `json:"submission_uid"`
	QuizID        int64            `json:"quiz_id"`
	QuizTitle     string           `json:"quiz_title"`
	Username      string           `json:"username"`
	DisplayName   string           `json:"display_name"`
	Status        SubmissionStatus `json:"status"`
	SubmittedAt   time.Time        `json:"submitted_at"`
	Questions     []QuestionResult `json:"questions"`
	Score         Points           `json:"score"`
	MaxScore      Points           `json:"max_score"`
	Percentage    float64          `json:"percentage"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Index       int          `json:"index"`
	Kind        QuestionKind `json:"kind"`
	Text        string       `json:"text"`
	MaxPoints   Points       `json:"max_points"`
	Answer      string       `json:"answer"`
	Score       *Points      `json:"score,omitempty"`
	Feedback    string       `json:"feedback,omitempty"`
	Provenance  Provenance   `json:"provenance,omitempty"`
	NeedsReview bool         `json:"needs_review"`
}
