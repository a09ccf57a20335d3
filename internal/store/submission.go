package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pavelanni/quizmark/internal/model"
)

type submissionRow struct {
	ID          int64                  `db:"id"`
	UID         string                 `db:"uid"`
	QuizID      int64                  `db:"quiz_id"`
	StudentID   int64                  `db:"student_id"`
	Status      model.SubmissionStatus `db:"status"`
	Score       model.Points           `db:"score"`
	ResolvedMax model.Points           `db:"resolved_max"`
	MaxScore    model.Points           `db:"max_score"`
	Analysis    string                 `db:"analysis"`
	StartedAt   *time.Time             `db:"started_at"`
	SubmittedAt time.Time              `db:"submitted_at"`
	GradedAt    *time.Time             `db:"graded_at"`
}

type answerRow struct {
	SubmissionID     int64         `db:"submission_id"`
	QuestionIndex    int           `db:"question_index"`
	Selected         string        `db:"selected"`
	Text             string        `db:"text"`
	TimeSpentSeconds int           `db:"time_spent_seconds"`
	FocusLost        int           `db:"focus_lost"`
	MaxPoints        model.Points  `db:"max_points"`
	Score            *model.Points `db:"score"`
	Feedback         string        `db:"feedback"`
	Provenance       string        `db:"provenance"`
	NeedsReview      bool          `db:"needs_review"`
	FailureReason    string        `db:"failure_reason"`
}

const submissionColumns = `id, uid, quiz_id, student_id, status, score, resolved_max,
	max_score, analysis, started_at, submitted_at, graded_at`

const answerColumns = `submission_id, question_index, selected, text, time_spent_seconds,
	focus_lost, max_points, score, feedback, provenance, needs_review, failure_reason`

func toRow(sub *model.Submission) submissionRow {
	return submissionRow{
		ID:          sub.ID,
		UID:         sub.UID,
		QuizID:      sub.QuizID,
		StudentID:   sub.StudentID,
		Status:      sub.Status,
		Score:       sub.Score,
		ResolvedMax: sub.ResolvedMax,
		MaxScore:    sub.MaxScore,
		StartedAt:   sub.StartedAt,
		SubmittedAt: sub.SubmittedAt,
		GradedAt:    sub.GradedAt,
	}
}

func toAnswerRow(subID int64, g model.AnswerGrade) (answerRow, error) {
	sel := g.Answer.Selected
	if sel == nil {
		sel = []int{}
	}
	b, err := json.Marshal(sel)
	if err != nil {
		return answerRow{}, err
	}
	r := answerRow{
		SubmissionID:     subID,
		QuestionIndex:    g.Answer.QuestionIndex,
		Selected:         string(b),
		Text:             g.Answer.Text,
		TimeSpentSeconds: g.Answer.TimeSpentSeconds,
		FocusLost:        g.Answer.FocusLost,
		MaxPoints:        g.MaxPoints,
		NeedsReview:      g.NeedsReview,
		FailureReason:    g.FailureReason,
	}
	if g.Result != nil {
		score := g.Result.Score
		r.Score = &score
		r.Feedback = g.Result.Feedback
		r.Provenance = string(g.Result.Provenance)
	}
	return r, nil
}

func (r answerRow) grade() (model.AnswerGrade, error) {
	g := model.AnswerGrade{
		Answer: model.Answer{
			QuestionIndex:    r.QuestionIndex,
			Text:             r.Text,
			TimeSpentSeconds: r.TimeSpentSeconds,
			FocusLost:        r.FocusLost,
		},
		MaxPoints:     r.MaxPoints,
		NeedsReview:   r.NeedsReview,
		FailureReason: r.FailureReason,
	}
	if err := json.Unmarshal([]byte(r.Selected), &g.Answer.Selected); err != nil {
		return g, fmt.Errorf("decode selected options: %w", err)
	}
	if len(g.Answer.Selected) == 0 {
		g.Answer.Selected = nil
	}
	if r.Score != nil {
		g.Result = &model.GradeResult{
			Score:      *r.Score,
			Feedback:   r.Feedback,
			Provenance: model.Provenance(r.Provenance),
		}
	}
	return g, nil
}

// HasSubmitted reports whether the student already answered the quiz.
func (s *Store) HasSubmitted(quizID, studentID int64) (bool, error) {
	var n int
	err := s.db.Get(&n,
		`SELECT COUNT(*) FROM submissions WHERE quiz_id = ? AND student_id = ?`, quizID, studentID)
	return n > 0, err
}

// CountSubmissions returns the number of submissions to a quiz.
func (s *Store) CountSubmissions(quizID int64) (int, error) {
	var n int
	err := s.db.Get(&n, `SELECT COUNT(*) FROM submissions WHERE quiz_id = ?`, quizID)
	return n, err
}

// SaveSubmission inserts a graded submission with all its answers and sets
// sub.ID. A second submission by the same student to the same quiz fails
// with ErrAlreadySubmitted.
func (s *Store) SaveSubmission(sub *model.Submission) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.Get(&n, `SELECT COUNT(*) FROM submissions WHERE quiz_id = ? AND student_id = ?`,
		sub.QuizID, sub.StudentID); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("quiz %d, student %d: %w", sub.QuizID, sub.StudentID, ErrAlreadySubmitted)
	}

	res, err := tx.NamedExec(
		`INSERT INTO submissions (uid, quiz_id, student_id, status, score, resolved_max,
			max_score, started_at, submitted_at, graded_at)
		 VALUES (:uid, :quiz_id, :student_id, :status, :score, :resolved_max,
			:max_score, :started_at, :submitted_at, :graded_at)`,
		toRow(sub),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := upsertAnswers(tx, id, sub.Grades); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	sub.ID = id
	return nil
}

// UpdateSubmission writes back the totals, status and answers of a
// submission after a retry or a manual override.
func (s *Store) UpdateSubmission(sub *model.Submission) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.NamedExec(
		`UPDATE submissions SET status = :status, score = :score, resolved_max = :resolved_max,
			max_score = :max_score, graded_at = :graded_at
		 WHERE id = :id`,
		toRow(sub),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %d: %w", sub.ID, ErrNotFound)
	}
	if err := upsertAnswers(tx, sub.ID, sub.Grades); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertAnswers(tx *sqlx.Tx, subID int64, grades []model.AnswerGrade) error {
	for _, g := range grades {
		row, err := toAnswerRow(subID, g)
		if err != nil {
			return err
		}
		_, err = tx.NamedExec(
			`INSERT INTO answers (`+answerColumns+`)
			 VALUES (:submission_id, :question_index, :selected, :text, :time_spent_seconds,
				:focus_lost, :max_points, :score, :feedback, :provenance, :needs_review, :failure_reason)
			 ON CONFLICT(submission_id, question_index) DO UPDATE SET
				score = excluded.score, feedback = excluded.feedback,
				provenance = excluded.provenance, needs_review = excluded.needs_review,
				failure_reason = excluded.failure_reason`,
			row,
		)
		if err != nil {
			return fmt.Errorf("save answer %d: %w", g.Answer.QuestionIndex, err)
		}
	}
	return nil
}

// GetSubmission returns a submission with its answers by its public UID.
func (s *Store) GetSubmission(uid string) (*model.Submission, error) {
	var row submissionRow
	err := s.db.Get(&row, `SELECT `+submissionColumns+` FROM submissions WHERE uid = ?`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.hydrate(row)
}

// ListSubmissions returns the submissions of a quiz in submission order.
func (s *Store) ListSubmissions(quizID int64) ([]model.Submission, error) {
	var rows []submissionRow
	err := s.db.Select(&rows,
		`SELECT `+submissionColumns+` FROM submissions WHERE quiz_id = ? ORDER BY id`, quizID)
	if err != nil {
		return nil, err
	}
	return s.hydrateAll(rows)
}

// ListPendingReview returns every partially graded submission.
func (s *Store) ListPendingReview() ([]model.Submission, error) {
	var rows []submissionRow
	err := s.db.Select(&rows,
		`SELECT `+submissionColumns+` FROM submissions WHERE status = ? ORDER BY id`,
		model.StatusPartiallyGraded)
	if err != nil {
		return nil, err
	}
	return s.hydrateAll(rows)
}

// SetAnalysis stores the behavioural analysis of a submission as JSON.
func (s *Store) SetAnalysis(uid, analysis string) error {
	res, err := s.db.Exec(`UPDATE submissions SET analysis = ? WHERE uid = ?`, analysis, uid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %s: %w", uid, ErrNotFound)
	}
	return nil
}

// GetAnalysis returns the stored analysis JSON, or "" if none was made.
func (s *Store) GetAnalysis(uid string) (string, error) {
	var analysis string
	err := s.db.Get(&analysis, `SELECT analysis FROM submissions WHERE uid = ?`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("submission %s: %w", uid, ErrNotFound)
	}
	return analysis, err
}

func (s *Store) hydrateAll(rows []submissionRow) ([]model.Submission, error) {
	subs := make([]model.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := s.hydrate(r)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (s *Store) hydrate(r submissionRow) (*model.Submission, error) {
	sub := &model.Submission{
		ID:          r.ID,
		UID:         r.UID,
		QuizID:      r.QuizID,
		StudentID:   r.StudentID,
		Status:      r.Status,
		Score:       r.Score,
		ResolvedMax: r.ResolvedMax,
		MaxScore:    r.MaxScore,
		StartedAt:   r.StartedAt,
		SubmittedAt: r.SubmittedAt,
		GradedAt:    r.GradedAt,
	}
	var answers []answerRow
	err := s.db.Select(&answers,
		`SELECT `+answerColumns+` FROM answers WHERE submission_id = ? ORDER BY question_index`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("load answers of %s: %w", r.UID, err)
	}
	for _, a := range answers {
		g, err := a.grade()
		if err != nil {
			return nil, err
		}
		sub.Grades = append(sub.Grades, g)
	}
	return sub, nil
}
