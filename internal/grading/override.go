package grading

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/quizmark/internal/model"
)

// ErrScoreOutOfRange rejects a manual score outside [0, points].
var ErrScoreOutOfRange = errors.New("score out of range")

// ApplyOverride records a manual grade for answer index of sub. It clears
// the review flag and moves the submission to Graded once every answer has
// a result.
func ApplyOverride(sub *model.Submission, index int, score model.Points, feedback string, now time.Time) error {
	if index < 0 || index >= len(sub.Grades) {
		return fmt.Errorf("%w: no answer %d", ErrInvalidAnswer, index)
	}
	slot := &sub.Grades[index]
	if score < 0 || score > slot.MaxPoints {
		return fmt.Errorf("%w: %s not in [0, %s]", ErrScoreOutOfRange, score, slot.MaxPoints)
	}
	slot.Result = &model.GradeResult{Score: score, Feedback: feedback, Provenance: model.ProvenanceManual}
	slot.NeedsReview = false
	slot.FailureReason = ""

	sub.Recompute()
	if sub.Status == model.StatusGraded && sub.GradedAt == nil {
		sub.GradedAt = &now
	}
	return nil
}
