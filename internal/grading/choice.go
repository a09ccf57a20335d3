package grading

import (
	"slices"

	"github.com/pavelanni/quizmark/internal/model"
)

// GradeChoice grades a multiple-choice answer. Credit is all or nothing:
// the selected set must equal the correct set exactly. Repeated indices
// count once; out-of-range indices make the selection wrong.
func GradeChoice(q model.Question, selected []int) model.GradeResult {
	res := model.GradeResult{Provenance: model.ProvenanceAutomatic}
	if q.MultipleChoice == nil {
		return res
	}
	got := slices.Clone(selected)
	slices.Sort(got)
	got = slices.Compact(got)
	if slices.Equal(got, q.MultipleChoice.CorrectSet()) {
		res.Score = q.Points
	}
	return res
}
