// Package views holds the server-side HTML pages. The components are
// written in .templ files; run `templ generate` after editing them.
package views

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	appI18n "github.com/pavelanni/quizmark/internal/i18n"
	"github.com/pavelanni/quizmark/internal/model"
)

// Page carries what every page needs besides its own content.
type Page struct {
	BasePath string
	CSRF     string
	User     *model.User
}

func (p Page) URL(path string) string {
	return p.BasePath + path
}

func (p Page) quizURL(id int64) string {
	return p.URL("/quizzes/" + strconv.FormatInt(id, 10))
}

func numbered(i int, text string) string {
	return fmt.Sprintf("%d. %s", i+1, text)
}

// fieldName is the form field of a question. Multiple-choice fields carry
// authored option indices as values.
func fieldName(index int) string {
	return "q" + strconv.Itoa(index)
}

func inputType(q model.StudentQuestion) string {
	if q.Multiple {
		return "checkbox"
	}
	return "radio"
}

func pointsLabel(ctx context.Context, p model.Points) string {
	return appI18n.Td(ctx, "PointsCount", map[string]any{"Points": p.String()})
}

func scoreLine(ctx context.Context, sub *model.Submission) string {
	return appI18n.Td(ctx, "ScoreOf", map[string]any{
		"Score":   sub.Score.String(),
		"Max":     sub.ResolvedMax.String(),
		"Percent": strconv.FormatFloat(sub.Percentage(), 'f', 1, 64),
	})
}

// answerText is what the student answered, option texts for a
// multiple-choice question.
func answerText(q model.Question, a model.Answer) string {
	mc := q.MultipleChoice
	if mc == nil {
		return a.Text
	}
	var picked []string
	for _, idx := range a.Selected {
		if idx >= 0 && idx < len(mc.Options) {
			picked = append(picked, mc.Options[idx].Text)
		}
	}
	return strings.Join(picked, "; ")
}

// resultRow pairs a stored grade with its question. Grades beyond the
// questions of the quiz are dropped.
type resultRow struct {
	Number   int
	Question model.Question
	Grade    model.AnswerGrade
}

func resultRows(quiz *model.Quiz, sub *model.Submission) []resultRow {
	rows := make([]resultRow, 0, len(sub.Grades))
	for i, g := range sub.Grades {
		if i >= len(quiz.Questions) {
			break
		}
		rows = append(rows, resultRow{Number: i, Question: quiz.Questions[i], Grade: g})
	}
	return rows
}

func activeQuizzes(quizzes []model.QuizRecord) []model.QuizRecord {
	var out []model.QuizRecord
	for _, q := range quizzes {
		if q.Active {
			out = append(out, q)
		}
	}
	return out
}
