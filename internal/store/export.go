package store

import (
	"fmt"
	"strings"

	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
)

// ExportResults builds export-ready results for every submission of a quiz.
// Question texts come from the quiz as it is stored now.
func (s *Store) ExportResults(quizID int64) ([]model.StudentResult, error) {
	rec, err := s.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	quiz, err := quizmd.Parse(rec.Markdown)
	if err != nil {
		return nil, fmt.Errorf("parse quiz %d: %w", quizID, err)
	}
	subs, err := s.ListSubmissions(quizID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	users := make(map[int64]*model.User)
	var results []model.StudentResult
	for _, sub := range subs {
		u, ok := users[sub.StudentID]
		if !ok {
			if u, err = s.GetUserByID(sub.StudentID); err != nil {
				return nil, fmt.Errorf("get user %d: %w", sub.StudentID, err)
			}
			users[sub.StudentID] = u
		}
		var username, displayName string
		if u != nil {
			username, displayName = u.Username, u.DisplayName
		}

		var questions []model.QuestionResult
		for i, g := range sub.Grades {
			qr := model.QuestionResult{
				Index:       i,
				MaxPoints:   g.MaxPoints,
				Answer:      g.Answer.Text,
				NeedsReview: g.NeedsReview,
			}
			if i < len(quiz.Questions) {
				q := quiz.Questions[i]
				qr.Kind = q.Kind()
				qr.Text = q.Text
				if q.MultipleChoice != nil {
					qr.Answer = selectedText(q.MultipleChoice, g.Answer.Selected)
				}
			}
			if g.Result != nil {
				score := g.Result.Score
				qr.Score = &score
				qr.Feedback = g.Result.Feedback
				qr.Provenance = g.Result.Provenance
			}
			questions = append(questions, qr)
		}

		results = append(results, model.StudentResult{
			SubmissionUID: sub.UID,
			QuizID:        quizID,
			QuizTitle:     rec.Title,
			Username:      username,
			DisplayName:   displayName,
			Status:        sub.Status,
			SubmittedAt:   sub.SubmittedAt,
			Questions:     questions,
			Score:         sub.Score,
			MaxScore:      sub.MaxScore,
			Percentage:    sub.Percentage(),
		})
	}
	return results, nil
}

func selectedText(mc *model.MultipleChoice, selected []int) string {
	var parts []string
	for _, i := range selected {
		if i >= 0 && i < len(mc.Options) {
			parts = append(parts, mc.Options[i].Text)
		}
	}
	return strings.Join(parts, "; ")
}
