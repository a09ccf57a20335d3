package views

import (
	"bytes"
	"context"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appI18n "github.com/pavelanni/quizmark/internal/i18n"
	"github.com/pavelanni/quizmark/internal/model"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

var page = Page{BasePath: "/quiz", CSRF: "tok", User: &model.User{DisplayName: "Sam <3"}}

func TestLoginPage(t *testing.T) {
	html := render(t, LoginPage(Page{BasePath: "/quiz", CSRF: "tok"}, "<b>bad</b>"))
	assert.Contains(t, html, `action="/quiz/login"`)
	assert.Contains(t, html, `name="csrf_token" value="tok"`)
	assert.Contains(t, html, "&lt;b&gt;bad&lt;/b&gt;")
	assert.NotContains(t, html, "/quiz/logout")
}

func TestIndexPageListsActiveQuizzes(t *testing.T) {
	html := render(t, IndexPage(page, []model.QuizRecord{
		{ID: 1, Title: "Primes", Active: true},
		{ID: 2, Title: "Draft", Active: false},
	}))
	assert.Contains(t, html, `href="/quiz/quizzes/1"`)
	assert.NotContains(t, html, "Draft")
	assert.Contains(t, html, "Sam &lt;3")
	assert.Contains(t, html, `action="/quiz/logout"`)

	assert.Contains(t, render(t, IndexPage(page, nil)), "No quizzes yet.")
}

func TestQuizPageFields(t *testing.T) {
	quiz := &model.Quiz{Title: "Primes", Description: "Read carefully."}
	questions := []model.StudentQuestion{
		{Index: 0, Kind: model.KindMultipleChoice, Text: "Pick", Points: 20, Multiple: true,
			Options: []model.StudentOption{{Index: 2, Text: "5"}, {Index: 0, Text: "2"}}},
		{Index: 1, Kind: model.KindOpenEnded, Text: "Define", Points: 30},
	}
	html := render(t, QuizPage(page, 7, quiz, questions))
	assert.Contains(t, html, `action="/quiz/quizzes/7"`)
	assert.Contains(t, html, `<input type="checkbox" name="q0" value="2">`)
	assert.Contains(t, html, `<textarea name="q1"></textarea>`)
	assert.Contains(t, html, "1. Pick")
	assert.Contains(t, html, "2 points")
	assert.Contains(t, html, "Read carefully.")
}

func TestResultPage(t *testing.T) {
	quiz := &model.Quiz{Title: "Primes", Questions: []model.Question{
		{Text: "Pick", Points: 20, MultipleChoice: &model.MultipleChoice{Options: []model.Option{
			{Text: "2", Correct: true}, {Text: "4"}, {Text: "5", Correct: true},
		}}},
		{Text: "Define", Points: 30, OpenEnded: &model.OpenEnded{ExpectedAnswer: "Two divisors."}},
	}}
	sub := &model.Submission{Grades: []model.AnswerGrade{
		{Answer: model.Answer{QuestionIndex: 0, Selected: []int{0, 2}}, MaxPoints: 20,
			Result: &model.GradeResult{Score: 20, Feedback: "<i>ok</i>"}},
		{Answer: model.Answer{QuestionIndex: 1, Text: "Prime stuff"}, MaxPoints: 30, NeedsReview: true},
	}}
	sub.Recompute()

	html := render(t, ResultPage(page, quiz, sub))
	assert.Contains(t, html, "2; 5")
	assert.Contains(t, html, "2 / 2")
	assert.Contains(t, html, "&lt;i&gt;ok&lt;/i&gt;")
	assert.Contains(t, html, "Awaiting review")
	assert.Contains(t, html, "Partially graded")
	assert.NotContains(t, html, "Two divisors.")
}
