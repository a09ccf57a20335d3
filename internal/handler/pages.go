package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizmark/internal/handler/views"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/store"
)

func (h *Handler) page(r *http.Request) views.Page {
	return views.Page{
		BasePath: h.config.BasePath,
		CSRF:     csrfToken(r.Context()),
		User:     model.UserFromContext(r.Context()),
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	quizzes, err := h.listVisibleQuizzes(u)
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.IndexPage(h.page(r), quizzes))
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, quiz, err := h.loadQuiz(r, u)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if !rec.Active {
		renderError(w, r, errQuizClosed)
		return
	}
	questions := quiz.ForStudent(rec.Shuffle, shuffleSeed(u.ID, rec.ID))
	h.render(w, r, http.StatusOK, views.QuizPage(h.page(r), rec.ID, quiz, questions))
}

// shuffleSeed keeps a student's option order stable across reloads.
func shuffleSeed(userID, quizID int64) uint64 {
	return uint64(userID)<<32 ^ uint64(quizID)
}

// handleQuizForm grades the HTML form and redirects to the result page.
// Fields are named q<index>; multiple-choice fields carry authored option
// indices.
func (h *Handler) handleQuizForm(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, quiz, err := h.loadQuiz(r, u)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		renderError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	answers := make([]model.Answer, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		name := "q" + strconv.Itoa(i)
		a := model.Answer{QuestionIndex: i}
		if q.MultipleChoice != nil {
			for _, v := range r.Form[name] {
				idx, err := strconv.Atoi(v)
				if err != nil {
					renderError(w, r, fmt.Errorf("%w: option %q", errBadRequest, v))
					return
				}
				a.Selected = append(a.Selected, idx)
			}
		} else {
			a.Text = r.FormValue(name)
		}
		answers = append(answers, a)
	}

	sub, err := h.gradeAndSave(r, u, rec, quiz, answers, nil)
	if err != nil {
		renderError(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/submissions/"+sub.UID), http.StatusSeeOther)
}

func (h *Handler) handleResultPage(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	_, quiz, sub, err := h.loadSubmission(u, chi.URLParam(r, "uid"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, views.ResultPage(h.page(r), quiz, sub))
}

// gradeAndSave grades answers and persists the submission. Grading is
// detached from the request so that a client disconnect does not turn
// every open answer into a review item.
func (h *Handler) gradeAndSave(r *http.Request, u *model.User, rec *model.QuizRecord, quiz *model.Quiz, answers []model.Answer, startedAt *time.Time) (*model.Submission, error) {
	if !rec.Active {
		return nil, errQuizClosed
	}
	// Checked before grading so a repeat does not spend quota.
	done, err := h.store.HasSubmitted(rec.ID, u.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, fmt.Errorf("quiz %d: %w", rec.ID, store.ErrAlreadySubmitted)
	}
	ctx := h.withQuota(context.WithoutCancel(r.Context()), u)
	sub, err := h.grader.Grade(ctx, quiz, answers, rec.GradingConfig())
	if err != nil {
		return nil, err
	}
	sub.QuizID = rec.ID
	sub.StudentID = u.ID
	sub.StartedAt = startedAt
	if err := h.store.SaveSubmission(sub); err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}
	return sub, nil
}
