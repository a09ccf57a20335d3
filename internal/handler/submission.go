package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizmark/internal/grading"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/store"
)

type answerRequest struct {
	QuestionIndex    int    `json:"question_index" validate:"gte=0"`
	Selected         []int  `json:"selected" validate:"omitempty,dive,gte=0"`
	Text             string `json:"text" validate:"max=20000"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
	FocusLost        int    `json:"focus_lost" validate:"gte=0"`
}

type submitRequest struct {
	Answers   []answerRequest `json:"answers" validate:"dive"`
	StartedAt *time.Time      `json:"started_at"`
}

type overrideRequest struct {
	Score    json.Number `json:"score" validate:"required"`
	Feedback string      `json:"feedback" validate:"max=5000"`
}

type submissionView struct {
	*model.Submission
	Percentage    float64         `json:"percentage"`
	PendingReview []int           `json:"pending_review"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
}

func newSubmissionView(sub *model.Submission) submissionView {
	pending := sub.PendingReview()
	if pending == nil {
		pending = []int{}
	}
	return submissionView{Submission: sub, Percentage: sub.Percentage(), PendingReview: pending}
}

type reviewItem struct {
	UID           string    `json:"uid"`
	QuizID        int64     `json:"quiz_id"`
	QuizTitle     string    `json:"quiz_title"`
	StudentID     int64     `json:"student_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
	PendingReview []int     `json:"pending_review"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, quiz, err := h.loadQuiz(r, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	answers := make([]model.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = model.Answer{
			QuestionIndex:    a.QuestionIndex,
			Selected:         a.Selected,
			Text:             a.Text,
			TimeSpentSeconds: a.TimeSpentSeconds,
			FocusLost:        a.FocusLost,
		}
	}

	sub, err := h.gradeAndSave(r, u, rec, quiz, answers, req.StartedAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSubmissionView(sub))
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	_, _, sub, err := h.loadSubmission(u, chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := newSubmissionView(sub)
	if u.CanAuthor() {
		if a, err := h.store.GetAnalysis(sub.UID); err == nil && a != "" {
			view.Analysis = json.RawMessage(a)
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	_, _, sub, err := h.loadSubmission(u, chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid index", errBadRequest))
		return
	}
	var req overrideRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	score, err := model.ParsePoints(req.Score.String())
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: score %q", errBadRequest, req.Score))
		return
	}

	if err := grading.ApplyOverride(sub, index, score, req.Feedback, time.Now()); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.UpdateSubmission(sub); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("grade overridden", "submission", sub.UID, "question", index, "score", score.String(), "by", u.Username)
	writeJSON(w, http.StatusOK, newSubmissionView(sub))
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, quiz, sub, err := h.loadSubmission(u, chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := h.withQuota(r.Context(), u)
	if err := h.grader.Retry(ctx, quiz, sub, rec.GradingConfig()); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.UpdateSubmission(sub); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionView(sub))
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "analysis is not configured"})
		return
	}
	u := model.UserFromContext(r.Context())
	rec, quiz, sub, err := h.loadSubmission(u, chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.analyzer.AnalyzeSubmission(h.withQuota(r.Context(), u), quiz, sub, rec.Language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.SetAnalysis(sub.UID, string(b)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	subs, err := h.store.ListPendingReview()
	if err != nil {
		writeError(w, r, err)
		return
	}
	quizzes := make(map[int64]*model.QuizRecord)
	items := []reviewItem{}
	for _, sub := range subs {
		rec, ok := quizzes[sub.QuizID]
		if !ok {
			if rec, err = h.store.GetQuiz(sub.QuizID); err != nil {
				writeError(w, r, err)
				return
			}
			quizzes[sub.QuizID] = rec
		}
		if !visible(u, rec) {
			continue
		}
		items = append(items, reviewItem{
			UID:           sub.UID,
			QuizID:        sub.QuizID,
			QuizTitle:     rec.Title,
			StudentID:     sub.StudentID,
			SubmittedAt:   sub.SubmittedAt,
			PendingReview: sub.PendingReview(),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// loadSubmission fetches a submission with its quiz. Students only see
// their own submissions; authors see those of quizzes visible to them.
func (h *Handler) loadSubmission(u *model.User, uid string) (*model.QuizRecord, *model.Quiz, *model.Submission, error) {
	sub, err := h.store.GetSubmission(uid)
	if err != nil {
		return nil, nil, nil, err
	}
	if !u.CanAuthor() && sub.StudentID != u.ID {
		return nil, nil, nil, fmt.Errorf("submission %s: %w", uid, store.ErrNotFound)
	}
	rec, quiz, err := h.quizByID(u, sub.QuizID)
	if err != nil {
		return nil, nil, nil, err
	}
	return rec, quiz, sub, nil
}
