package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
	"github.com/pavelanni/quizmark/internal/store"
)

type previewRequest struct {
	Markdown string `json:"markdown" validate:"required"`
}

type quizRequest struct {
	Markdown string `json:"markdown" validate:"required"`
	Severity string `json:"severity" validate:"required"`
	Tone     string `json:"tone" validate:"required"`
	Language string `json:"language" validate:"required"`
	Shuffle  bool   `json:"shuffle_options"`
	Active   *bool  `json:"active"`
}

// config accepts the legacy severity names. Nothing is defaulted.
func (q quizRequest) config() (model.GradingConfig, error) {
	sev, err := model.ParseSeverity(q.Severity)
	if err != nil {
		return model.GradingConfig{}, err
	}
	cfg := model.GradingConfig{Severity: sev, Tone: model.Tone(q.Tone), Language: model.Language(q.Language)}
	return cfg, cfg.Validate()
}

type quizResponse struct {
	ID       int64             `json:"id,omitempty"`
	Record   *model.QuizRecord `json:"record,omitempty"`
	Quiz     *model.Quiz       `json:"quiz"`
	Warnings []issueView       `json:"warnings"`
}

// studentQuiz is what students get: no markdown, no correctness flags and
// no expected answers.
type studentQuiz struct {
	ID          int64                   `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	TotalPoints model.Points            `json:"total_points"`
	Questions   []model.StudentQuestion `json:"questions"`
}

type quizSummary struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Language  model.Language `json:"language"`
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	quiz, warnings, err := quizmd.Load(req.Markdown)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: quiz, Warnings: issueViews(r.Context(), warnings)})
}

func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	var req quizRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := req.config()
	if err != nil {
		writeError(w, r, err)
		return
	}
	quiz, warnings, err := quizmd.Load(req.Markdown)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := model.QuizRecord{
		TenantID:  u.TenantID,
		Title:     quiz.Title,
		Markdown:  req.Markdown,
		Severity:  cfg.Severity,
		Tone:      cfg.Tone,
		Language:  cfg.Language,
		Shuffle:   req.Shuffle,
		Active:    req.Active == nil || *req.Active,
		CreatedBy: u.ID,
	}
	id, err := h.store.CreateQuiz(rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec.ID = id
	slog.Info("quiz created", "id", id, "title", quiz.Title, "questions", len(quiz.Questions), "by", u.Username)
	writeJSON(w, http.StatusCreated, quizResponse{ID: id, Record: &rec, Quiz: quiz, Warnings: issueViews(r.Context(), warnings)})
}

func (h *Handler) handleUpdateQuiz(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, _, err := h.loadQuiz(r, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req quizRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := req.config()
	if err != nil {
		writeError(w, r, err)
		return
	}
	quiz, warnings, err := quizmd.Load(req.Markdown)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Markdown != rec.Markdown {
		n, err := h.store.CountSubmissions(rec.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if n > 0 {
			writeError(w, r, fmt.Errorf("quiz %d: %d submissions: %w", rec.ID, n, errQuizLocked))
			return
		}
	}

	rec.Title = quiz.Title
	rec.Markdown = req.Markdown
	rec.Severity, rec.Tone, rec.Language = cfg.Severity, cfg.Tone, cfg.Language
	rec.Shuffle = req.Shuffle
	if req.Active != nil {
		rec.Active = *req.Active
	}
	if err := h.store.UpdateQuiz(*rec); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{ID: rec.ID, Record: rec, Quiz: quiz, Warnings: issueViews(r.Context(), warnings)})
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	quizzes, err := h.listVisibleQuizzes(u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]quizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		if !q.Active && !u.CanAuthor() {
			continue
		}
		out = append(out, quizSummary{ID: q.ID, Title: q.Title, Language: q.Language, Active: q.Active, CreatedAt: q.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, quiz, err := h.loadQuiz(r, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u.CanAuthor() {
		warnings, _ := quizmd.Validate(quiz)
		writeJSON(w, http.StatusOK, quizResponse{ID: rec.ID, Record: rec, Quiz: quiz, Warnings: issueViews(r.Context(), warnings)})
		return
	}
	if !rec.Active {
		writeError(w, r, errQuizClosed)
		return
	}
	writeJSON(w, http.StatusOK, studentQuiz{
		ID:          rec.ID,
		Title:       quiz.Title,
		Description: quiz.Description,
		TotalPoints: quiz.TotalPoints(),
		Questions:   quiz.ForStudent(rec.Shuffle, shuffleSeed(u.ID, rec.ID)),
	})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	u := model.UserFromContext(r.Context())
	rec, _, err := h.loadQuiz(r, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.store.ExportResults(rec.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.QuizExport{ExportedAt: time.Now().UTC(), Results: results})
}

// loadQuiz fetches the quiz named in the URL and parses its Markdown. A
// quiz from another tenant is reported as missing.
func (h *Handler) loadQuiz(r *http.Request, u *model.User) (*model.QuizRecord, *model.Quiz, error) {
	id, err := intParam(r, "quizID")
	if err != nil {
		return nil, nil, err
	}
	return h.quizByID(u, id)
}

func (h *Handler) quizByID(u *model.User, id int64) (*model.QuizRecord, *model.Quiz, error) {
	rec, err := h.store.GetQuiz(id)
	if err != nil {
		return nil, nil, err
	}
	if !visible(u, rec) {
		return nil, nil, fmt.Errorf("quiz %d: %w", id, store.ErrNotFound)
	}
	quiz, err := quizmd.Parse(rec.Markdown)
	if err != nil {
		return nil, nil, fmt.Errorf("stored quiz %d no longer parses: %v", id, err)
	}
	return rec, quiz, nil
}

func (h *Handler) listVisibleQuizzes(u *model.User) ([]model.QuizRecord, error) {
	if u.Role == model.UserRoleAdmin {
		return h.store.ListQuizzes(nil)
	}
	all, err := h.store.ListQuizzes(u.TenantID)
	if err != nil {
		return nil, err
	}
	var out []model.QuizRecord
	for i := range all {
		if visible(u, &all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}
