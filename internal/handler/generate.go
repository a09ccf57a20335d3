package handler

import (
	"errors"
	"net/http"

	"github.com/pavelanni/quizmark/internal/assist"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
)

type generateRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Content      string `json:"content" validate:"required"`
	NumChoice    int    `json:"num_choice" validate:"gte=0,lte=30"`
	NumOpen      int    `json:"num_open" validate:"gte=0,lte=30"`
	Difficulty   string `json:"difficulty" validate:"required"`
	Instructions string `json:"instructions" validate:"max=2000"`
	Language     string `json:"language" validate:"required,oneof=fr en"`
}

type generateResponse struct {
	Markdown string      `json:"markdown"`
	Quiz     *model.Quiz `json:"quiz,omitempty"`
	Warnings []issueView `json:"warnings,omitempty"`
	Error    string      `json:"error,omitempty"`
	Issues   []issueView `json:"issues,omitempty"`
}

// handleGenerate drafts a quiz. A draft that does not load is still
// returned, with its diagnostics, so the author can fix it.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "generation is not configured"})
		return
	}
	u := model.UserFromContext(r.Context())
	var req generateRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	diff, err := prompts.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, r, errors.Join(errBadRequest, err))
		return
	}

	out, err := h.generator.Generate(h.withQuota(r.Context(), u), assist.GenerateRequest{
		Title:        req.Title,
		Content:      req.Content,
		NumChoice:    req.NumChoice,
		NumOpen:      req.NumOpen,
		Difficulty:   diff,
		Instructions: req.Instructions,
		Language:     model.Language(req.Language),
	})
	if err != nil {
		if out == nil || !isQuizError(err) {
			writeError(w, r, err)
			return
		}
		status, body := errorResponse(r, err)
		writeJSON(w, status, generateResponse{Markdown: out.Markdown, Error: body.Error, Issues: body.Issues})
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Markdown: out.Markdown,
		Quiz:     out.Quiz,
		Warnings: issueViews(r.Context(), out.Warnings),
	})
}

func isQuizError(err error) bool {
	var serr quizmd.StructuralErrors
	var verr *quizmd.ValidationError
	return errors.As(err, &serr) || errors.As(err, &verr)
}
