package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/quizmark/internal/assist"
	"github.com/pavelanni/quizmark/internal/grading"
	appI18n "github.com/pavelanni/quizmark/internal/i18n"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/quizmd"
	"github.com/pavelanni/quizmark/internal/store"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string      `json:"error"`
	Issues []issueView `json:"issues,omitempty"`
}

// issueView is a diagnostic with its message in the request language.
type issueView struct {
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message"`
}

func structuralViews(ctx context.Context, errs quizmd.StructuralErrors) []issueView {
	out := make([]issueView, len(errs))
	for i, e := range errs {
		out[i] = issueView{
			Line:    e.Line,
			Code:    string(e.Code),
			Detail:  e.Detail,
			Message: appI18n.Diagnostic(ctx, e.Line, string(e.Code), e.Detail, e.Message()),
		}
	}
	return out
}

func issueViews(ctx context.Context, issues []quizmd.Issue) []issueView {
	out := make([]issueView, len(issues))
	for i, is := range issues {
		out[i] = issueView{
			Line:    is.Line,
			Code:    string(is.Code),
			Detail:  is.Detail,
			Message: appI18n.Diagnostic(ctx, is.Line, string(is.Code), is.Detail, is.Message()),
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// errBadRequest marks client errors found while decoding a request.
var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into dst and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

var (
	// errQuizClosed rejects answers to an inactive quiz.
	errQuizClosed = errors.New("quiz is closed")
	// errQuizLocked rejects new questions for a quiz that has submissions:
	// stored answers refer to questions by position.
	errQuizLocked = errors.New("quiz has submissions")
)

// errorResponse maps an error to its status code and body. Quiz
// diagnostics are sent as a localized list.
func errorResponse(r *http.Request, err error) (int, errorBody) {
	ctx := r.Context()

	var serr quizmd.StructuralErrors
	var verr *quizmd.ValidationError
	var cerr *model.ConfigError
	var fields validator.ValidationErrors

	switch {
	case errors.As(err, &serr):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid quiz", Issues: structuralViews(ctx, serr)}
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid quiz", Issues: issueViews(ctx, verr.Issues)}
	case errors.As(err, &cerr):
		return http.StatusBadRequest, errorBody{Error: cerr.Error()}
	case errors.As(err, &fields):
		return http.StatusBadRequest, errorBody{Error: fields.Error()}
	case errors.Is(err, errBadRequest),
		errors.Is(err, grading.ErrInvalidAnswer),
		errors.Is(err, grading.ErrScoreOutOfRange),
		errors.Is(err, assist.ErrInvalidRequest):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, errQuizClosed):
		return http.StatusConflict, errorBody{Error: err.Error()}
	case errors.Is(err, store.ErrAlreadySubmitted):
		return http.StatusConflict, errorBody{Error: appI18n.T(ctx, "conflict.already_submitted")}
	case errors.Is(err, errQuizLocked):
		return http.StatusConflict, errorBody{Error: appI18n.T(ctx, "conflict.quiz_locked")}
	case errors.Is(err, grading.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorBody{Error: appI18n.T(ctx, "reason.quota")}
	case errors.Is(err, assist.ErrMalformedAnalysis):
		return http.StatusBadGateway, errorBody{Error: err.Error()}
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(r, err)
	writeJSON(w, status, body)
}

// renderError is writeError for pages.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(r, err)
	http.Error(w, body.Error, status)
}

func intParam(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return v, nil
}
