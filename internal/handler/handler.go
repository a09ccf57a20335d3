// Package handler is the HTTP surface: the JSON API used by authoring
// tools, plus the few server-rendered pages students see.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/quizmark/internal/assist"
	"github.com/pavelanni/quizmark/internal/grading"
	appI18n "github.com/pavelanni/quizmark/internal/i18n"
	"github.com/pavelanni/quizmark/internal/llm/prompts"
	"github.com/pavelanni/quizmark/internal/metrics"
	"github.com/pavelanni/quizmark/internal/model"
	"github.com/pavelanni/quizmark/internal/store"
)

// Deps are the collaborators of a Handler. Generator and Analyzer may be
// nil, in which case their endpoints answer 503.
type Deps struct {
	Store     *store.Store
	Grader    *grading.Grader
	Generator *assist.Generator
	Analyzer  *assist.Analyzer
	Prompts   *prompts.Catalog
	Metrics   *metrics.Metrics
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	grader    *grading.Grader
	generator *assist.Generator
	analyzer  *assist.Analyzer
	prompts   *prompts.Catalog
	metrics   *metrics.Metrics
	config    model.ServerConfig
	validate  *validator.Validate
}

// New creates a new Handler.
func New(d Deps, cfg model.ServerConfig) *Handler {
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	return &Handler{
		store:     d.Store,
		grader:    d.Grader,
		generator: d.Generator,
		analyzer:  d.Analyzer,
		prompts:   d.Prompts,
		metrics:   d.Metrics,
		config:    cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Router builds the complete HTTP handler, mounted under the base path.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(appI18n.Middleware())

	if h.config.BasePath == "" {
		h.Routes(r)
		return r
	}
	r.Route(h.config.BasePath, h.Routes)
	r.Get(h.config.BasePath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, h.config.BasePath+"/", http.StatusMovedPermanently)
	})
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/", h.handleIndex)
			r.Get("/quizzes/{quizID}", h.handleQuizPage)
			r.Post("/quizzes/{quizID}", h.handleQuizForm)
			r.Get("/submissions/{uid}", h.handleResultPage)

			r.Route("/api", func(r chi.Router) {
				r.Get("/quizzes", h.handleListQuizzes)
				r.Get("/quizzes/{quizID}", h.handleGetQuiz)
				r.Post("/quizzes/{quizID}/submissions", h.handleSubmit)
				r.Get("/submissions/{uid}", h.handleGetSubmission)

				r.Group(func(r chi.Router) {
					r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
					r.Post("/quizzes/preview", h.handlePreview)
					r.Post("/quizzes", h.handleCreateQuiz)
					r.Put("/quizzes/{quizID}", h.handleUpdateQuiz)
					r.Post("/quizzes/generate", h.handleGenerate)
					r.Get("/quizzes/{quizID}/results", h.handleResults)
					r.Get("/review", h.handleReviewQueue)
					r.Post("/submissions/{uid}/answers/{index}/override", h.handleOverride)
					r.Post("/submissions/{uid}/retry", h.handleRetry)
					r.Post("/submissions/{uid}/analysis", h.handleAnalysis)
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(requireRole(model.UserRoleAdmin))
					r.Get("/prompts", h.handlePromptStatus)
					r.Get("/users", h.handleListUsers)
					r.Post("/users", h.handleCreateUser)
					r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
					r.Get("/tenants", h.handleListTenants)
					r.Post("/tenants", h.handleCreateTenant)
					r.Get("/settings/grading", h.handleGetGradingDefaults)
					r.Put("/settings/grading", h.handleSetGradingDefaults)
				})
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// path prefixes p with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	return h.config.BasePath + "/"
}

// withQuota scopes the monthly quota of the user's tenant to ctx. Users
// without a tenant fall back to the default tenant, if one is configured.
func (h *Handler) withQuota(ctx context.Context, u *model.User) context.Context {
	tenant := u.TenantID
	if tenant == nil && h.config.DefaultTenant != 0 {
		id := h.config.DefaultTenant
		tenant = &id
	}
	if tenant == nil {
		return ctx
	}
	return grading.WithQuota(ctx, h.store.Quota(tenant))
}

// visible reports whether u may see a quiz. Admins see everything; other
// users see the quizzes of their own tenant.
func visible(u *model.User, rec *model.QuizRecord) bool {
	if u.Role == model.UserRoleAdmin {
		return true
	}
	if u.TenantID == nil || rec.TenantID == nil {
		return u.TenantID == nil && rec.TenantID == nil
	}
	return *u.TenantID == *rec.TenantID
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
