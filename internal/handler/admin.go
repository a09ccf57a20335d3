package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizmark/internal/model"
)

type createUserRequest struct {
	Username    string `json:"username" validate:"required,min=2,max=64"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Password    string `json:"password" validate:"required,min=8"`
	Role        string `json:"role" validate:"required,oneof=student teacher admin"`
	TenantID    *int64 `json:"tenant_id"`
}

type createTenantRequest struct {
	Name                   string `json:"name" validate:"required,max=128"`
	Slug                   string `json:"slug" validate:"required,max=64"`
	MonthlyAICorrections   int    `json:"monthly_ai_corrections" validate:"gte=0"`
	MonthlyQuizGenerations int    `json:"monthly_quiz_generations" validate:"gte=0"`
	MonthlyClassAnalyses   int    `json:"monthly_class_analyses" validate:"gte=0"`
}

type gradingDefaultsRequest struct {
	Severity string `json:"severity" validate:"required"`
	Tone     string `json:"tone" validate:"required"`
	Language string `json:"language" validate:"required"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		TenantID:     req.TenantID,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         model.UserRole(req.Role),
		Active:       true,
	})
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: "failed to create user: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, err := h.store.ToggleUserActive(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.store.CreateTenant(model.Tenant{
		Name:                   req.Name,
		Slug:                   req.Slug,
		MonthlyAICorrections:   req.MonthlyAICorrections,
		MonthlyQuizGenerations: req.MonthlyQuizGenerations,
		MonthlyClassAnalyses:   req.MonthlyClassAnalyses,
	})
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: "failed to create tenant: " + err.Error()})
		return
	}
	slog.Info("tenant created", "id", id, "slug", req.Slug)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handlePromptStatus lists the prompt files served from the built-in
// defaults because no custom version was found.
func (h *Handler) handlePromptStatus(w http.ResponseWriter, _ *http.Request) {
	fallbacks := h.prompts.Fallbacks()
	if fallbacks == nil {
		fallbacks = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fallbacks": fallbacks})
}

func (h *Handler) handleGetGradingDefaults(w http.ResponseWriter, r *http.Request) {
	cfg, ok, err := h.store.DefaultGradingConfig()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"configured": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": true, "config": cfg})
}

func (h *Handler) handleSetGradingDefaults(w http.ResponseWriter, r *http.Request) {
	var req gradingDefaultsRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sev, err := model.ParseSeverity(req.Severity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg := model.GradingConfig{Severity: sev, Tone: model.Tone(req.Tone), Language: model.Language(req.Language)}
	if err := h.store.SetDefaultGradingConfig(cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": true, "config": cfg})
}

func (h *Handler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []model.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}
