package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventmesa/regsvc/internal/application"
	"github.com/eventmesa/regsvc/internal/domain"
	"github.com/go-chi/chi/v5"
)

const sessionCookieName = "reg_session"

type contextKey string

const identityKey contextKey = "identity"

type Handler struct {
	service *application.RegistrationService
}

func NewRouter(service *application.RegistrationService) http.Handler {
	h := &Handler{service: service}
	r := chi.NewRouter()

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/signup", h.handleSignup)
		api.Post("/auth/login", h.handleLogin)
		api.With(h.requireAuth).Post("/auth/logout", h.handleLogout)
		api.With(h.requireAuth).Get("/auth/whoami", h.handleWhoAmI)

		api.With(h.requireAuth).Get("/registration/profile-form", h.handleGetProfileForm)
		api.With(h.requireAuth).Post("/registration/profile-form/answers", h.handleStoreProfileAnswers)
		api.With(h.requireAuth).Get("/registration/confirmation-form", h.handleGetConfirmationForm)
		api.With(h.requireAuth).Post("/registration/confirmation-form/answers", h.handleStoreConfirmationAnswers)

		api.With(h.requireStaff).Get("/admin/questions", h.handleListQuestions)
		api.With(h.requireStaff).Post("/admin/questions", h.handleCreateQuestion)
		api.With(h.requireStaff).Put("/admin/questions/{id}", h.handleUpdateQuestion)
		api.With(h.requireStaff).Delete("/admin/questions/{id}", h.handleDeleteQuestion)
		api.With(h.requireStaff).Get("/admin/settings", h.handleGetSettings)
		api.With(h.requireStaff).Put("/admin/settings", h.handleUpdateSettings)
		api.With(h.requireStaff).Post("/admin/admit", h.handleAdmit)
		api.With(h.requireStaff).Get("/admin/applicants", h.handleListApplicants)
		api.With(h.requireStaff).Get("/admin/audit", h.handleListAuditLogs)
	})

	return r
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, err := h.service.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// When set, a long-lived API token is issued instead of a session.
	TokenName string `json:"token_name"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if strings.TrimSpace(req.TokenName) != "" {
		ttl := 90 * 24 * time.Hour
		u, token, err := h.service.LoginWithAPIToken(r.Context(), req.Email, req.Password, req.TokenName, &ttl)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Token: token, User: u})
		return
	}

	u, token, err := h.service.LoginWithSession(r.Context(), req.Email, req.Password, 12*time.Hour)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: u})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		_ = h.service.LogoutSession(r.Context(), c.Value)
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	writeJSON(w, http.StatusOK, identity.User)
}

func (h *Handler) handleGetProfileForm(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	form, err := h.service.GetProfileForm(r.Context(), identity.User)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *Handler) handleGetConfirmationForm(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	form, err := h.service.GetConfirmationForm(r.Context(), identity.User)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

type storeAnswersRequest struct {
	Answers []domain.RawAnswer `json:"answers"`
}

func (h *Handler) handleStoreProfileAnswers(w http.ResponseWriter, r *http.Request) {
	var req storeAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	identity, _ := identityFromContext(r.Context())
	if err := h.service.StoreProfileAnswers(r.Context(), identity.User, req.Answers); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleStoreConfirmationAnswers(w http.ResponseWriter, r *http.Request) {
	var req storeAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	identity, _ := identityFromContext(r.Context())
	if err := h.service.StoreConfirmationAnswers(r.Context(), identity.User, req.Answers); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	kind := domain.FormKind(r.URL.Query().Get("form"))
	if kind == "" {
		kind = domain.FormKindProfile
	}
	questions, err := h.service.ListQuestions(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	created, err := h.service.CreateQuestion(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeAudit(r.Context(), "question.create", "question", created.ID)
	writeJSON(w, http.StatusOK, created)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	q.ID = chi.URLParam(r, "id")
	updated, err := h.service.UpdateQuestion(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeAudit(r.Context(), "question.update", "question", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteQuestion(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeAudit(r.Context(), "question.delete", "question", id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	updated, err := h.service.UpdateSettings(r.Context(), settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeAudit(r.Context(), "settings.update", "settings", "1")
	writeJSON(w, http.StatusOK, updated)
}

type admitRequest struct {
	UserIDs []uint `json:"user_ids"`
}

func (h *Handler) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.service.Admit(r.Context(), req.UserIDs); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeAudit(r.Context(), "admission.admit", "user", joinIDs(req.UserIDs))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleListApplicants(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	users, err := h.service.ListApplicants(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListAuditLogs(r.Context(), 500)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticateRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (h *Handler) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticateRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !h.service.IsStaff(identity) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func (h *Handler) authenticateRequest(r *http.Request) (domain.Identity, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[7:])
		identity, err := h.service.AuthenticateBearerToken(r.Context(), token)
		if err == nil {
			return identity, true
		}
	}

	c, err := r.Cookie(sessionCookieName)
	if err == nil && strings.TrimSpace(c.Value) != "" {
		identity, authErr := h.service.AuthenticateSession(r.Context(), c.Value)
		if authErr == nil {
			return identity, true
		}
	}

	return domain.Identity{}, false
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	value := ctx.Value(identityKey)
	if value == nil {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   false,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// writeServiceError maps workflow errors onto the response. Errors meant for
// the applicant keep their message and a 4xx status; everything else is an
// opaque 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if !domain.IsUserFacing(err) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusBadRequest
	var notFound *domain.QuestionNotFoundError
	var notAdmitted *domain.NotAdmittedError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &notAdmitted):
		status = http.StatusForbidden
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "error": message})
}

func (h *Handler) writeAudit(ctx context.Context, action, targetType, targetID string) {
	identity, ok := identityFromContext(ctx)
	if !ok {
		h.service.WriteAudit(ctx, nil, action, targetType, targetID, "")
		return
	}
	h.service.WriteAudit(ctx, &identity.User.ID, action, targetType, targetID, "")
}

func joinIDs(ids []uint) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ",")
}
