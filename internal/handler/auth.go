package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/service"
	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	authSvc *service.AuthService
}

func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.authSvc.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRateLimitExceeded):
			writeError(w, http.StatusTooManyRequests, "Слишком много попыток входа. Попробуйте позже.")
		case errors.Is(err, service.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "Неверный формат email")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Неверный email или пароль")
		case errors.Is(err, service.ErrUserDisabled):
			writeError(w, http.StatusForbidden, "Пользователь отключён и не может войти")
		default:
			logger.Errorf("login error email=%s device_id=%s: %v", req.Email, req.DeviceID, err)
			writeError(w, http.StatusInternalServerError, "Ошибка входа")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Register создаёт пользователя с профилем и ролью. Маршрут закрыт
// RequirePermission(settings, create) — доступен только администратору.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.authSvc.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "Неверный формат email")
		case errors.Is(err, service.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "Пароль слишком короткий (минимум 8 символов)")
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "Пользователь с таким email уже существует")
		default:
			logger.Errorf("register error email=%s: %v", req.Email, err)
			writeError(w, http.StatusInternalServerError, "Не удалось создать пользователя")
		}
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := middleware.GetSessionID(r.Context())
	if userID == "" || sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.authSvc.ChangePassword(r.Context(), userID, sessionID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "Пароль слишком короткий (минимум 8 символов)")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Неверный текущий пароль")
		default:
			writeError(w, http.StatusInternalServerError, "Не удалось сменить пароль")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.authSvc.ListSessions(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Ошибка загрузки сессий")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// Logout отзывает текущую сессию (по id из подписи запроса).
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := middleware.GetSessionID(r.Context())
	if userID == "" || sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ok, err := h.authSvc.LogoutSession(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Ошибка выхода")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Сессия не найдена")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LogoutSessionByID отзывает одну из сессий пользователя (выход с другого устройства).
func (h *AuthHandler) LogoutSessionByID(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id required")
		return
	}
	ok, err := h.authSvc.LogoutSession(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Ошибка выхода")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Сессия не найдена")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) LogoutAllSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if _, err := h.authSvc.LogoutAllSessions(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "Ошибка выхода")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
