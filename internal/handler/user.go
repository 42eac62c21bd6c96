package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/rbac"
	"github.com/crmnexus/internal/repository"
	"github.com/crmnexus/internal/service"
	"github.com/go-chi/chi/v5"
)

type UserHandler struct {
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	authSvc     *service.AuthService
}

func NewUserHandler(userRepo *repository.UserRepository, profileRepo *repository.ProfileRepository, authSvc *service.AuthService) *UserHandler {
	return &UserHandler{userRepo: userRepo, profileRepo: profileRepo, authSvc: authSvc}
}

// MeResponse — текущий пользователь с профилем и ролью.
type MeResponse struct {
	User    model.User     `json:"user"`
	Profile *model.Profile `json:"profile,omitempty"`
	Role    model.Role     `json:"role"`
}

// Me возвращает текущего пользователя. Профиля может не быть: тогда роль
// пустая и все проверки прав дают deny.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	user, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	resp := MeResponse{User: *user}
	profile, err := h.profileRepo.GetByUserID(r.Context(), userID)
	if err == nil {
		resp.Profile = profile
		resp.Role = profile.Role
	} else if !errors.Is(err, rbac.ErrNoProfile) {
		writeError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProfiles возвращает все профили (справочник сотрудников для чата и CRM).
func (h *UserHandler) GetProfiles(w http.ResponseWriter, r *http.Request) {
	role := model.Role(r.URL.Query().Get("role"))
	var (
		profiles []model.Profile
		err      error
	)
	if role != "" {
		profiles, err = h.profileRepo.ListByRole(r.Context(), role, 2000)
	} else {
		profiles, err = h.profileRepo.ListAll(r.Context(), 2000)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list profiles failed")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	profile, err := h.profileRepo.GetByUserID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type UpdateProfileRequest struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// UpdateProfile обновляет свой профиль (имя, аватар). Роль этим маршрутом
// не меняется.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	profile, err := h.profileRepo.GetByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	fullName := profile.FullName
	if strings.TrimSpace(req.FullName) != "" {
		fullName = strings.TrimSpace(req.FullName)
	}
	avatarURL := profile.AvatarURL
	if req.AvatarURL != "" {
		avatarURL = strings.TrimSpace(req.AvatarURL)
	}
	if err := h.profileRepo.UpdateProfile(r.Context(), userID, fullName, avatarURL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	profile.FullName = fullName
	profile.AvatarURL = avatarURL
	writeJSON(w, http.StatusOK, profile)
}

type SetRoleRequest struct {
	Role model.Role `json:"role"`
}

// SetRole меняет роль пользователя. Маршрут закрыт RequirePermission(settings, update):
// по матрице это доступно только администратору. После смены роли все сессии
// пользователя отзываются, чтобы старая роль не жила в открытых соединениях.
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	currentUserID := middleware.GetUserID(r.Context())
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	if id == currentUserID {
		writeError(w, http.StatusBadRequest, "нельзя сменить собственную роль")
		return
	}
	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if err := h.profileRepo.SetRole(r.Context(), id, req.Role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to set role")
		return
	}
	if _, err := h.authSvc.LogoutAllSessions(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "role updated, failed to revoke sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": string(req.Role)})
}

type SetUserDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// SetDisabled отключает или включает пользователя. Отключённый не может войти;
// при отключении все его сессии отзываются.
func (h *UserHandler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	currentUserID := middleware.GetUserID(r.Context())
	if id == currentUserID {
		writeError(w, http.StatusBadRequest, "нельзя отключить самого себя")
		return
	}
	if _, err := h.userRepo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	var req SetUserDisabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.userRepo.SetDisabled(r.Context(), id, req.Disabled); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	if req.Disabled {
		if _, err := h.authSvc.LogoutAllSessions(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "user disabled, failed to revoke sessions")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": req.Disabled})
}

// GetUsers возвращает всех пользователей (админская страница настроек).
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userRepo.ListAll(r.Context(), 2000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list users failed")
		return
	}
	writeJSON(w, http.StatusOK, users)
}
