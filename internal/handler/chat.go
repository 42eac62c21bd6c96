package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/crmnexus/internal/chat"
	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/repository"
	"github.com/go-chi/chi/v5"
)

// ChatHandler — REST-часть чата: списки диалогов, история, управление
// группами. Живая доставка и счётчики идут через WebSocket.
type ChatHandler struct {
	chatSvc   *chat.Service
	groupRepo *repository.GroupRepository
}

func NewChatHandler(chatSvc *chat.Service, groupRepo *repository.GroupRepository) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc, groupRepo: groupRepo}
}

// GetContacts возвращает собеседников с последним сообщением и счётчиком
// непрочитанных, отсортированных по времени последнего сообщения.
func (h *ChatHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	contacts, err := h.chatSvc.ListContacts(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// GetGroups возвращает группы пользователя с метаданными последнего сообщения.
func (h *ChatHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groups, err := h.chatSvc.ListGroups(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load groups")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// GetDirectHistory открывает личный диалог: отдаёт историю и помечает
// входящие прочитанными (история первична, счётчик вторичен).
func (h *ChatHandler) GetDirectHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")
	if peerID == "" {
		writeError(w, http.StatusBadRequest, "peer id required")
		return
	}
	messages, err := h.chatSvc.OpenDirect(r.Context(), userID, peerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// GetGroupHistory открывает групповой диалог (только для участников).
func (h *ChatHandler) GetGroupHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	messages, err := h.chatSvc.OpenGroup(r.Context(), userID, groupID)
	if err != nil {
		if errors.Is(err, chat.ErrNotMember) {
			writeError(w, http.StatusForbidden, "not a group member")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"member_ids"`
}

type CreateGroupResponse struct {
	Group         *model.Group `json:"group"`
	FailedMembers []string     `json:"failed_members,omitempty"`
}

// CreateGroup создаёт группу. Сбой добавления отдельного участника не
// откатывает группу: неудавшиеся id возвращаются в failed_members.
func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	group, failed, err := h.chatSvc.CreateGroup(r.Context(), userID, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyName) {
			writeError(w, http.StatusBadRequest, "group name required")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, CreateGroupResponse{Group: group, FailedMembers: failed})
}

func (h *ChatHandler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	ok, err := h.groupRepo.IsMember(r.Context(), groupID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a group member")
		return
	}
	members, err := h.groupRepo.GetMembers(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// AddMember добавляет участника. Добавлять может любой участник группы
// (в группах нет закрытых приглашений).
func (h *ChatHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	ok, err := h.groupRepo.IsMember(r.Context(), groupID, userID)
	if err != nil || !ok {
		writeError(w, http.StatusForbidden, "not a group member")
		return
	}
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	m := &model.GroupMember{
		GroupID: groupID, UserID: req.UserID, Role: "member", JoinedAt: time.Now().UTC(),
	}
	if err := h.groupRepo.AddMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveMember удаляет участника: себя — любой, другого — только админ группы.
func (h *ChatHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	targetID := chi.URLParam(r, "userId")
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	if targetID != userID {
		members, err := h.groupRepo.GetMembers(r.Context(), groupID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check membership")
			return
		}
		isAdmin := false
		for _, m := range members {
			if m.Profile.UserID == userID && m.GroupRole == "admin" {
				isAdmin = true
				break
			}
		}
		if !isAdmin {
			writeError(w, http.StatusForbidden, "only group admin can remove members")
			return
		}
	}
	if err := h.groupRepo.RemoveMember(r.Context(), groupID, targetID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

func (h *ChatHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "id")
	ok, err := h.groupRepo.IsMember(r.Context(), groupID, userID)
	if err != nil || !ok {
		writeError(w, http.StatusForbidden, "not a group member")
		return
	}
	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	group, err := h.groupRepo.GetByID(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	name := group.Name
	if strings.TrimSpace(req.Name) != "" {
		name = strings.TrimSpace(req.Name)
	}
	description := group.Description
	if req.Description != "" {
		description = req.Description
	}
	avatarURL := group.AvatarURL
	if req.AvatarURL != "" {
		avatarURL = req.AvatarURL
	}
	if err := h.groupRepo.UpdateGroup(r.Context(), groupID, name, description, avatarURL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update group")
		return
	}
	group.Name = name
	group.Description = description
	group.AvatarURL = avatarURL
	writeJSON(w, http.StatusOK, group)
}
