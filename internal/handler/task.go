package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var taskStatuses = map[string]bool{
	"todo": true, "in_progress": true, "in_review": true, "completed": true,
}

type TaskHandler struct {
	taskRepo *repository.TaskRepository
}

func NewTaskHandler(taskRepo *repository.TaskRepository) *TaskHandler {
	return &TaskHandler{taskRepo: taskRepo}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	// mine=1 — только задачи, назначенные текущему пользователю.
	if r.URL.Query().Get("mine") != "" {
		tasks, err := h.taskRepo.ListAssigned(r.Context(), middleware.GetUserID(r.Context()), 500)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list tasks failed")
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}
	tasks, err := h.taskRepo.List(r.Context(), queryInt(r, "limit", 200), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list tasks failed")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.taskRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	if t.Status == "" {
		t.Status = "todo"
	}
	if !taskStatuses[t.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	t.ID = uuid.New().String()
	t.CreatedBy = middleware.GetUserID(r.Context())
	t.CreatedAt = time.Now().UTC()
	if err := h.taskRepo.Create(r.Context(), &t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.taskRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	var t model.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	t.ID = id
	t.CreatedBy = existing.CreatedBy
	t.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(t.Title) == "" {
		t.Title = existing.Title
	}
	if t.Status == "" {
		t.Status = existing.Status
	}
	if !taskStatuses[t.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if t.Priority == "" {
		t.Priority = existing.Priority
	}
	if err := h.taskRepo.Update(r.Context(), &t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus — перенос задачи между колонками доски. Требует только
// права update, как и полное редактирование, но не затирает остальные поля.
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateTaskStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !taskStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if err := h.taskRepo.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.taskRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
