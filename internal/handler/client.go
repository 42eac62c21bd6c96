package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ClientHandler struct {
	clientRepo  *repository.ClientRepository
	projectRepo *repository.ProjectRepository
}

func NewClientHandler(clientRepo *repository.ClientRepository, projectRepo *repository.ProjectRepository) *ClientHandler {
	return &ClientHandler{clientRepo: clientRepo, projectRepo: projectRepo}
}

func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	clients, err := h.clientRepo.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list clients failed")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.clientRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get client")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetProjects возвращает проекты клиента.
func (h *ClientHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectRepo.ListByClient(r.Context(), chi.URLParam(r, "id"), 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list projects failed")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var c model.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if c.Status == "" {
		c.Status = "pending"
	}
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now().UTC()
	if err := h.clientRepo.Create(r.Context(), &c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create client")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.clientRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	var c model.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	c.ID = id
	c.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(c.Name) == "" {
		c.Name = existing.Name
	}
	if c.Status == "" {
		c.Status = existing.Status
	}
	if err := h.clientRepo.Update(r.Context(), &c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update client")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.clientRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
