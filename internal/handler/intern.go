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

type InternHandler struct {
	internRepo *repository.InternRepository
}

func NewInternHandler(internRepo *repository.InternRepository) *InternHandler {
	return &InternHandler{internRepo: internRepo}
}

func (h *InternHandler) List(w http.ResponseWriter, r *http.Request) {
	interns, err := h.internRepo.List(r.Context(), queryInt(r, "limit", 200), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list interns failed")
		return
	}
	writeJSON(w, http.StatusOK, interns)
}

func (h *InternHandler) Get(w http.ResponseWriter, r *http.Request) {
	i, err := h.internRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "intern not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get intern")
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *InternHandler) Create(w http.ResponseWriter, r *http.Request) {
	var i model.Intern
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	i.Name = strings.TrimSpace(i.Name)
	if i.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if i.Status == "" {
		i.Status = "active"
	}
	i.ID = uuid.New().String()
	i.CreatedAt = time.Now().UTC()
	if err := h.internRepo.Create(r.Context(), &i); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create intern")
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

func (h *InternHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.internRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "intern not found")
		return
	}
	var i model.Intern
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	i.ID = id
	i.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(i.Name) == "" {
		i.Name = existing.Name
	}
	if i.Status == "" {
		i.Status = existing.Status
	}
	if err := h.internRepo.Update(r.Context(), &i); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update intern")
		return
	}
	writeJSON(w, http.StatusOK, i)
}

func (h *InternHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.internRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "intern not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete intern")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
