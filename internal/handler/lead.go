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

// Статусы воронки лидов.
var leadStatuses = map[string]bool{
	"new": true, "contacted": true, "qualified": true,
	"proposal": true, "negotiation": true, "won": true, "lost": true,
}

type LeadHandler struct {
	leadRepo *repository.LeadRepository
}

func NewLeadHandler(leadRepo *repository.LeadRepository) *LeadHandler {
	return &LeadHandler{leadRepo: leadRepo}
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !leadStatuses[status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	leads, err := h.leadRepo.List(r.Context(), status, queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.leadRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get lead")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var l model.Lead
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if l.Status == "" {
		l.Status = "new"
	}
	if !leadStatuses[l.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	l.ID = uuid.New().String()
	l.CreatedAt = time.Now().UTC()
	if err := h.leadRepo.Create(r.Context(), &l); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.leadRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	var l model.Lead
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	l.ID = id
	l.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(l.Name) == "" {
		l.Name = existing.Name
	}
	if l.Status == "" {
		l.Status = existing.Status
	}
	if !leadStatuses[l.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if err := h.leadRepo.Update(r.Context(), &l); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update lead")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.leadRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
