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

var ticketStatuses = map[string]bool{
	"open": true, "in_progress": true, "pending": true, "resolved": true, "closed": true,
}

type TicketHandler struct {
	ticketRepo *repository.TicketRepository
}

func NewTicketHandler(ticketRepo *repository.TicketRepository) *TicketHandler {
	return &TicketHandler{ticketRepo: ticketRepo}
}

// List возвращает все тикеты; клиентская роль видит только свои
// (у клиента по матрице есть create/read на tickets, но чужие обращения
// ему не показываются).
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	if middleware.GetRole(r.Context()) == model.RoleClient {
		tickets, err := h.ticketRepo.ListByCreator(r.Context(), middleware.GetUserID(r.Context()), 200)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list tickets failed")
			return
		}
		writeJSON(w, http.StatusOK, tickets)
		return
	}
	tickets, err := h.ticketRepo.List(r.Context(), queryInt(r, "limit", 200), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list tickets failed")
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.ticketRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get ticket")
		return
	}
	if middleware.GetRole(r.Context()) == model.RoleClient && t.CreatedBy != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t model.Ticket
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
		t.Status = "open"
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	now := time.Now().UTC()
	t.ID = uuid.New().String()
	t.CreatedBy = middleware.GetUserID(r.Context())
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := h.ticketRepo.Create(r.Context(), &t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create ticket")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.ticketRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	var t model.Ticket
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
	if !ticketStatuses[t.Status] {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if t.Priority == "" {
		t.Priority = existing.Priority
	}
	if err := h.ticketRepo.Update(r.Context(), &t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update ticket")
		return
	}
	t.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, t)
}

func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ticketRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ticket not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
