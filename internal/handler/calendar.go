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

type CalendarHandler struct {
	calRepo *repository.CalendarRepository
}

func NewCalendarHandler(calRepo *repository.CalendarRepository) *CalendarHandler {
	return &CalendarHandler{calRepo: calRepo}
}

// List возвращает события пользователя за период (по умолчанию текущий месяц).
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := queryTime(r, "from", monthStart)
	to := queryTime(r, "to", monthStart.AddDate(0, 1, 0))
	events, err := h.calRepo.ListRange(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list events failed")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var e model.CalendarEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	if e.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "starts_at required")
		return
	}
	if e.EndsAt.IsZero() || e.EndsAt.Before(e.StartsAt) {
		writeError(w, http.StatusBadRequest, "ends_at must be after starts_at")
		return
	}
	e.ID = uuid.New().String()
	e.UserID = middleware.GetUserID(r.Context())
	e.CreatedAt = time.Now().UTC()
	if err := h.calRepo.Create(r.Context(), &e); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.calRepo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	// Чужое событие редактировать нельзя (календарь персональный).
	if existing.UserID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var e model.CalendarEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	e.ID = id
	e.UserID = existing.UserID
	e.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(e.Title) == "" {
		e.Title = existing.Title
	}
	if e.StartsAt.IsZero() {
		e.StartsAt = existing.StartsAt
	}
	if e.EndsAt.IsZero() {
		e.EndsAt = existing.EndsAt
	}
	if e.EndsAt.Before(e.StartsAt) {
		writeError(w, http.StatusBadRequest, "ends_at must be after starts_at")
		return
	}
	if err := h.calRepo.Update(r.Context(), &e); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.calRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if existing.UserID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.calRepo.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
