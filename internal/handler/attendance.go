package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/repository"
	"github.com/google/uuid"
)

// Рабочий день начинается в 09:00 UTC; отметка в 09:00 и позже — опоздание.
const lateAfterHour = 9

type AttendanceHandler struct {
	attRepo *repository.AttendanceRepository
}

func NewAttendanceHandler(attRepo *repository.AttendanceRepository) *AttendanceHandler {
	return &AttendanceHandler{attRepo: attRepo}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CheckIn отмечает приход. Повторный check-in за день не перезаписывает
// первую отметку — возвращается существующая запись.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()
	status := "present"
	if now.Hour() >= lateAfterHour {
		status = "late"
	}
	a := &model.Attendance{
		ID: uuid.New().String(), UserID: userID,
		Date: dayOf(now), CheckIn: now, Status: status,
	}
	if err := h.attRepo.CheckIn(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "check-in failed")
		return
	}
	rec, err := h.attRepo.GetForDay(r.Context(), userID, dayOf(now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "check-in failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CheckOut проставляет время ухода в сегодняшней записи.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()
	if err := h.attRepo.CheckOut(r.Context(), userID, dayOf(now), now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no check-in today")
			return
		}
		writeError(w, http.StatusInternalServerError, "check-out failed")
		return
	}
	rec, err := h.attRepo.GetForDay(r.Context(), userID, dayOf(now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "check-out failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Me возвращает табель текущего пользователя за период (по умолчанию месяц).
func (h *AttendanceHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := queryTime(r, "from", monthStart)
	to := queryTime(r, "to", monthStart.AddDate(0, 1, 0))
	records, err := h.attRepo.ListRange(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list attendance failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Day — сводка всех отметившихся за день (для менеджера и администратора).
func (h *AttendanceHandler) Day(w http.ResponseWriter, r *http.Request) {
	date := dayOf(queryTime(r, "date", time.Now().UTC()))
	records, err := h.attRepo.ListForDay(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list attendance failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
