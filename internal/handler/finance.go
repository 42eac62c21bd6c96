package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type FinanceHandler struct {
	financeRepo *repository.FinanceRepository
}

func NewFinanceHandler(financeRepo *repository.FinanceRepository) *FinanceHandler {
	return &FinanceHandler{financeRepo: financeRepo}
}

func financeRange(r *http.Request) (time.Time, time.Time) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return queryTime(r, "from", monthStart), queryTime(r, "to", monthStart.AddDate(0, 1, 0))
}

func (h *FinanceHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to := financeRange(r)
	list, err := h.financeRepo.ListRange(r.Context(), from, to, queryInt(r, "limit", 500))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list transactions failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Summary — суммы доходов/расходов и баланс за период.
func (h *FinanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	from, to := financeRange(r)
	summary, err := h.financeRepo.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "summary failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *FinanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t model.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if t.Kind != "income" && t.Kind != "expense" {
		writeError(w, http.StatusBadRequest, "kind must be income or expense")
		return
	}
	if t.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	t.ID = uuid.New().String()
	t.CreatedBy = middleware.GetUserID(r.Context())
	t.CreatedAt = time.Now().UTC()
	if err := h.financeRepo.Create(r.Context(), &t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *FinanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.financeRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
