package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionCols = `id, kind, amount, COALESCE(description,''), COALESCE(category,''), COALESCE(project_id,''), created_by, occurred_at, created_at`

type FinanceRepository struct {
	pool *pgxpool.Pool
}

func NewFinanceRepository(pool *pgxpool.Pool) *FinanceRepository {
	return &FinanceRepository{pool: pool}
}

func scanTransaction(s interface{ Scan(dest ...any) error }, t *model.Transaction) error {
	return s.Scan(&t.ID, &t.Kind, &t.Amount, &t.Description, &t.Category, &t.ProjectID, &t.CreatedBy, &t.OccurredAt, &t.CreatedAt)
}

func (r *FinanceRepository) Create(ctx context.Context, t *model.Transaction) error {
	defer logger.DeferLogDuration("finance.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions (id, kind, amount, description, category, project_id, created_by, occurred_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, $9)`,
		t.ID, t.Kind, t.Amount, t.Description, t.Category, t.ProjectID, t.CreatedBy, t.OccurredAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("financeRepo.Create: %w", err)
	}
	return nil
}

func (r *FinanceRepository) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	defer logger.DeferLogDuration("finance.GetByID", time.Now())()
	t := &model.Transaction{}
	row := r.pool.QueryRow(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = $1`, id)
	if err := scanTransaction(row, t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("financeRepo.GetByID: %w", err)
	}
	return t, nil
}

// ListRange — операции за интервал [from, to), новые первыми.
func (r *FinanceRepository) ListRange(ctx context.Context, from, to time.Time, limit int) ([]model.Transaction, error) {
	defer logger.DeferLogDuration("finance.ListRange", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionCols+` FROM transactions
		 WHERE occurred_at >= $1 AND occurred_at < $2
		 ORDER BY occurred_at DESC
		 LIMIT $3`, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("financeRepo.ListRange query: %w", err)
	}
	defer rows.Close()
	txs := make([]model.Transaction, 0, limit)
	for rows.Next() {
		var t model.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("financeRepo.ListRange scan: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("financeRepo.ListRange rows: %w", err)
	}
	return txs, nil
}

// Summary — доход, расход и баланс за интервал одним запросом.
func (r *FinanceRepository) Summary(ctx context.Context, from, to time.Time) (*model.FinanceSummary, error) {
	defer logger.DeferLogDuration("finance.Summary", time.Now())()
	s := &model.FinanceSummary{}
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount) FILTER (WHERE kind = 'income'), 0),
		        COALESCE(SUM(amount) FILTER (WHERE kind = 'expense'), 0)
		 FROM transactions
		 WHERE occurred_at >= $1 AND occurred_at < $2`, from, to,
	).Scan(&s.Income, &s.Expense)
	if err != nil {
		return nil, fmt.Errorf("financeRepo.Summary: %w", err)
	}
	s.Balance = s.Income - s.Expense
	return s, nil
}

func (r *FinanceRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("finance.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("financeRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
