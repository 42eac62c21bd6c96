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

const leadCols = `id, name, email, COALESCE(phone,''), COALESCE(company,''), status, COALESCE(source,''), created_at`

type LeadRepository struct {
	pool *pgxpool.Pool
}

func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

func scanLead(s interface{ Scan(dest ...any) error }, l *model.Lead) error {
	return s.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Status, &l.Source, &l.CreatedAt)
}

func (r *LeadRepository) Create(ctx context.Context, l *model.Lead) error {
	defer logger.DeferLogDuration("lead.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO leads (id, name, email, phone, company, status, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.Name, l.Email, l.Phone, l.Company, l.Status, l.Source, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("leadRepo.Create: %w", err)
	}
	return nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	defer logger.DeferLogDuration("lead.GetByID", time.Now())()
	l := &model.Lead{}
	row := r.pool.QueryRow(ctx, `SELECT `+leadCols+` FROM leads WHERE id = $1`, id)
	if err := scanLead(row, l); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leadRepo.GetByID: %w", err)
	}
	return l, nil
}

// List отдаёт лиды, опционально отфильтрованные по статусу воронки.
func (r *LeadRepository) List(ctx context.Context, status string, limit, offset int) ([]model.Lead, error) {
	defer logger.DeferLogDuration("lead.List", time.Now())()
	sql := `SELECT ` + leadCols + ` FROM leads`
	args := []interface{}{}
	if status != "" {
		sql += ` WHERE status = $1`
		args = append(args, status)
	}
	args = append(args, limit, offset)
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("leadRepo.List query: %w", err)
	}
	defer rows.Close()
	leads := make([]model.Lead, 0, limit)
	for rows.Next() {
		var l model.Lead
		if err := scanLead(rows, &l); err != nil {
			return nil, fmt.Errorf("leadRepo.List scan: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leadRepo.List rows: %w", err)
	}
	return leads, nil
}

func (r *LeadRepository) Update(ctx context.Context, l *model.Lead) error {
	defer logger.DeferLogDuration("lead.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET name = $1, email = $2, phone = $3, company = $4, status = $5, source = $6 WHERE id = $7`,
		l.Name, l.Email, l.Phone, l.Company, l.Status, l.Source, l.ID,
	)
	if err != nil {
		return fmt.Errorf("leadRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("lead.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("leadRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
