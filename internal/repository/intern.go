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

const internCols = `id, name, email, COALESCE(phone,''), COALESCE(university,''), COALESCE(department,''), start_date, end_date, status, created_at`

type InternRepository struct {
	pool *pgxpool.Pool
}

func NewInternRepository(pool *pgxpool.Pool) *InternRepository {
	return &InternRepository{pool: pool}
}

func scanIntern(s interface{ Scan(dest ...any) error }, i *model.Intern) error {
	return s.Scan(&i.ID, &i.Name, &i.Email, &i.Phone, &i.University, &i.Department, &i.StartDate, &i.EndDate, &i.Status, &i.CreatedAt)
}

func (r *InternRepository) Create(ctx context.Context, i *model.Intern) error {
	defer logger.DeferLogDuration("intern.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO interns (id, name, email, phone, university, department, start_date, end_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		i.ID, i.Name, i.Email, i.Phone, i.University, i.Department, i.StartDate, i.EndDate, i.Status, i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("internRepo.Create: %w", err)
	}
	return nil
}

func (r *InternRepository) GetByID(ctx context.Context, id string) (*model.Intern, error) {
	defer logger.DeferLogDuration("intern.GetByID", time.Now())()
	i := &model.Intern{}
	row := r.pool.QueryRow(ctx, `SELECT `+internCols+` FROM interns WHERE id = $1`, id)
	if err := scanIntern(row, i); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("internRepo.GetByID: %w", err)
	}
	return i, nil
}

func (r *InternRepository) List(ctx context.Context, limit, offset int) ([]model.Intern, error) {
	defer logger.DeferLogDuration("intern.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+internCols+` FROM interns ORDER BY start_date DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("internRepo.List query: %w", err)
	}
	defer rows.Close()
	interns := make([]model.Intern, 0, limit)
	for rows.Next() {
		var i model.Intern
		if err := scanIntern(rows, &i); err != nil {
			return nil, fmt.Errorf("internRepo.List scan: %w", err)
		}
		interns = append(interns, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("internRepo.List rows: %w", err)
	}
	return interns, nil
}

func (r *InternRepository) Update(ctx context.Context, i *model.Intern) error {
	defer logger.DeferLogDuration("intern.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE interns SET name = $1, email = $2, phone = $3, university = $4, department = $5,
		        start_date = $6, end_date = $7, status = $8
		 WHERE id = $9`,
		i.Name, i.Email, i.Phone, i.University, i.Department, i.StartDate, i.EndDate, i.Status, i.ID,
	)
	if err != nil {
		return fmt.Errorf("internRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InternRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("intern.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM interns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("internRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
