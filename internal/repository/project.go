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

const projectCols = `id, name, COALESCE(description,''), status, COALESCE(client_id,''), start_date, end_date, budget, created_at`

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func scanProject(s interface{ Scan(dest ...any) error }, p *model.Project) error {
	return s.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.ClientID, &p.StartDate, &p.EndDate, &p.Budget, &p.CreatedAt)
}

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	defer logger.DeferLogDuration("project.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects (id, name, description, status, client_id, start_date, end_date, budget, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5,''), $6, $7, $8, $9)`,
		p.ID, p.Name, p.Description, p.Status, p.ClientID, p.StartDate, p.EndDate, p.Budget, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Create: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	defer logger.DeferLogDuration("project.GetByID", time.Now())()
	p := &model.Project{}
	row := r.pool.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, id)
	if err := scanProject(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("projectRepo.GetByID: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]model.Project, error) {
	defer logger.DeferLogDuration("project.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+projectCols+` FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.List query: %w", err)
	}
	defer rows.Close()
	projects := make([]model.Project, 0, limit)
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, fmt.Errorf("projectRepo.List scan: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projectRepo.List rows: %w", err)
	}
	return projects, nil
}

// ListByClient — проекты конкретного клиента (портал клиента видит только свои).
func (r *ProjectRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]model.Project, error) {
	defer logger.DeferLogDuration("project.ListByClient", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+projectCols+` FROM projects WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2`,
		clientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("projectRepo.ListByClient query: %w", err)
	}
	defer rows.Close()
	projects := make([]model.Project, 0, limit)
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, fmt.Errorf("projectRepo.ListByClient scan: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("projectRepo.ListByClient rows: %w", err)
	}
	return projects, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	defer logger.DeferLogDuration("project.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE projects SET name = $1, description = $2, status = $3, client_id = NULLIF($4,''),
		        start_date = $5, end_date = $6, budget = $7
		 WHERE id = $8`,
		p.Name, p.Description, p.Status, p.ClientID, p.StartDate, p.EndDate, p.Budget, p.ID,
	)
	if err != nil {
		return fmt.Errorf("projectRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("project.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("projectRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
