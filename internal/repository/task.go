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

const taskCols = `id, title, COALESCE(description,''), status, priority, COALESCE(assigned_to,''), created_by, due_date, COALESCE(project_id,''), created_at`

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func scanTask(s interface{ Scan(dest ...any) error }, t *model.Task) error {
	return s.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.AssignedTo, &t.CreatedBy, &t.DueDate, &t.ProjectID, &t.CreatedAt)
}

func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	defer logger.DeferLogDuration("task.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, assigned_to, created_by, due_date, project_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, NULLIF($9,''), $10)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.AssignedTo, t.CreatedBy, t.DueDate, t.ProjectID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.Create: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	defer logger.DeferLogDuration("task.GetByID", time.Now())()
	t := &model.Task{}
	row := r.pool.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id)
	if err := scanTask(row, t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("taskRepo.GetByID: %w", err)
	}
	return t, nil
}

func (r *TaskRepository) List(ctx context.Context, limit, offset int) ([]model.Task, error) {
	defer logger.DeferLogDuration("task.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.List query: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows, limit, "List")
}

// ListAssigned — задачи, назначенные пользователю (доска «мои задачи»).
func (r *TaskRepository) ListAssigned(ctx context.Context, userID string, limit int) ([]model.Task, error) {
	defer logger.DeferLogDuration("task.ListAssigned", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE assigned_to = $1 ORDER BY due_date ASC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.ListAssigned query: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows, limit, "ListAssigned")
}

// ListByProject — задачи проекта.
func (r *TaskRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]model.Task, error) {
	defer logger.DeferLogDuration("task.ListByProject", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.ListByProject query: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows, limit, "ListByProject")
}

func collectTasks(rows pgx.Rows, limit int, op string) ([]model.Task, error) {
	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		var t model.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, fmt.Errorf("taskRepo.%s scan: %w", op, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskRepo.%s rows: %w", op, err)
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	defer logger.DeferLogDuration("task.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4,
		        assigned_to = NULLIF($5,''), due_date = $6, project_id = NULLIF($7,'')
		 WHERE id = $8`,
		t.Title, t.Description, t.Status, t.Priority, t.AssignedTo, t.DueDate, t.ProjectID, t.ID,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus — перенос задачи между колонками доски без полного Update.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id, status string) error {
	defer logger.DeferLogDuration("task.UpdateStatus", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE tasks SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("taskRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("task.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("taskRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
