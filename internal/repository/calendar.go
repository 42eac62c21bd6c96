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

const eventCols = `id, title, COALESCE(description,''), starts_at, ends_at, all_day, user_id, created_at`

type CalendarRepository struct {
	pool *pgxpool.Pool
}

func NewCalendarRepository(pool *pgxpool.Pool) *CalendarRepository {
	return &CalendarRepository{pool: pool}
}

func scanEvent(s interface{ Scan(dest ...any) error }, e *model.CalendarEvent) error {
	return s.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.AllDay, &e.UserID, &e.CreatedAt)
}

func (r *CalendarRepository) Create(ctx context.Context, e *model.CalendarEvent) error {
	defer logger.DeferLogDuration("calendar.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calendar_events (id, title, description, starts_at, ends_at, all_day, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.AllDay, e.UserID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("calendarRepo.Create: %w", err)
	}
	return nil
}

func (r *CalendarRepository) GetByID(ctx context.Context, id string) (*model.CalendarEvent, error) {
	defer logger.DeferLogDuration("calendar.GetByID", time.Now())()
	e := &model.CalendarEvent{}
	row := r.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM calendar_events WHERE id = $1`, id)
	if err := scanEvent(row, e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("calendarRepo.GetByID: %w", err)
	}
	return e, nil
}

// ListRange — события пользователя, пересекающие интервал [from, to).
func (r *CalendarRepository) ListRange(ctx context.Context, userID string, from, to time.Time) ([]model.CalendarEvent, error) {
	defer logger.DeferLogDuration("calendar.ListRange", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventCols+` FROM calendar_events
		 WHERE user_id = $1 AND starts_at < $3 AND ends_at >= $2
		 ORDER BY starts_at ASC`, userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("calendarRepo.ListRange query: %w", err)
	}
	defer rows.Close()
	events := make([]model.CalendarEvent, 0, 32)
	for rows.Next() {
		var e model.CalendarEvent
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("calendarRepo.ListRange scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calendarRepo.ListRange rows: %w", err)
	}
	return events, nil
}

func (r *CalendarRepository) Update(ctx context.Context, e *model.CalendarEvent) error {
	defer logger.DeferLogDuration("calendar.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE calendar_events SET title = $1, description = $2, starts_at = $3, ends_at = $4, all_day = $5
		 WHERE id = $6`,
		e.Title, e.Description, e.StartsAt, e.EndsAt, e.AllDay, e.ID,
	)
	if err != nil {
		return fmt.Errorf("calendarRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CalendarRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("calendar.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("calendarRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
