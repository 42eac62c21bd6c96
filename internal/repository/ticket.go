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

const ticketCols = `id, title, COALESCE(description,''), status, priority, created_by, COALESCE(assigned_to,''), created_at, updated_at`

type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func scanTicket(s interface{ Scan(dest ...any) error }, t *model.Ticket) error {
	return s.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.CreatedBy, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TicketRepository) Create(ctx context.Context, t *model.Ticket) error {
	defer logger.DeferLogDuration("ticket.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tickets (id, title, description, status, priority, created_by, assigned_to, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8, $8)`,
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.CreatedBy, t.AssignedTo, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ticketRepo.Create: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	defer logger.DeferLogDuration("ticket.GetByID", time.Now())()
	t := &model.Ticket{}
	row := r.pool.QueryRow(ctx, `SELECT `+ticketCols+` FROM tickets WHERE id = $1`, id)
	if err := scanTicket(row, t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ticketRepo.GetByID: %w", err)
	}
	return t, nil
}

func (r *TicketRepository) List(ctx context.Context, limit, offset int) ([]model.Ticket, error) {
	defer logger.DeferLogDuration("ticket.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketCols+` FROM tickets ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ticketRepo.List query: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows, limit, "List")
}

// ListByCreator — тикеты конкретного автора (клиент видит только свои).
func (r *TicketRepository) ListByCreator(ctx context.Context, userID string, limit int) ([]model.Ticket, error) {
	defer logger.DeferLogDuration("ticket.ListByCreator", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketCols+` FROM tickets WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ticketRepo.ListByCreator query: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows, limit, "ListByCreator")
}

func collectTickets(rows pgx.Rows, limit int, op string) ([]model.Ticket, error) {
	tickets := make([]model.Ticket, 0, limit)
	for rows.Next() {
		var t model.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, fmt.Errorf("ticketRepo.%s scan: %w", op, err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ticketRepo.%s rows: %w", op, err)
	}
	return tickets, nil
}

func (r *TicketRepository) Update(ctx context.Context, t *model.Ticket) error {
	defer logger.DeferLogDuration("ticket.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET title = $1, description = $2, status = $3, priority = $4,
		        assigned_to = NULLIF($5,''), updated_at = NOW()
		 WHERE id = $6`,
		t.Title, t.Description, t.Status, t.Priority, t.AssignedTo, t.ID,
	)
	if err != nil {
		return fmt.Errorf("ticketRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("ticket.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ticketRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
