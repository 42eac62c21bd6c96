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

const clientCols = `id, name, email, COALESCE(phone,''), COALESCE(company,''), status, created_at`

type ClientRepository struct {
	pool *pgxpool.Pool
}

func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

func scanClient(s interface{ Scan(dest ...any) error }, c *model.Client) error {
	return s.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Status, &c.CreatedAt)
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) error {
	defer logger.DeferLogDuration("client.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO clients (id, name, email, phone, company, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Status, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("clientRepo.Create: %w", err)
	}
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*model.Client, error) {
	defer logger.DeferLogDuration("client.GetByID", time.Now())()
	c := &model.Client{}
	row := r.pool.QueryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE id = $1`, id)
	if err := scanClient(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("clientRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *ClientRepository) List(ctx context.Context, limit, offset int) ([]model.Client, error) {
	defer logger.DeferLogDuration("client.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+clientCols+` FROM clients ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("clientRepo.List query: %w", err)
	}
	defer rows.Close()
	clients := make([]model.Client, 0, limit)
	for rows.Next() {
		var c model.Client
		if err := scanClient(rows, &c); err != nil {
			return nil, fmt.Errorf("clientRepo.List scan: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clientRepo.List rows: %w", err)
	}
	return clients, nil
}

func (r *ClientRepository) Update(ctx context.Context, c *model.Client) error {
	defer logger.DeferLogDuration("client.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE clients SET name = $1, email = $2, phone = $3, company = $4, status = $5 WHERE id = $6`,
		c.Name, c.Email, c.Phone, c.Company, c.Status, c.ID,
	)
	if err != nil {
		return fmt.Errorf("clientRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("client.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clientRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
