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

const documentCols = `id, name, file_type, file_size, url, created_by, created_at`

type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

func scanDocument(s interface{ Scan(dest ...any) error }, d *model.Document) error {
	return s.Scan(&d.ID, &d.Name, &d.FileType, &d.FileSize, &d.URL, &d.CreatedBy, &d.CreatedAt)
}

func (r *DocumentRepository) Create(ctx context.Context, d *model.Document) error {
	defer logger.DeferLogDuration("doc.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO documents (id, name, file_type, file_size, url, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.Name, d.FileType, d.FileSize, d.URL, d.CreatedBy, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("docRepo.Create: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	defer logger.DeferLogDuration("doc.GetByID", time.Now())()
	d := &model.Document{}
	row := r.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM documents WHERE id = $1`, id)
	if err := scanDocument(row, d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("docRepo.GetByID: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]model.Document, error) {
	defer logger.DeferLogDuration("doc.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("docRepo.List query: %w", err)
	}
	defer rows.Close()
	docs := make([]model.Document, 0, limit)
	for rows.Next() {
		var d model.Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, fmt.Errorf("docRepo.List scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docRepo.List rows: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) Rename(ctx context.Context, id, name string) error {
	defer logger.DeferLogDuration("doc.Rename", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("docRepo.Rename: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("doc.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("docRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
