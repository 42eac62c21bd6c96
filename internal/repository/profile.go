package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/rbac"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileCols = `id, user_id, full_name, role, COALESCE(avatar_url,''), created_at`

// ProfileRepository хранит профили с ролями. Реализует rbac.ProfileStore:
// отсутствующий профиль — rbac.ErrNoProfile, а не ErrNotFound,
// чтобы Resolver отличал «роли нет» от ошибки хранилища.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func scanProfile(s interface{ Scan(dest ...any) error }, p *model.Profile) error {
	return s.Scan(&p.ID, &p.UserID, &p.FullName, &p.Role, &p.AvatarURL, &p.CreatedAt)
}

func (r *ProfileRepository) Create(ctx context.Context, p *model.Profile) error {
	defer logger.DeferLogDuration("profile.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (id, user_id, full_name, role, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.UserID, p.FullName, p.Role, p.AvatarURL, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("profileRepo.Create: %w", err)
	}
	return nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByUserID", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = $1`, userID)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.ErrNoProfile
		}
		return nil, fmt.Errorf("profileRepo.GetByUserID: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) ListAll(ctx context.Context, limit int) ([]model.Profile, error) {
	defer logger.DeferLogDuration("profile.ListAll", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileCols+` FROM profiles ORDER BY full_name LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("profileRepo.ListAll: %w", err)
	}
	defer rows.Close()
	profiles := make([]model.Profile, 0, limit)
	for rows.Next() {
		var p model.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, fmt.Errorf("profileRepo.ListAll scan: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profileRepo.ListAll rows: %w", err)
	}
	return profiles, nil
}

// ListByRole возвращает профили с указанной ролью (списки сотрудников, стажёров).
func (r *ProfileRepository) ListByRole(ctx context.Context, role model.Role, limit int) ([]model.Profile, error) {
	defer logger.DeferLogDuration("profile.ListByRole", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE role = $1 ORDER BY full_name LIMIT $2`, role, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("profileRepo.ListByRole: %w", err)
	}
	defer rows.Close()
	profiles := make([]model.Profile, 0, limit)
	for rows.Next() {
		var p model.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, fmt.Errorf("profileRepo.ListByRole scan: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profileRepo.ListByRole rows: %w", err)
	}
	return profiles, nil
}

func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID, fullName, avatarURL string) error {
	defer logger.DeferLogDuration("profile.UpdateProfile", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE profiles SET full_name = $1, avatar_url = $2 WHERE user_id = $3`,
		fullName, avatarURL, userID,
	)
	if err != nil {
		return fmt.Errorf("profileRepo.UpdateProfile: %w", err)
	}
	return nil
}

// SetRole меняет роль пользователя (только администратор через API).
func (r *ProfileRepository) SetRole(ctx context.Context, userID string, role model.Role) error {
	defer logger.DeferLogDuration("profile.SetRole", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE profiles SET role = $1 WHERE user_id = $2`, role, userID,
	)
	if err != nil {
		return fmt.Errorf("profileRepo.SetRole: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
