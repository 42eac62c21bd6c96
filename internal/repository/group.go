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

const groupCols = `id, name, COALESCE(description,''), COALESCE(avatar_url,''), created_by, created_at`

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func scanGroup(s interface{ Scan(dest ...any) error }, g *model.Group) error {
	return s.Scan(&g.ID, &g.Name, &g.Description, &g.AvatarURL, &g.CreatedBy, &g.CreatedAt)
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO groups (id, name, description, avatar_url, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.Name, g.Description, g.AvatarURL, g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Create: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	row := r.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM groups WHERE id = $1`, id)
	if err := scanGroup(row, g); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}
	return g, nil
}

func (r *GroupRepository) UpdateGroup(ctx context.Context, id, name, description, avatarURL string) error {
	defer logger.DeferLogDuration("group.UpdateGroup", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE groups SET name = $1, description = $2, avatar_url = $3 WHERE id = $4`,
		name, description, avatarURL, id,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.UpdateGroup: %w", err)
	}
	return nil
}

func (r *GroupRepository) AddMember(ctx context.Context, m *model.GroupMember) error {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at, last_read_at)
		 VALUES ($1, $2, $3, $4, $4) ON CONFLICT DO NOTHING`,
		m.GroupID, m.UserID, m.Role, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.AddMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.RemoveMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	defer logger.DeferLogDuration("group.GetMemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetMemberIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("groupRepo.GetMemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.GetMemberIDs rows: %w", err)
	}
	return ids, nil
}

func (r *GroupRepository) GetMembers(ctx context.Context, groupID string) ([]model.GroupMemberInfo, error) {
	defer logger.DeferLogDuration("group.GetMembers", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.full_name, p.role, COALESCE(p.avatar_url,''), p.created_at,
		        gm.role, gm.joined_at
		 FROM profiles p
		 JOIN group_members gm ON gm.user_id = p.user_id
		 WHERE gm.group_id = $1
		 ORDER BY gm.joined_at`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetMembers query: %w", err)
	}
	defer rows.Close()

	members := make([]model.GroupMemberInfo, 0, 8)
	for rows.Next() {
		var m model.GroupMemberInfo
		if err := rows.Scan(&m.Profile.ID, &m.Profile.UserID, &m.Profile.FullName, &m.Profile.Role, &m.Profile.AvatarURL, &m.Profile.CreatedAt,
			&m.GroupRole, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("groupRepo.GetMembers scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.GetMembers rows: %w", err)
	}
	return members, nil
}

func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.IsMember", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("groupRepo.IsMember: %w", err)
	}
	return exists, nil
}

// UpdateMemberLastRead сдвигает отметку прочтения участника группы.
func (r *GroupRepository) UpdateMemberLastRead(ctx context.Context, groupID, userID string, t time.Time) error {
	defer logger.DeferLogDuration("group.UpdateMemberLastRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE group_members SET last_read_at = $1 WHERE group_id = $2 AND user_id = $3`,
		t, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.UpdateMemberLastRead: %w", err)
	}
	return nil
}

// CountUnread — сообщения группы после last_read_at участника, кроме его собственных.
func (r *GroupRepository) CountUnread(ctx context.Context, groupID, userID string) (int, error) {
	defer logger.DeferLogDuration("group.CountUnread", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN group_members gm ON gm.group_id = m.group_id AND gm.user_id = $2
		 WHERE m.group_id = $1 AND m.sender_id != $2 AND m.created_at > gm.last_read_at`,
		groupID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("groupRepo.CountUnread: %w", err)
	}
	return count, nil
}

// ListForUser — группы пользователя с метаданными последнего сообщения
// и счётчиком непрочитанных, один запрос на весь список.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]model.GroupSummary, error) {
	defer logger.DeferLogDuration("group.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, COALESCE(g.description,''), COALESCE(g.avatar_url,''), g.created_by, g.created_at,
		        COALESCE(last.content, ''), last.created_at,
		        COALESCE(unread.cnt, 0)
		 FROM groups g
		 JOIN group_members me ON me.group_id = g.id AND me.user_id = $1
		 LEFT JOIN LATERAL (
		     SELECT content, created_at FROM messages m
		     WHERE m.group_id = g.id
		     ORDER BY m.created_at DESC
		     LIMIT 1
		 ) last ON true
		 LEFT JOIN LATERAL (
		     SELECT COUNT(*) AS cnt FROM messages m
		     WHERE m.group_id = g.id AND m.sender_id != $1 AND m.created_at > me.last_read_at
		 ) unread ON true
		 ORDER BY last.created_at DESC NULLS LAST, g.name`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	groups := make([]model.GroupSummary, 0, 16)
	for rows.Next() {
		var s model.GroupSummary
		if err := rows.Scan(&s.Group.ID, &s.Group.Name, &s.Group.Description, &s.Group.AvatarURL, &s.Group.CreatedBy, &s.Group.CreatedAt,
			&s.LastMessage, &s.LastMessageTime, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("groupRepo.ListForUser scan: %w", err)
		}
		groups = append(groups, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListForUser rows: %w", err)
	}
	return groups, nil
}
