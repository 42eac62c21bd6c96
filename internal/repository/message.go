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

const messageCols = `id, sender_id, receiver_id, group_id, content, read, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.Content, &m.Read, &m.CreatedAt)
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, group_id, content, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.GroupID, m.Content, m.Read, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Insert: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// DirectHistory — переписка двух пользователей в хронологическом порядке
// (обе стороны: a→b и b→a). Окно limit берётся с конца переписки (DESC),
// иначе в длинной переписке свежие сообщения никогда бы не загрузились.
func (r *MessageRepository) DirectHistory(ctx context.Context, userID, peerID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.DirectHistory", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE group_id IS NULL
		   AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		 ORDER BY created_at DESC
		 LIMIT $3`, userID, peerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.DirectHistory query: %w", err)
	}
	defer rows.Close()
	messages, err := collectMessages(rows, limit, "DirectHistory")
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// GroupHistory — сообщения группы в хронологическом порядке. Окно limit
// берётся с конца переписки, как в DirectHistory.
func (r *MessageRepository) GroupHistory(ctx context.Context, groupID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GroupHistory", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE group_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GroupHistory query: %w", err)
	}
	defer rows.Close()
	messages, err := collectMessages(rows, limit, "GroupHistory")
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// reverseMessages разворачивает выборку DESC в хронологический порядок.
func reverseMessages(messages []model.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func collectMessages(rows pgx.Rows, limit int, op string) ([]model.Message, error) {
	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.%s scan: %w", op, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.%s rows: %w", op, err)
	}
	return messages, nil
}

// LastDirect — последнее сообщение переписки (nil, nil если переписки нет).
func (r *MessageRepository) LastDirect(ctx context.Context, userID, peerID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.LastDirect", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE group_id IS NULL
		   AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		 ORDER BY created_at DESC
		 LIMIT 1`, userID, peerID,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgRepo.LastDirect: %w", err)
	}
	return m, nil
}

// LastGroup — последнее сообщение группы (nil, nil если сообщений нет).
func (r *MessageRepository) LastGroup(ctx context.Context, groupID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.LastGroup", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE group_id = $1 ORDER BY created_at DESC LIMIT 1`, groupID,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgRepo.LastGroup: %w", err)
	}
	return m, nil
}

// CountUnreadDirect — сколько непрочитанных сообщений от peerID адресовано userID.
func (r *MessageRepository) CountUnreadDirect(ctx context.Context, userID, peerID string) (int, error) {
	defer logger.DeferLogDuration("msg.CountUnreadDirect", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE sender_id = $2 AND receiver_id = $1 AND read = false`,
		userID, peerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.CountUnreadDirect: %w", err)
	}
	return count, nil
}

// MarkDirectRead помечает прочитанными все сообщения от peerID к userID.
// Read меняется только false→true.
func (r *MessageRepository) MarkDirectRead(ctx context.Context, userID, peerID string) error {
	defer logger.DeferLogDuration("msg.MarkDirectRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = true
		 WHERE sender_id = $2 AND receiver_id = $1 AND read = false`,
		userID, peerID,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.MarkDirectRead: %w", err)
	}
	return nil
}

// ContactsOverview — все профили кроме собственного с метаданными последнего
// сообщения и счётчиком непрочитанных. Один запрос вместо N+1 на каждый контакт.
func (r *MessageRepository) ContactsOverview(ctx context.Context, userID string) ([]model.Contact, error) {
	defer logger.DeferLogDuration("msg.ContactsOverview", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.user_id, p.full_name, p.role, COALESCE(p.avatar_url,''), p.created_at,
		        COALESCE(last.content, ''), last.created_at,
		        COALESCE(unread.cnt, 0),
		        COALESCE(u.is_online, false)
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 LEFT JOIN LATERAL (
		     SELECT content, created_at FROM messages m
		     WHERE m.group_id IS NULL
		       AND ((m.sender_id = $1 AND m.receiver_id = p.user_id)
		         OR (m.sender_id = p.user_id AND m.receiver_id = $1))
		     ORDER BY m.created_at DESC
		     LIMIT 1
		 ) last ON true
		 LEFT JOIN LATERAL (
		     SELECT COUNT(*) AS cnt FROM messages m
		     WHERE m.sender_id = p.user_id AND m.receiver_id = $1 AND m.read = false
		 ) unread ON true
		 WHERE p.user_id != $1
		 ORDER BY last.created_at DESC NULLS LAST, p.full_name`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ContactsOverview query: %w", err)
	}
	defer rows.Close()

	contacts := make([]model.Contact, 0, 32)
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.Profile.ID, &c.Profile.UserID, &c.Profile.FullName, &c.Profile.Role, &c.Profile.AvatarURL, &c.Profile.CreatedAt,
			&c.LastMessage, &c.LastMessageTime, &c.UnreadCount, &c.IsOnline); err != nil {
			return nil, fmt.Errorf("msgRepo.ContactsOverview scan: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ContactsOverview rows: %w", err)
	}
	return contacts, nil
}
