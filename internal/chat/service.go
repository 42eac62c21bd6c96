// Package chat реализует слой синхронизации переписки: списки контактов
// и групп со счётчиками непрочитанных, открытие переписки с отметкой
// прочтения, отправку с публикацией в шину событий и состояние сессии
// пользователя поверх этих операций.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/model"
	"github.com/google/uuid"
)

// Лимит истории одной переписки за запрос.
const historyLimit = 500

var (
	ErrEmptyContent = errors.New("empty message content")
	ErrNoRecipient  = errors.New("message has no recipient")
	ErrNotMember    = errors.New("not a group member")
	ErrEmptyName    = errors.New("empty group name")
)

type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	DirectHistory(ctx context.Context, userID, peerID string, limit int) ([]model.Message, error)
	GroupHistory(ctx context.Context, groupID string, limit int) ([]model.Message, error)
	MarkDirectRead(ctx context.Context, userID, peerID string) error
	ContactsOverview(ctx context.Context, userID string) ([]model.Contact, error)
}

type GroupStore interface {
	Create(ctx context.Context, g *model.Group) error
	AddMember(ctx context.Context, m *model.GroupMember) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	UpdateMemberLastRead(ctx context.Context, groupID, userID string, t time.Time) error
	ListForUser(ctx context.Context, userID string) ([]model.GroupSummary, error)
}

// Publisher — публикация вставленных сообщений в шину событий.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *model.Message) error
}

type Service struct {
	messages MessageStore
	groups   GroupStore
	bus      Publisher
}

func NewService(messages MessageStore, groups GroupStore, bus Publisher) *Service {
	return &Service{messages: messages, groups: groups, bus: bus}
}

// ListContacts — контакты с метаданными последнего сообщения и счётчиками.
func (s *Service) ListContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	return s.messages.ContactsOverview(ctx, userID)
}

// ListGroups — группы пользователя с теми же метаданными.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]model.GroupSummary, error) {
	return s.groups.ListForUser(ctx, userID)
}

// OpenDirect загружает историю личной переписки и помечает входящие
// прочитанными. Сначала выборка, затем отметка: история отдаётся даже
// если отметка не удалась (счётчик догонит следующее открытие).
func (s *Service) OpenDirect(ctx context.Context, userID, peerID string) ([]model.Message, error) {
	history, err := s.messages.DirectHistory(ctx, userID, peerID, historyLimit)
	if err != nil {
		return nil, err
	}
	if err := s.messages.MarkDirectRead(ctx, userID, peerID); err != nil {
		logger.Errorf("chat: mark direct read %s<-%s: %v", userID, peerID, err)
	}
	return history, nil
}

// OpenGroup загружает историю группы и сдвигает отметку прочтения участника.
// Не участник группы не видит её историю.
func (s *Service) OpenGroup(ctx context.Context, userID, groupID string) ([]model.Message, error) {
	ok, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	history, err := s.messages.GroupHistory(ctx, groupID, historyLimit)
	if err != nil {
		return nil, err
	}
	if err := s.groups.UpdateMemberLastRead(ctx, groupID, userID, time.Now()); err != nil {
		logger.Errorf("chat: mark group read %s in %s: %v", userID, groupID, err)
	}
	return history, nil
}

// SendDirect вставляет личное сообщение и публикует его в шину.
// Ошибка публикации не откатывает вставку: сообщение уже в БД,
// получатель увидит его при следующей загрузке.
func (s *Service) SendDirect(ctx context.Context, senderID, receiverID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if receiverID == "" {
		return nil, ErrNoRecipient
	}
	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: &receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, m)
	return m, nil
}

// SendGroup вставляет сообщение группы. Отправитель обязан быть участником.
func (s *Service) SendGroup(ctx context.Context, senderID, groupID, content string) (*model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if groupID == "" {
		return nil, ErrNoRecipient
	}
	ok, err := s.groups.IsMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	m := &model.Message{
		ID:        uuid.New().String(),
		SenderID:  senderID,
		GroupID:   &groupID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, err
	}
	s.publish(ctx, m)
	return m, nil
}

// MarkRead помечает переписку прочитанной без загрузки истории
// (входящее сообщение пришло в уже открытую переписку).
func (s *Service) MarkRead(ctx context.Context, userID string, conv Conversation) error {
	if conv.GroupID != "" {
		return s.groups.UpdateMemberLastRead(ctx, conv.GroupID, userID, time.Now())
	}
	if conv.PeerID != "" {
		return s.messages.MarkDirectRead(ctx, userID, conv.PeerID)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, m *model.Message) {
	if err := s.bus.PublishMessage(ctx, m); err != nil {
		logger.Errorf("chat: publish %s: %v", m.ID, err)
	}
}

// CreateGroup создаёт группу и добавляет участников. Создатель добавляется
// администратором; его добавление обязано пройти. Остальные участники
// добавляются по одному: сбой на части из них не отменяет группу,
// не добавленные возвращаются отдельным списком.
func (s *Service) CreateGroup(ctx context.Context, creatorID, name, description string, memberIDs []string) (*model.Group, []string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, ErrEmptyName
	}
	g := &model.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedBy:   creatorID,
		CreatedAt:   time.Now(),
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, nil, fmt.Errorf("chat.CreateGroup: %w", err)
	}
	creator := &model.GroupMember{GroupID: g.ID, UserID: creatorID, Role: "admin", JoinedAt: time.Now()}
	if err := s.groups.AddMember(ctx, creator); err != nil {
		return nil, nil, fmt.Errorf("chat.CreateGroup add creator: %w", err)
	}

	var failed []string
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		m := &model.GroupMember{GroupID: g.ID, UserID: id, Role: "member", JoinedAt: time.Now()}
		if err := s.groups.AddMember(ctx, m); err != nil {
			logger.Errorf("chat: add member %s to %s: %v", id, g.ID, err)
			failed = append(failed, id)
		}
	}
	return g, failed, nil
}
