package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/crmnexus/internal/model"
)

var (
	// ErrStaleFetch — выборка завершилась после переключения на другую
	// переписку. Результат отброшен, состояние сессии не изменилось.
	ErrStaleFetch = errors.New("stale fetch discarded")
	// ErrNoActiveConversation — отправка без открытой переписки.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// Conversation — ключ переписки: либо личная (PeerID), либо групповая (GroupID).
type Conversation struct {
	PeerID  string
	GroupID string
}

func DirectConversation(peerID string) Conversation { return Conversation{PeerID: peerID} }
func GroupConversation(groupID string) Conversation { return Conversation{GroupID: groupID} }

func (c Conversation) IsZero() bool { return c.PeerID == "" && c.GroupID == "" }

// Session — состояние переписки одного пользователя: активная переписка,
// её история, счётчики непрочитанных и id оптимистично отправленных
// сообщений для дедупликации эха из шины событий.
type Session struct {
	svc    *Service
	userID string

	mu       sync.Mutex
	active   Conversation
	fetchSeq uint64
	messages []model.Message
	pending  map[string]struct{}
	unread   map[Conversation]int
}

func NewSession(svc *Service, userID string) *Session {
	return &Session{
		svc:     svc,
		userID:  userID,
		pending: make(map[string]struct{}),
		unread:  make(map[Conversation]int),
	}
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) Active() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages — копия истории открытой переписки.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) UnreadCount(conv Conversation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conv]
}

// Open переключает активную переписку: загружает историю, сбрасывает
// счётчик непрочитанных и помечает входящие прочитанными (внутри Service).
// Если за время выборки переписку переключили ещё раз, результат
// отбрасывается и возвращается ErrStaleFetch — история пришла для
// уже неактуальной переписки.
func (s *Session) Open(ctx context.Context, conv Conversation) ([]model.Message, error) {
	if conv.IsZero() {
		return nil, ErrNoActiveConversation
	}
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.active = conv
	s.mu.Unlock()

	var history []model.Message
	var err error
	if conv.GroupID != "" {
		history, err = s.svc.OpenGroup(ctx, s.userID, conv.GroupID)
	} else {
		history, err = s.svc.OpenDirect(ctx, s.userID, conv.PeerID)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.fetchSeq {
		return nil, ErrStaleFetch
	}
	s.messages = history
	s.unread[conv] = 0
	return history, nil
}

// Send отправляет сообщение в активную переписку. История пополняется
// сразу после успешной вставки, id запоминается для дедупликации эха.
// Шина может доставить эхо ещё до возврата вставки (синхронная шина,
// либо Redis успел раньше): тогда история уже пополнена в HandleInserted
// и Send ничего не дописывает. При ошибке состояние сессии не меняется.
func (s *Session) Send(ctx context.Context, content string) (*model.Message, error) {
	s.mu.Lock()
	conv := s.active
	s.mu.Unlock()
	if conv.IsZero() {
		return nil, ErrNoActiveConversation
	}

	var m *model.Message
	var err error
	if conv.GroupID != "" {
		m, err = s.svc.SendGroup(ctx, s.userID, conv.GroupID, content)
	} else {
		m, err = s.svc.SendDirect(ctx, s.userID, conv.PeerID, content)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasMessage(m.ID) {
		// Эхо обогнало возврат вставки и уже в истории.
		return m, nil
	}
	if s.active == conv {
		s.pending[m.ID] = struct{}{}
		s.messages = append(s.messages, *m)
	}
	return m, nil
}

// hasMessage — только под mu. Ищет с конца: эхо всегда у хвоста истории.
func (s *Session) hasMessage(id string) bool {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return true
		}
	}
	return false
}

// SeedUnread загружает счётчики непрочитанных из хранилища. Вызывается
// при создании сессии: без этого счётчики стартовали бы с нуля и первое
// входящее после переподключения показывало бы 1 вместо N+1.
func (s *Session) SeedUnread(ctx context.Context) error {
	contacts, err := s.svc.ListContacts(ctx, s.userID)
	if err != nil {
		return err
	}
	groups, err := s.svc.ListGroups(ctx, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contacts {
		if c.UnreadCount > 0 {
			s.unread[DirectConversation(c.Profile.UserID)] = c.UnreadCount
		}
	}
	for _, g := range groups {
		if g.UnreadCount > 0 {
			s.unread[GroupConversation(g.Group.ID)] = g.UnreadCount
		}
	}
	return nil
}

// Effects — что изменилось в сессии после входящего события.
type Effects struct {
	// Appended — сообщение добавлено в открытую переписку.
	Appended *model.Message
	// Unread — новые значения изменившихся счётчиков.
	Unread map[Conversation]int
	// ReadMark — активная переписка, которую надо отметить прочитанной в БД.
	ReadMark *Conversation
}

// HandleInserted применяет событие шины к состоянию сессии.
// Эхо собственной оптимистичной отправки опознаётся по id и не даёт
// дубликата. Собственные сообщения никогда не увеличивают счётчик
// непрочитанных. Сообщение в активную переписку дописывается в историю,
// в неактивную — увеличивает её счётчик.
func (s *Session) HandleInserted(msg *model.Message) Effects {
	conv, ok := s.conversationOf(msg)
	if !ok {
		return Effects{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.SenderID == s.userID {
		if _, dup := s.pending[msg.ID]; dup {
			delete(s.pending, msg.ID)
			return Effects{}
		}
		// Отправлено этим же пользователем с другого устройства, либо
		// эхо обогнало возврат Send. Повторное появление id в истории
		// недопустимо в обоих случаях.
		if conv == s.active && !s.hasMessage(msg.ID) {
			s.messages = append(s.messages, *msg)
			return Effects{Appended: msg}
		}
		return Effects{}
	}

	if conv == s.active {
		s.messages = append(s.messages, *msg)
		return Effects{Appended: msg, ReadMark: &conv}
	}
	s.unread[conv]++
	return Effects{Unread: map[Conversation]int{conv: s.unread[conv]}}
}

// conversationOf определяет переписку события относительно пользователя
// сессии. Чужая личная переписка не касается сессии вовсе.
func (s *Session) conversationOf(msg *model.Message) (Conversation, bool) {
	if msg.GroupID != nil {
		return GroupConversation(*msg.GroupID), true
	}
	if msg.ReceiverID == nil {
		return Conversation{}, false
	}
	if *msg.ReceiverID == s.userID {
		return DirectConversation(msg.SenderID), true
	}
	if msg.SenderID == s.userID {
		return DirectConversation(*msg.ReceiverID), true
	}
	return Conversation{}, false
}
