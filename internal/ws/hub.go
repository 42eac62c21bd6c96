package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crmnexus/internal/chat"
	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/model"
)

// PushNotifier отправляет пуш-уведомления. Если nil — пуши не отправляются.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// GroupMembers — выборка участников группы для раздачи событий.
type GroupMembers interface {
	GetMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// OnlineTracker проставляет онлайн-статус пользователя в БД.
type OnlineTracker interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// ProfileNames — имя отправителя для текста пуш-уведомления.
type ProfileNames interface {
	GetByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	chatSvc    *chat.Service
	groups     GroupMembers
	users      OnlineTracker
	profiles   ProfileNames
	pushClient PushNotifier

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	chatSvc *chat.Service,
	groups GroupMembers,
	users OnlineTracker,
	profiles ProfileNames,
	maxConns int,
	pushClient PushNotifier,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		chatSvc:    chatSvc,
		groups:     groups,
		users:      users,
		profiles:   profiles,
		pushClient: pushClient,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// ChatService отдаёт сервис переписки (клиентам нужна сессия поверх него).
func (h *Hub) ChatService() *chat.Service { return h.chatSvc }

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Собираем клиентов под локом, сетевой I/O — вне мьютекса.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Счётчики непрочитанных берутся из БД: новая сессия обязана стартовать
	// с фактическими значениями, а не с нуля.
	if err := c.session.SeedUnread(ctx); err != nil {
		logger.Errorf("ws seed unread user=%s: %v", c.userID, err)
	}
	if err := h.users.SetOnline(ctx, c.userID, true); err != nil {
		logger.Errorf("ws set online user=%s: %v", c.userID, err)
	}
	h.broadcastUserStatus(c.userID, true)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.users.SetOnline(ctx, c.userID, false); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
		h.broadcastUserStatus(c.userID, false)
	}
}

// HandleMessage маршрутизирует входящее WebSocket-событие по типу.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventOpenConversation:
		h.handleOpenConversation(ctx, c, msg)
	case EventSendMessage:
		h.handleSendMessage(ctx, c, msg)
	case EventCreateGroup:
		h.handleCreateGroup(ctx, c, msg)
	case EventTyping:
		h.handleTyping(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func conversationOf(msg IncomingMessage) chat.Conversation {
	if msg.GroupID != "" {
		return chat.GroupConversation(msg.GroupID)
	}
	return chat.DirectConversation(msg.PeerID)
}

func (h *Hub) handleOpenConversation(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleOpenConversation", time.Now())()
	conv := conversationOf(msg)
	if conv.IsZero() {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "peer_id or group_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	history, err := c.session.Open(ctx, conv)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrStaleFetch):
			// Переписку уже переключили, устаревшая история никому не нужна.
			return
		case errors.Is(err, chat.ErrNotMember):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not a member"})
			return
		default:
			logger.Errorf("ws open conversation user=%s: %v", c.userID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "internal error"})
			return
		}
	}

	h.sendToClient(c, OutgoingMessage{Type: EventHistory, Payload: HistoryPayload{
		PeerID:   conv.PeerID,
		GroupID:  conv.GroupID,
		Messages: history,
	}})
	h.sendToClient(c, OutgoingMessage{Type: EventUnreadChanged, Payload: UnreadPayload{
		PeerID:  conv.PeerID,
		GroupID: conv.GroupID,
		Count:   0,
	}})
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, err := c.session.Send(ctx, msg.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoActiveConversation):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "no open conversation"})
		case errors.Is(err, chat.ErrEmptyContent):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "content required"})
		case errors.Is(err, chat.ErrNotMember):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not a member"})
		default:
			logger.Errorf("ws send message user=%s: %v", c.userID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to send"})
		}
		return
	}

	// Подтверждение с авторитетным id и временем; остальным событие
	// доставит шина.
	h.sendToClient(c, OutgoingMessage{Type: EventMessageSent, Payload: m})
	h.notifyPush(m)
}

func (h *Hub) handleCreateGroup(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleCreateGroup", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g, failed, err := h.chatSvc.CreateGroup(ctx, c.userID, msg.Name, msg.Description, msg.MemberIDs)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyName) {
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "group name required"})
			return
		}
		logger.Errorf("ws create group user=%s: %v", c.userID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to create group"})
		return
	}

	out := OutgoingMessage{Type: EventGroupCreated, Payload: GroupCreatedPayload{
		Group:         *g,
		FailedMembers: failed,
	}}
	h.sendToClient(c, out)
	for _, uid := range msg.MemberIDs {
		if uid != c.userID {
			h.sendToUser(uid, out)
		}
	}
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) {
	conv := conversationOf(msg)
	if conv.IsZero() {
		return
	}
	out := OutgoingMessage{Type: EventTyping, Payload: TypingPayload{
		PeerID:  conv.PeerID,
		GroupID: conv.GroupID,
		UserID:  c.userID,
	}}
	if conv.GroupID != "" {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		memberIDs, err := h.groups.GetMemberIDs(ctx, conv.GroupID)
		if err != nil {
			logger.Errorf("ws get members for typing group=%s: %v", conv.GroupID, err)
			return
		}
		for _, uid := range memberIDs {
			if uid != c.userID {
				h.sendToUser(uid, out)
			}
		}
		return
	}
	h.sendToUser(conv.PeerID, out)
}

// HandleBusEvent раздаёт событие шины сессиям адресатов. Для группы
// получатели — её участники; для личного сообщения — обе стороны.
// Каждая подключённая сессия применяет событие сама: активная переписка
// дописывается, неактивная получает инкремент счётчика.
func (h *Hub) HandleBusEvent(msg *model.Message) {
	defer logger.DeferLogDuration("ws.HandleBusEvent", time.Now())()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var targets []string
	if msg.GroupID != nil {
		memberIDs, err := h.groups.GetMemberIDs(ctx, *msg.GroupID)
		if err != nil {
			logger.Errorf("ws get members group=%s: %v", *msg.GroupID, err)
			return
		}
		targets = memberIDs
	} else if msg.ReceiverID != nil {
		targets = []string{msg.SenderID, *msg.ReceiverID}
	} else {
		return
	}

	for _, uid := range targets {
		h.mu.RLock()
		clients, ok := h.clients[uid]
		if !ok {
			h.mu.RUnlock()
			continue
		}
		conns := make([]*Client, 0, len(clients))
		for c := range clients {
			conns = append(conns, c)
		}
		h.mu.RUnlock()

		for _, c := range conns {
			h.applyEffects(ctx, c, c.session.HandleInserted(msg))
		}
	}
}

func (h *Hub) applyEffects(ctx context.Context, c *Client, eff chat.Effects) {
	if eff.Appended != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventNewMessage, Payload: eff.Appended})
	}
	for conv, count := range eff.Unread {
		h.sendToClient(c, OutgoingMessage{Type: EventUnreadChanged, Payload: UnreadPayload{
			PeerID:  conv.PeerID,
			GroupID: conv.GroupID,
			Count:   count,
		}})
	}
	if eff.ReadMark != nil {
		if err := h.chatSvc.MarkRead(ctx, c.userID, *eff.ReadMark); err != nil {
			logger.Errorf("ws mark read user=%s: %v", c.userID, err)
		}
	}
}

// notifyPush шлёт пуш получателям (кроме отправителя).
func (h *Hub) notifyPush(m *model.Message) {
	if h.pushClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	title := "Новое сообщение"
	if p, err := h.profiles.GetByUserID(ctx, m.SenderID); err == nil && p.FullName != "" {
		title = p.FullName
	}
	body := m.Content
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"message_id": m.ID}

	var targets []string
	if m.GroupID != nil {
		data["group_id"] = *m.GroupID
		memberIDs, err := h.groups.GetMemberIDs(ctx, *m.GroupID)
		if err != nil {
			return
		}
		targets = memberIDs
	} else if m.ReceiverID != nil {
		data["peer_id"] = m.SenderID
		targets = []string{*m.ReceiverID}
	}
	for _, uid := range targets {
		if uid != m.SenderID {
			uid := uid
			go h.pushClient.Notify(context.Background(), uid, title, body, data)
		}
	}
}

// broadcastUserStatus рассылает онлайн-статус всем подключённым:
// список контактов показывает индикатор для каждого профиля.
func (h *Hub) broadcastUserStatus(userID string, online bool) {
	evType := EventUserOffline
	if online {
		evType = EventUserOnline
	}
	out := OutgoingMessage{Type: evType, Payload: UserStatusPayload{UserID: userID, Online: online}}

	h.mu.RLock()
	targets := make([]*Client, 0, h.total)
	for uid, clients := range h.clients {
		if uid == userID {
			continue
		}
		for c := range clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

func (h *Hub) sendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: буфер отправки полон, медленный клиент закрывается.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
