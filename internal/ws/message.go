package ws

import (
	"github.com/crmnexus/internal/model"
)

type EventType string

const (
	EventOpenConversation EventType = "open_conversation"
	EventSendMessage      EventType = "send_message"
	EventCreateGroup      EventType = "create_group"
	EventTyping           EventType = "typing"

	EventHistory       EventType = "history"
	EventMessageSent   EventType = "message_sent"
	EventNewMessage    EventType = "new_message"
	EventUnreadChanged EventType = "unread_changed"
	EventGroupCreated  EventType = "group_created"
	EventUserOnline    EventType = "user_online"
	EventUserOffline   EventType = "user_offline"
	EventError         EventType = "error"
)

// IncomingMessage is what the client sends to the server.
// Переписка адресуется либо peer_id (личная), либо group_id (групповая).
type IncomingMessage struct {
	Type    EventType `json:"type"`
	PeerID  string    `json:"peer_id,omitempty"`
	GroupID string    `json:"group_id,omitempty"`
	Content string    `json:"content,omitempty"`

	// For create_group
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	MemberIDs   []string `json:"member_ids,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// HistoryPayload — ответ на open_conversation.
type HistoryPayload struct {
	PeerID   string          `json:"peer_id,omitempty"`
	GroupID  string          `json:"group_id,omitempty"`
	Messages []model.Message `json:"messages"`
}

// UnreadPayload — новое значение счётчика одной переписки.
type UnreadPayload struct {
	PeerID  string `json:"peer_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
	Count   int    `json:"count"`
}

// GroupCreatedPayload — результат create_group. FailedMembers — участники,
// которых не удалось добавить (группа при этом создана).
type GroupCreatedPayload struct {
	Group         model.Group `json:"group"`
	FailedMembers []string    `json:"failed_members,omitempty"`
}

// TypingPayload is broadcast when a user is typing.
type TypingPayload struct {
	PeerID  string `json:"peer_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
	UserID  string `json:"user_id"`
}

// UserStatusPayload is broadcast for online/offline status.
type UserStatusPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
