package model

import "time"

// Message — сообщение чата. Ровно одно из ReceiverID/GroupID заполнено:
// ReceiverID для личной переписки, GroupID для группового чата.
// Read меняется только false→true, сообщения не удаляются.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID *string   `json:"receiver_id,omitempty"`
	GroupID    *string   `json:"group_id,omitempty"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsGroup сообщает, адресовано ли сообщение группе.
func (m *Message) IsGroup() bool { return m.GroupID != nil }

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupMember struct {
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"` // admin | member
	JoinedAt   time.Time `json:"joined_at"`
	LastReadAt time.Time `json:"last_read_at"`
}

// Contact — собеседник в списке личных чатов с метаданными последнего
// сообщения и счётчиком непрочитанных.
type Contact struct {
	Profile         Profile    `json:"profile"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	UnreadCount     int        `json:"unread_count"`
	IsOnline        bool       `json:"is_online"`
}

// GroupSummary — группа в списке чатов с теми же метаданными.
type GroupSummary struct {
	Group           Group      `json:"group"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	UnreadCount     int        `json:"unread_count"`
}

// GroupMemberInfo — участник группы вместе с профилем.
type GroupMemberInfo struct {
	Profile   Profile   `json:"profile"`
	GroupRole string    `json:"group_role"`
	JoinedAt  time.Time `json:"joined_at"`
}
