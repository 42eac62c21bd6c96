package model

import "time"

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	IsOnline     bool       `json:"is_online"`
	CreatedAt    time.Time  `json:"created_at"`
	DisabledAt   *time.Time `json:"-"` // не null = пользователь отключён, не может войти
}

// Role — роль пользователя в системе. Одна роль на пользователя,
// назначается администратором через профиль.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleIntern   Role = "intern"
	RoleClient   Role = "client"
)

// Valid сообщает, входит ли роль в фиксированный набор.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee, RoleIntern, RoleClient:
		return true
	}
	return false
}

// Profile — профиль пользователя с ролью и отображаемым именем.
// Отсутствие профиля означает отсутствие роли: все проверки прав дают deny.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal — аутентифицированный пользователь запроса.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
