package middleware

import (
	"context"

	"github.com/crmnexus/internal/model"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
	RoleKey      contextKey = "role"
)

// GetUserID возвращает user_id из контекста (устанавливается SessionAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

// GetRole возвращает роль из контекста. Пустая роль — профиля нет,
// все проверки прав дают deny.
func GetRole(ctx context.Context) model.Role {
	v, _ := ctx.Value(RoleKey).(model.Role)
	return v
}
