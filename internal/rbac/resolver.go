package rbac

import (
	"context"
	"errors"

	"github.com/crmnexus/internal/model"
)

// ErrNoProfile возвращается хранилищем профилей, если профиль не найден.
// Resolver переводит его в пустую роль (deny по всем проверкам).
var ErrNoProfile = errors.New("profile not found")

// ProfileStore — доступ к профилям. Реализуется repository.ProfileRepository.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// Resolver определяет роль пользователя по профилю.
type Resolver struct {
	profiles ProfileStore
}

func NewResolver(profiles ProfileStore) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve возвращает роль пользователя или пустую роль, если профиля нет
// или пользователь не задан. Роль никогда не угадывается и не подставляется
// разрешающим значением по умолчанию.
func (r *Resolver) Resolve(ctx context.Context, userID string) (model.Role, error) {
	if userID == "" {
		return "", nil
	}
	p, err := r.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			return "", nil
		}
		return "", err
	}
	return p.Role, nil
}
