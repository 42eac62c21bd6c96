package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/crmnexus/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProfiles struct {
	profiles map[string]*model.Profile
	err      error
}

func (s *stubProfiles) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNoProfile
	}
	return p, nil
}

func TestResolverNoProfileMeansEmptyRole(t *testing.T) {
	r := NewResolver(&stubProfiles{profiles: map[string]*model.Profile{}})
	role, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Role(""), role)
}

func TestResolverEmptyUserID(t *testing.T) {
	r := NewResolver(&stubProfiles{})
	role, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, model.Role(""), role)
}

func TestResolverStoreError(t *testing.T) {
	r := NewResolver(&stubProfiles{err: errors.New("pool closed")})
	role, err := r.Resolve(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, model.Role(""), role)
}

func newTestGuard(profiles map[string]*model.Profile) *Guard {
	resolver := NewResolver(&stubProfiles{profiles: profiles})
	return NewGuard(resolver, NewMatrixEngine(DefaultMatrix()))
}

func TestGuardCheckAllowed(t *testing.T) {
	g := newTestGuard(map[string]*model.Profile{
		"u1": {UserID: "u1", Role: model.RoleManager},
	})
	state := g.Check(context.Background(), "u1", Requirement{Module: ModuleClients, Action: ActionUpdate})
	assert.Equal(t, StateAllowed, state)
}

func TestGuardCheckDeniedByMatrix(t *testing.T) {
	g := newTestGuard(map[string]*model.Profile{
		"u1": {UserID: "u1", Role: model.RoleManager},
	})
	state := g.Check(context.Background(), "u1", Requirement{Module: ModuleClients, Action: ActionDelete})
	assert.Equal(t, StateDenied, state)
}

func TestGuardCheckNoProfileDenied(t *testing.T) {
	g := newTestGuard(map[string]*model.Profile{})
	state := g.Check(context.Background(), "ghost", Requirement{Module: ModuleTasks, Action: ActionRead})
	assert.Equal(t, StateDenied, state)
}

func TestGuardCheckEmptyUserDenied(t *testing.T) {
	g := newTestGuard(nil)
	state := g.Check(context.Background(), "", Requirement{})
	assert.Equal(t, StateDenied, state)
}

func TestGuardAuthOnlyRequirement(t *testing.T) {
	g := newTestGuard(map[string]*model.Profile{
		"u1": {UserID: "u1", Role: model.RoleIntern},
	})
	// Пустое требование: достаточно наличия роли.
	state := g.Check(context.Background(), "u1", Requirement{})
	assert.Equal(t, StateAllowed, state)
}

func TestAttemptLifecycle(t *testing.T) {
	g := newTestGuard(nil)
	a := g.Begin(Requirement{Module: ModuleTasks, Action: ActionRead})
	assert.Equal(t, StateLoading, a.State())

	state := a.Complete(model.RoleEmployee, nil)
	assert.Equal(t, StateAllowed, state)
	assert.Equal(t, StateAllowed, a.State())
}

func TestAttemptDeniedIsTerminal(t *testing.T) {
	g := newTestGuard(nil)
	a := g.Begin(Requirement{Module: ModuleFinance, Action: ActionRead})

	state := a.Complete(model.RoleEmployee, nil)
	require.Equal(t, StateDenied, state)

	// Завершение с разрешающей ролью после Denied не переводит в Allowed.
	state = a.Complete(model.RoleAdmin, nil)
	assert.Equal(t, StateDenied, state)
}

func TestAttemptResolveErrorDenied(t *testing.T) {
	g := newTestGuard(nil)
	a := g.Begin(Requirement{})
	state := a.Complete("", errors.New("resolve failed"))
	assert.Equal(t, StateDenied, state)
}
