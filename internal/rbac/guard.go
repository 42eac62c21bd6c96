package rbac

import (
	"context"

	"github.com/crmnexus/internal/model"
)

// GuardState — состояние проверки доступа к защищённой странице.
type GuardState int

const (
	// StateLoading — роль ещё не определена (запрос к профилю в полёте).
	StateLoading GuardState = iota
	// StateDenied — доступ запрещён; навигация завершается редиректом.
	StateDenied
	// StateAllowed — доступ разрешён, защищённое содержимое отдаётся.
	StateAllowed
)

func (s GuardState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateDenied:
		return "denied"
	case StateAllowed:
		return "allowed"
	}
	return "unknown"
}

// Requirement — пара (модуль, действие), необходимая для страницы.
// Нулевое значение означает «достаточно аутентификации».
type Requirement struct {
	Module string
	Action Action
}

// Guard сводит Resolver и Engine в машину состояний одной попытки навигации.
// Denied терминально для попытки: повторный заход начинает новую проверку.
type Guard struct {
	resolver *Resolver
	engine   Engine
}

func NewGuard(resolver *Resolver, engine Engine) *Guard {
	return &Guard{resolver: resolver, engine: engine}
}

// Check выполняет одну попытку: разрешает роль и оценивает требование.
// Отсутствующий пользователь или ошибка разрешения роли трактуются как Denied
// (ошибка аутентификации не роняет guard — спокойный редирект на unauthorized).
func (g *Guard) Check(ctx context.Context, userID string, req Requirement) GuardState {
	if userID == "" {
		return StateDenied
	}
	role, err := g.resolver.Resolve(ctx, userID)
	if err != nil {
		return StateDenied
	}
	return g.Evaluate(role, req)
}

// Evaluate оценивает требование для уже известной роли (синхронный путь:
// роль разрешена ранее, например в middleware сессии).
func (g *Guard) Evaluate(role model.Role, req Requirement) GuardState {
	if role == "" {
		return StateDenied
	}
	if req.Module == "" && req.Action == "" {
		return StateAllowed
	}
	if g.engine.HasPermission(role, req.Module, req.Action) {
		return StateAllowed
	}
	return StateDenied
}

// Attempt — одна навигация с асинхронным разрешением роли: создаётся в
// StateLoading, переводится в Allowed/Denied по завершении Resolve.
type Attempt struct {
	guard *Guard
	req   Requirement
	state GuardState
}

// Begin начинает попытку в состоянии Loading.
func (g *Guard) Begin(req Requirement) *Attempt {
	return &Attempt{guard: g, req: req, state: StateLoading}
}

// State возвращает текущее состояние попытки.
func (a *Attempt) State() GuardState { return a.state }

// Complete завершает попытку результатом разрешения роли.
// Повторный вызов после Denied не меняет состояние (Denied терминально).
func (a *Attempt) Complete(role model.Role, resolveErr error) GuardState {
	if a.state == StateDenied {
		return a.state
	}
	if resolveErr != nil {
		a.state = StateDenied
		return a.state
	}
	a.state = a.guard.Evaluate(role, a.req)
	return a.state
}
