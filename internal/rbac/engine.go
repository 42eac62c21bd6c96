// Package rbac реализует проверку прав по статической матрице
// роль → действие → список модулей. Проверка — тотальная функция:
// всегда возвращает bool и никогда не паникует, потому что от неё
// зависит отрисовка каждой страницы дашборда.
package rbac

import "github.com/crmnexus/internal/model"

// Action — одно из четырёх CRUD-действий.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Wildcard в списке модулей означает «все модули».
const Wildcard = "all"

// Известные модули (именованные области ресурсов дашборда).
const (
	ModuleClients        = "clients"
	ModuleLeads          = "leads"
	ModuleProjects       = "projects"
	ModuleTasks          = "tasks"
	ModuleDocuments      = "documents"
	ModuleMessages       = "messages"
	ModuleTickets        = "tickets"
	ModuleCalendarEvents = "calendarEvents"
	ModuleGroups         = "groups"
	ModuleFinance        = "finance"
	ModuleAttendance     = "attendance"
	ModuleInterns        = "interns"
	ModuleSettings       = "settings"
)

// Matrix — статическая матрица прав. Инвариант: у каждой роли есть запись
// для каждого действия, даже если список модулей пуст. Определяется один раз
// на процесс и не мутируется.
type Matrix map[model.Role]map[Action][]string

// Engine отвечает на вопрос «может ли роль выполнить действие над модулем».
type Engine interface {
	HasPermission(role model.Role, module string, action Action) bool
}

// MatrixEngine — основная реализация поверх статической матрицы.
type MatrixEngine struct {
	matrix Matrix
}

// NewMatrixEngine создаёт движок поверх переданной матрицы.
// Пустая матрица допустима: все проверки дадут deny.
func NewMatrixEngine(m Matrix) *MatrixEngine {
	if m == nil {
		m = Matrix{}
	}
	return &MatrixEngine{matrix: m}
}

// HasPermission: неизвестная роль → deny; неизвестное действие → deny;
// wildcard в списке → allow для любого модуля; иначе точное совпадение строки.
func (e *MatrixEngine) HasPermission(role model.Role, module string, action Action) bool {
	if role == "" {
		return false
	}
	actions, ok := e.matrix[role]
	if !ok {
		return false
	}
	modules, ok := actions[action]
	if !ok {
		return false
	}
	for _, m := range modules {
		if m == Wildcard || m == module {
			return true
		}
	}
	return false
}

// AllowAllEngine разрешает всё. Выбирается конфигурацией
// (permission_engine: allow_all) для локальной разработки; в production запрещён.
type AllowAllEngine struct{}

// HasPermission разрешает любое действие любой роли, кроме отсутствующей.
func (AllowAllEngine) HasPermission(role model.Role, module string, action Action) bool {
	return role != ""
}

// FromConfig возвращает движок по имени из конфигурации.
func FromConfig(name string) Engine {
	if name == "allow_all" {
		return AllowAllEngine{}
	}
	return NewMatrixEngine(DefaultMatrix())
}
