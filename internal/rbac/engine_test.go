package rbac

import (
	"testing"

	"github.com/crmnexus/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixEngineAdminWildcard(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	modules := []string{ModuleClients, ModuleFinance, ModuleSettings, "nonexistent"}
	actions := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	for _, m := range modules {
		for _, a := range actions {
			assert.True(t, e.HasPermission(model.RoleAdmin, m, a), "admin %s %s", a, m)
		}
	}
}

func TestMatrixEngineEmptyRoleDenied(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	assert.False(t, e.HasPermission("", ModuleClients, ActionRead))
	assert.False(t, e.HasPermission("", "anything", ActionDelete))
}

func TestMatrixEngineUnknownRoleDenied(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	assert.False(t, e.HasPermission(model.Role("superuser"), ModuleClients, ActionRead))
}

func TestMatrixEngineUnknownActionDenied(t *testing.T) {
	m := Matrix{
		model.RoleManager: {
			ActionRead: {Wildcard},
		},
	}
	e := NewMatrixEngine(m)
	// Действие не определено в матрице — deny, без паники.
	assert.False(t, e.HasPermission(model.RoleManager, ModuleClients, Action("archive")))
	assert.False(t, e.HasPermission(model.RoleManager, ModuleClients, ActionDelete))
}

func TestMatrixEngineWildcardCoversUnknownModule(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	// У менеджера read = wildcard: даже неизвестный модуль разрешён.
	assert.True(t, e.HasPermission(model.RoleManager, "unknown_module", ActionRead))
	// Без wildcard неизвестный модуль запрещён.
	assert.False(t, e.HasPermission(model.RoleManager, "unknown_module", ActionDelete))
}

func TestMatrixEngineExactMatchOnly(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	// Точное совпадение строки, без префиксов и глобов.
	assert.True(t, e.HasPermission(model.RoleEmployee, ModuleTasks, ActionUpdate))
	assert.False(t, e.HasPermission(model.RoleEmployee, "task", ActionUpdate))
	assert.False(t, e.HasPermission(model.RoleEmployee, "tasks*", ActionUpdate))
}

func TestMatrixEmployeeFinanceReadDenied(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	assert.False(t, e.HasPermission(model.RoleEmployee, ModuleFinance, ActionRead))
}

func TestMatrixManagerScenarios(t *testing.T) {
	e := NewMatrixEngine(DefaultMatrix())
	assert.False(t, e.HasPermission(model.RoleManager, ModuleClients, ActionDelete))
	assert.True(t, e.HasPermission(model.RoleManager, ModuleClients, ActionUpdate))
	for _, m := range []string{ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents} {
		assert.True(t, e.HasPermission(model.RoleManager, m, ActionDelete), "manager delete %s", m)
	}
}

func TestMatrixEveryRoleHasEveryAction(t *testing.T) {
	m := DefaultMatrix()
	roles := []model.Role{model.RoleAdmin, model.RoleManager, model.RoleEmployee, model.RoleIntern, model.RoleClient}
	actions := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	for _, r := range roles {
		require.Contains(t, m, r)
		for _, a := range actions {
			_, ok := m[r][a]
			assert.True(t, ok, "role %s missing action %s", r, a)
		}
	}
}

func TestAllowAllEngine(t *testing.T) {
	e := AllowAllEngine{}
	assert.True(t, e.HasPermission(model.RoleClient, ModuleFinance, ActionDelete))
	// Отсутствующая роль остаётся deny даже при allow_all.
	assert.False(t, e.HasPermission("", ModuleFinance, ActionRead))
}

func TestFromConfig(t *testing.T) {
	_, isMatrix := FromConfig("matrix").(*MatrixEngine)
	assert.True(t, isMatrix)
	_, isAllowAll := FromConfig("allow_all").(AllowAllEngine)
	assert.True(t, isAllowAll)
	_, isFallback := FromConfig("whatever").(*MatrixEngine)
	assert.True(t, isFallback)
}
