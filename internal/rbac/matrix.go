package rbac

import "github.com/crmnexus/internal/model"

// DefaultMatrix — зафиксированная матрица прав дашборда.
// У каждой роли заполнены все четыре действия (пустой список — явный deny).
func DefaultMatrix() Matrix {
	return Matrix{
		model.RoleAdmin: {
			ActionCreate: {Wildcard},
			ActionRead:   {Wildcard},
			ActionUpdate: {Wildcard},
			ActionDelete: {Wildcard},
		},
		model.RoleManager: {
			ActionCreate: {ModuleClients, ModuleLeads, ModuleProjects, ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents, ModuleGroups},
			ActionRead:   {Wildcard},
			ActionUpdate: {ModuleClients, ModuleLeads, ModuleProjects, ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents, ModuleGroups},
			ActionDelete: {ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents},
		},
		model.RoleEmployee: {
			ActionCreate: {ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents, ModuleGroups},
			ActionRead:   {ModuleClients, ModuleLeads, ModuleProjects, ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents, ModuleGroups, ModuleAttendance},
			ActionUpdate: {ModuleTasks, ModuleDocuments, ModuleMessages, ModuleTickets, ModuleCalendarEvents},
			ActionDelete: {ModuleMessages},
		},
		model.RoleIntern: {
			ActionCreate: {ModuleMessages, ModuleDocuments},
			ActionRead:   {ModuleTasks, ModuleProjects, ModuleMessages, ModuleDocuments, ModuleGroups, ModuleCalendarEvents},
			ActionUpdate: {},
			ActionDelete: {},
		},
		model.RoleClient: {
			ActionCreate: {ModuleMessages, ModuleTickets},
			ActionRead:   {ModuleMessages, ModuleGroups, ModuleProjects, ModuleTickets},
			ActionUpdate: {},
			ActionDelete: {},
		},
	}
}
