package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/rbac"
	"github.com/stretchr/testify/assert"
)

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, role model.Role) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	if role != "" {
		req = req.WithContext(context.WithValue(req.Context(), RoleKey, role))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequirePermissionAllows(t *testing.T) {
	engine := rbac.NewMatrixEngine(rbac.DefaultMatrix())
	mw := RequirePermission(engine, rbac.ModuleClients, rbac.ActionRead)
	rec := doRequest(t, mw, model.RoleManager)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionDeniesByMatrix(t *testing.T) {
	engine := rbac.NewMatrixEngine(rbac.DefaultMatrix())
	mw := RequirePermission(engine, rbac.ModuleClients, rbac.ActionDelete)
	rec := doRequest(t, mw, model.RoleManager)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionDeniesMissingRole(t *testing.T) {
	engine := rbac.NewMatrixEngine(rbac.DefaultMatrix())
	mw := RequirePermission(engine, rbac.ModuleClients, rbac.ActionRead)
	rec := doRequest(t, mw, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePermissionDeniesUnknownRole(t *testing.T) {
	engine := rbac.NewMatrixEngine(rbac.DefaultMatrix())
	mw := RequirePermission(engine, rbac.ModuleFinance, rbac.ActionRead)
	rec := doRequest(t, mw, model.Role("superuser"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole("admin")
	assert.Equal(t, http.StatusOK, doRequest(t, mw, model.RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(t, mw, model.RoleManager).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(t, mw, "").Code)
}
