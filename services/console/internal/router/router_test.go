package router

import (
	"testing"

	"github.com/adminconsole/services/console/internal/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminRoute() Route {
	v, _ := views.Resolve(views.KeyAdmin)
	return Route{
		Path: "system/user",
		Name: "Menu_100",
		View: v,
		Meta: Meta{Title: "用户管理", Perms: "system:admin:list", MenuID: 100, RequiresAuth: true},
	}
}

func TestConstantRoutes(t *testing.T) {
	table := NewTable()

	r, ok := table.Resolve("/")
	require.True(t, ok)
	assert.Equal(t, DashboardName, r.Name)
	assert.Equal(t, DashboardPath, r.FullPath)

	r, ok = table.Resolve(LoginPath)
	require.True(t, ok)
	assert.False(t, r.Meta.RequiresAuth)

	_, ok = table.Resolve("/system/user")
	assert.False(t, ok)
}

func TestInstallIsIdempotent(t *testing.T) {
	table := NewTable()
	routes := []Route{adminRoute()}

	assert.Equal(t, 1, Install(table, routes))
	assert.Equal(t, 0, Install(table, routes))
	assert.Len(t, table.Routes(), 4)

	r, ok := table.Resolve("/system/user")
	require.True(t, ok)
	assert.Equal(t, "Menu_100", r.Name)
	assert.Equal(t, LayoutName, r.Parent)
	assert.Equal(t, views.KeyAdmin, r.View.Key)
	assert.True(t, r.Dynamic)
}

func TestAddRouteErrors(t *testing.T) {
	table := NewTable()
	assert.ErrorIs(t, table.AddRoute("Nope", adminRoute()), ErrParentNotFound)

	require.NoError(t, table.AddRoute(LayoutName, adminRoute()))
	dup := adminRoute()
	dup.Path = "system/other"
	assert.ErrorIs(t, table.AddRoute(LayoutName, dup), ErrDuplicateName)
}

func TestRemoveDynamic(t *testing.T) {
	table := NewTable()
	Install(table, []Route{adminRoute()})
	assert.Equal(t, 1, table.RemoveDynamic())
	assert.False(t, table.HasPath("/system/user"))
	assert.True(t, table.HasPath(DashboardPath))
	assert.Equal(t, 1, Install(table, []Route{adminRoute()}))
}

func TestLocation(t *testing.T) {
	loc := ParseLocation("system/user?tab=2")
	assert.Equal(t, "/system/user", loc.Path)
	assert.Equal(t, "2", loc.Query.Get("tab"))
	assert.Equal(t, "/system/user?tab=2", loc.FullPath())

	login := LoginLocation("/system/user?tab=2")
	assert.Equal(t, "/login?redirect=%2Fsystem%2Fuser%3Ftab%3D2", login.FullPath())
	assert.Equal(t, "/system/user?tab=2", ParseLocation(login.FullPath()).Query.Get("redirect"))

	assert.Equal(t, HomePath, ParseLocation("").Path)
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	assert.Equal(t, LoginPath, h.Current())
	h.Push("/dashboard")
	h.Push("/system/user?tab=1")
	assert.Equal(t, "/system/user", h.Current())
	assert.Equal(t, "1", h.Location().Query.Get("tab"))
	assert.Equal(t, []string{"/dashboard", "/system/user?tab=1"}, h.Entries())
}
