package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/notify"
	pkgRegistry "github.com/adminconsole/pkg/registry"
	"github.com/adminconsole/pkg/storage"
	"github.com/adminconsole/services/console/internal/guard"
	"github.com/adminconsole/services/console/internal/router"
	"github.com/adminconsole/services/console/internal/session"
	"github.com/adminconsole/services/devapi/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clientID     = "console"
	clientSecret = "console-secret"
)

type fixture struct {
	srv      *server.Server
	ts       *httptest.Server
	console  *Console
	notifier *notify.Recorder
	store    storage.Store
}

func newBackend(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	srv, err := server.New(&config.DevAPIConfig{ClientID: clientID, ClientSecret: clientSecret})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown()
	})
	return srv, ts
}

func consoleConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:      baseURL,
			ClientID:     clientID,
			ClientSecret: clientSecret,
		},
		Navigation: config.NavigationConfig{RouteRetryDelay: 1},
	}
}

func newConsole(t *testing.T, cfg *config.Config, store storage.Store, opts ...Option) (*Console, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder(nil)
	opts = append([]Option{WithNotifier(rec), WithStore(store)}, opts...)
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv, ts := newBackend(t)
	store := storage.NewMemory()
	c, rec := newConsole(t, consoleConfig(ts.URL+server.BasePath), store)
	require.NoError(t, c.Start(context.Background()))
	return &fixture{srv: srv, ts: ts, console: c, notifier: rec, store: store}
}

func (f *fixture) login(t *testing.T, username, password string) guard.Decision {
	t.Helper()
	d, err := f.console.Login(context.Background(), session.Credentials{Username: username, Password: password})
	require.NoError(t, err)
	return d
}

func TestLoginReturnsToRequestedPage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	d := f.console.Navigate(ctx, "/system/role")
	assert.Equal(t, guard.Allow, d.Action)
	assert.Equal(t, router.LoginPath, f.console.History.Location().Path)
	assert.Equal(t, "/system/role", f.console.History.Location().Query.Get("redirect"))

	d = f.login(t, "admin", "admin123")
	assert.Equal(t, guard.Allow, d.Action)
	assert.Equal(t, "/system/role", d.Target)
	assert.Equal(t, "/system/role", f.console.History.Current())
	assert.Equal(t, 1, f.notifier.Count(notify.LevelSuccess, "登录成功"))

	sess := f.console.Session.Current()
	assert.Equal(t, "admin", sess.Username)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.Contains(t, sess.Permissions, "system:admin:add")
	assert.True(t, f.console.Menus.HasPermission("monitor:online:forceLogout"))
}

func TestLoginPageRedirectsWhenLoggedIn(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")

	d := f.console.Navigate(context.Background(), router.LoginPath)
	assert.Equal(t, guard.Allow, d.Action)
	assert.Equal(t, router.DashboardPath, d.Target)
}

func TestOpenLoadsPageData(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")

	page, err := f.console.Open(context.Background(), "/system/user")
	require.NoError(t, err)
	require.Equal(t, guard.Allow, page.Decision.Action)

	var data struct {
		Records []map[string]interface{} `json:"records"`
		Total   int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(page.Data, &data))
	assert.Equal(t, int64(3), data.Total)
}

func TestMissingMenuFallsBackHome(t *testing.T) {
	f := setup(t)
	f.login(t, "audit", "audit123")

	d := f.console.Navigate(context.Background(), "/system/user")
	assert.Equal(t, guard.Allow, d.Action)
	assert.Equal(t, router.DashboardPath, d.Target)
	assert.Equal(t, 1, f.notifier.Count(notify.LevelWarn, errors.MsgPageNotFound))
}

func TestExpiredAccessTokenRefreshedTransparently(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")
	before := f.console.Session.AccessToken()

	f.srv.RevokeAccessTokens()
	page, err := f.console.Open(context.Background(), "/system/role")
	require.NoError(t, err)
	assert.NotEmpty(t, page.Data)
	assert.Equal(t, int64(1), f.srv.RefreshCount())
	assert.NotEqual(t, before, f.console.Session.AccessToken())
	assert.True(t, f.console.Session.IsLoggedIn())
	assert.Zero(t, f.notifier.Count(notify.LevelError, errors.MsgSessionExpired))
}

func TestConcurrentCallsShareRefresh(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")
	f.srv.RevokeAccessTokens()

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.console.API.Call(context.Background(), "GET", "/sms/monitor/info", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.GreaterOrEqual(t, f.srv.RefreshCount(), int64(1))
	assert.Equal(t, int64(f.console.Gateway.Flight().Flights()), f.srv.RefreshCount())
	assert.True(t, f.console.Session.IsLoggedIn())
}

func TestRevokedRefreshTokenLogsOutOnce(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")

	f.srv.RevokeAccessTokens()
	require.NoError(t, f.srv.RevokeRefreshTokens(context.Background()))

	_, err := f.console.Open(context.Background(), "/system/role")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuth))

	assert.False(t, f.console.Session.IsLoggedIn())
	assert.False(t, f.console.Menus.Loaded())
	assert.Equal(t, router.LoginPath, f.console.History.Location().Path)
	assert.Equal(t, 1, f.notifier.Count(notify.LevelError, errors.MsgSessionExpired))

	_, ok, err := f.store.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutClearsState(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")

	require.NoError(t, f.console.Logout(context.Background()))
	assert.False(t, f.console.Session.IsLoggedIn())
	assert.Equal(t, router.LoginPath, f.console.History.Current())

	d := f.console.Navigate(context.Background(), "/monitor/info")
	assert.Equal(t, router.LoginPath, f.console.History.Location().Path)
	assert.Equal(t, guard.Allow, d.Action)
}

func TestSmsLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.console.API.SendSmsCode(ctx, "13900000000", ""))
	d, err := f.console.LoginBySms(ctx, session.SmsCredentials{Phone: "13900000000", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, router.DashboardPath, d.Target)

	sess := f.console.Session.Current()
	assert.Equal(t, "audit", sess.Username)
	assert.Equal(t, "审计员", sess.NickName)
	assert.Equal(t, int64(7200), sess.ExpiresIn)
}

func TestStartRestoresSession(t *testing.T) {
	f := setup(t)
	f.login(t, "audit", "audit123")

	again, _ := newConsole(t, consoleConfig(f.ts.URL+server.BasePath), f.store)
	require.NoError(t, again.Start(context.Background()))
	assert.True(t, again.Session.IsLoggedIn())
	assert.True(t, again.Menus.Loaded())
	assert.True(t, again.Table.HasPath("/monitor/operlog"))

	d := again.Navigate(context.Background(), "/monitor/info")
	assert.Equal(t, "/monitor/info", d.Target)
}

func TestStartResolvesBaseURLFromRegistry(t *testing.T) {
	srv, ts := newBackend(t)
	reg := pkgRegistry.NewMemoryRegistry()
	require.NoError(t, srv.Register(reg, ts.Listener.Addr().String()))

	cfg := consoleConfig("")
	cfg.API.Discovery = config.DiscoveryConfig{Enabled: true, Registry: "memory", Service: "devapi"}
	c, _ := newConsole(t, cfg, storage.NewMemory(), WithRegistry(reg))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, ts.URL+server.BasePath, c.Gateway.BaseURL())

	_, err := c.Login(context.Background(), session.Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
}

func TestNewDefaultsToLogNotifier(t *testing.T) {
	c, err := New(consoleConfig("http://127.0.0.1:1/api"), WithStore(storage.NewMemory()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.IsType(t, &notify.ZapNotifier{}, c.Notifier)
}

func TestLogoutDropsPreviousUserRoutes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.login(t, "admin", "admin123")
	f.console.Navigate(ctx, "/system/user")
	require.True(t, f.console.Table.HasPath("/system/user"))

	require.NoError(t, f.console.Logout(ctx))
	assert.False(t, f.console.Table.HasPath("/system/user"))
	assert.False(t, f.console.Table.HasPath("/monitor/online"))

	f.login(t, "audit", "audit123")
	d := f.console.Navigate(ctx, "/system/user")
	assert.Equal(t, router.DashboardPath, d.Target)
	assert.False(t, f.console.Table.HasPath("/system/user"))
	assert.Equal(t, 1, f.notifier.Count(notify.LevelWarn, errors.MsgPageNotFound))
	assert.Zero(t, f.notifier.Count(notify.LevelError, errors.MsgRouteDenied))
}

func TestExpiredSessionDropsRoutes(t *testing.T) {
	f := setup(t)
	f.login(t, "admin", "admin123")
	f.console.Navigate(context.Background(), "/system/role")
	require.True(t, f.console.Table.HasPath("/system/role"))

	f.srv.RevokeAccessTokens()
	require.NoError(t, f.srv.RevokeRefreshTokens(context.Background()))
	_, err := f.console.API.Call(context.Background(), "GET", "/sms/monitor/info", nil, nil)
	require.Error(t, err)

	assert.False(t, f.console.Session.IsLoggedIn())
	assert.False(t, f.console.Table.HasPath("/system/role"))
}

func TestLoginOverSessionReplacesRoutes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.login(t, "admin", "admin123")
	f.console.Navigate(ctx, "/system/user")
	require.True(t, f.console.Table.HasPath("/system/user"))

	f.login(t, "audit", "audit123")
	assert.Equal(t, "audit", f.console.Session.Current().Username)
	d := f.console.Navigate(ctx, "/system/user")
	assert.Equal(t, router.DashboardPath, d.Target)
	assert.False(t, f.console.Table.HasPath("/system/user"))
	assert.True(t, f.console.Table.HasPath("/monitor/operlog"))
}
