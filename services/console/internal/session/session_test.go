package session

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adminconsole/pkg/auth"
	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/storage"
	"github.com/adminconsole/services/console/internal/api"
	"github.com/adminconsole/services/console/internal/menu"
	"github.com/adminconsole/services/console/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	keys        *auth.KeyPair
	keyErr      error
	gotPassword string
	login       *api.TokenPayload
	refresh     *api.TokenPayload
	refreshErr  error
	info        *api.UserInfo
	infoErr     error
	logouts     int
	refreshes   int
}

func (b *fakeBackend) PublicKey(context.Context) (string, error) {
	if b.keyErr != nil {
		return "", b.keyErr
	}
	return b.keys.PublicKey()
}

func (b *fakeBackend) Login(_ context.Context, req *api.LoginRequest) (*api.TokenPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gotPassword = req.Password
	if b.keyErr == nil {
		plain, err := b.keys.Decrypt(req.Password)
		if err != nil {
			return nil, err
		}
		b.gotPassword = plain
	}
	p := *b.login
	return &p, nil
}

func (b *fakeBackend) LoginBySms(context.Context, *api.SmsLoginRequest) (*api.TokenPayload, error) {
	p := *b.login
	return &p, nil
}

func (b *fakeBackend) Refresh(context.Context, string) (*api.TokenPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if b.refreshErr != nil {
		return nil, b.refreshErr
	}
	p := *b.refresh
	return &p, nil
}

func (b *fakeBackend) Logout(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts++
	return stderrors.New("logout endpoint down")
}

func (b *fakeBackend) CurrentUserInfo(context.Context) (*api.UserInfo, error) {
	if b.infoErr != nil {
		return nil, b.infoErr
	}
	return b.info, nil
}

func (b *fakeBackend) counts() (logouts, refreshes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logouts, b.refreshes
}

type fakeMenus struct {
	applied  []menu.Node
	restored int
	cleared  int
}

func (m *fakeMenus) Apply(_ context.Context, nodes []menu.Node) error {
	m.applied = nodes
	return nil
}
func (m *fakeMenus) Restore(context.Context) bool { m.restored++; return false }
func (m *fakeMenus) Clear(context.Context)        { m.cleared++ }

type fixture struct {
	store   *Store
	backend *fakeBackend
	menus   *fakeMenus
	kv      storage.Store
	history *router.History
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	keys, err := auth.GenerateKeyPair(1024)
	require.NoError(t, err)
	f := &fixture{
		backend: &fakeBackend{
			keys:    keys,
			login:   &api.TokenPayload{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 7200, UserID: 1, Username: "admin"},
			refresh: &api.TokenPayload{AccessToken: "access-2", ExpiresIn: 3600},
			info: &api.UserInfo{
				UserID: 1, Username: "admin", NickName: "超级管理员",
				Roles: []string{"admin"}, Permissions: []string{"system:admin:list"},
				Menus: []menu.Node{{ID: 1, MenuName: "系统管理", MenuType: menu.TypeDirectory}},
			},
		},
		menus:   &fakeMenus{},
		kv:      storage.WithPrefix(storage.NewMemory(), "admin_"),
		history: router.NewHistory(),
	}
	opts := Options{
		Backend:     f.backend,
		Storage:     f.kv,
		Menus:       f.menus,
		Navigator:   f.history,
		AutoRefresh: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.store = New(opts)
	t.Cleanup(f.store.Stop)
	return f
}

func TestRefreshDelay(t *testing.T) {
	s := New(Options{})
	cases := []struct {
		expiresIn int64
		want      time.Duration
		ok        bool
	}{
		{7200, 6900 * time.Second, true},
		{360, 60 * time.Second, true},
		{100, 60 * time.Second, true},
		{61, 60 * time.Second, true},
		{60, 0, false},
		{50, 0, false},
		{0, 0, false},
		{-5, 0, false},
	}
	for _, c := range cases {
		got, ok := s.RefreshDelay(c.expiresIn)
		assert.Equal(t, c.ok, ok, "expiresIn=%d", c.expiresIn)
		assert.Equal(t, c.want, got, "expiresIn=%d", c.expiresIn)
	}
}

func TestLoginEncryptsAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, "admin123", f.backend.gotPassword)
	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "超级管理员", sess.NickName)
	assert.Equal(t, []string{"admin"}, sess.Roles)
	assert.True(t, f.store.IsLoggedIn())
	assert.True(t, f.store.TimerArmed())
	require.Len(t, f.menus.applied, 1)

	v, ok, err := f.kv.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "access-1", v)
	v, _, _ = f.kv.Get(ctx, KeyExpiresIn)
	assert.Equal(t, "7200", v)
	v, _, _ = f.kv.Get(ctx, KeyRefreshToken)
	assert.Equal(t, "refresh-1", v)

	// 公钥只取一次
	_, err = f.store.Login(ctx, Credentials{Username: "admin", Password: "again"})
	require.NoError(t, err)
	assert.Equal(t, "again", f.backend.gotPassword)
}

func TestLoginWithoutPublicKeySendsPlaintext(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.keyErr = stderrors.New("no key")

	_, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "plain", f.backend.gotPassword)
}

type brokenEncryptor struct{}

func (brokenEncryptor) Encrypt(string, string) (string, error) {
	return "", auth.ErrInvalidPublicKey
}

func TestLoginEncryptionFailure(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Encryptor = brokenEncryptor{} })
	_, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInvalidPublicKey)
	assert.False(t, f.store.IsLoggedIn())
}

func TestLoginProfileFailureIsPartial(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.infoErr = errors.Request(500, "服务器错误")

	sess, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "admin", sess.Username)
	assert.Equal(t, int64(1), sess.UserID)
	assert.Equal(t, 1, f.menus.restored)
	assert.Nil(t, f.menus.applied)
}

func TestLoginBySms(t *testing.T) {
	f := newFixture(t, nil)
	sess, err := f.store.LoginBySms(context.Background(), SmsCredentials{Phone: "13800000000", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "access-1", sess.AccessToken)

	f2 := newFixture(t, nil)
	f2.backend.login = &api.TokenPayload{}
	_, err = f2.store.LoginBySms(context.Background(), SmsCredentials{Phone: "1", Code: "2"})
	assert.True(t, errors.IsKind(err, errors.KindAuth))
}

func TestRefreshUpdatesPresentFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	sess, err := f.store.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", sess.AccessToken)
	assert.Equal(t, int64(3600), sess.ExpiresIn)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
	assert.Equal(t, "超级管理员", sess.NickName)

	v, _, _ := f.kv.Get(ctx, KeyToken)
	assert.Equal(t, "access-2", v)
	assert.True(t, f.store.TimerArmed())
}

func TestRefreshFailureIsAuthError(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.store.Refresh(ctx)
	assert.ErrorIs(t, err, errors.ErrNotLoggedIn)

	_, err = f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	f.backend.refreshErr = errors.Request(400, "刷新令牌无效")
	_, err = f.store.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuth))
	assert.True(t, errors.IsKind(err, errors.KindRequest))
}

func TestCheckAndRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	f.store.CheckAndRefreshToken()
	assert.False(t, f.store.TimerArmed())

	f.backend.login.ExpiresIn = 50
	_, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.False(t, f.store.TimerArmed())

	f.store.mu.Lock()
	f.store.sess.ExpiresIn = 7200
	f.store.mu.Unlock()
	f.store.CheckAndRefreshToken()
	f.store.CheckAndRefreshToken()
	assert.True(t, f.store.TimerArmed())

	off := newFixture(t, func(o *Options) { o.AutoRefresh = false })
	_, err = off.store.Login(context.Background(), Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.False(t, off.store.TimerArmed())
}

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshSession(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func fastTimer(o *Options) {
	o.RefreshLead = 990 * time.Millisecond
	o.ExpiryGuard = 990 * time.Millisecond
	o.RefreshFloor = 10 * time.Millisecond
}

func TestTimerUsesRefresherAndSwallowsFailure(t *testing.T) {
	refresher := &countingRefresher{err: errors.Network(stderrors.New("offline"))}
	f := newFixture(t, func(o *Options) {
		fastTimer(o)
		o.Refresher = refresher
	})
	f.backend.login.ExpiresIn = 1

	_, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, f.store.IsLoggedIn())
	logouts, _ := f.backend.counts()
	assert.Zero(t, logouts)
}

func TestTimerRefreshesDirectlyWithoutRefresher(t *testing.T) {
	f := newFixture(t, fastTimer)
	f.backend.login.ExpiresIn = 1
	f.backend.refresh.ExpiresIn = 7200

	_, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.store.AccessToken() == "access-2" }, time.Second, 5*time.Millisecond)
	_, refreshes := f.backend.counts()
	assert.Equal(t, 1, refreshes)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	f.history.Push("/system/user")

	require.NoError(t, f.store.Logout(ctx))
	require.NoError(t, f.store.Logout(ctx))

	logouts, _ := f.backend.counts()
	assert.Equal(t, 1, logouts)
	assert.Equal(t, 1, f.menus.cleared)
	assert.False(t, f.store.IsLoggedIn())
	assert.False(t, f.store.TimerArmed())
	assert.Equal(t, Session{}, f.store.Current())
	assert.Equal(t, router.LoginPath, f.history.Current())

	for _, k := range persistedKeys {
		_, ok, err := f.kv.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestLogoutOnLoginPageDoesNotNavigate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	before := len(f.history.Entries())
	require.NoError(t, f.store.Logout(ctx))
	assert.Len(t, f.history.Entries(), before)
}

func TestInitHydratesFromStorage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assert.False(t, f.store.Init(ctx))

	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	require.NoError(t, storage.SetJSON(ctx, f.kv, KeyPermissions, []string{"system:admin:list"}))
	want := f.store.Current()

	restored := New(Options{Backend: f.backend, Storage: f.kv, AutoRefresh: true})
	t.Cleanup(restored.Stop)
	require.True(t, restored.Init(ctx))
	assert.Equal(t, want, restored.Current())
	assert.True(t, restored.TimerArmed())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRepeatedChecksKeepRefreshTime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	issued := clock.Now()
	f := newFixture(t, func(o *Options) { o.Clock = clock.Now })

	_, err := f.store.Login(context.Background(), Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	due, ok := f.store.NextRefresh()
	require.True(t, ok)
	assert.Equal(t, issued.Add(6900*time.Second), due)

	clock.Advance(time.Hour)
	f.store.CheckAndRefreshToken()
	due, ok = f.store.NextRefresh()
	require.True(t, ok)
	assert.Equal(t, issued.Add(6900*time.Second), due)

	// 剩余 200 秒时只能按最小间隔安排
	clock.Advance(3400 * time.Second)
	f.store.CheckAndRefreshToken()
	due, ok = f.store.NextRefresh()
	require.True(t, ok)
	assert.Equal(t, issued.Add(7060*time.Second), due)

	clock.Advance(time.Hour)
	f.store.CheckAndRefreshToken()
	assert.False(t, f.store.TimerArmed())
}

func TestRefreshRestartsLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	f := newFixture(t, func(o *Options) { o.Clock = clock.Now })
	ctx := context.Background()
	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = f.store.Refresh(ctx)
	require.NoError(t, err)
	due, ok := f.store.NextRefresh()
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(3300*time.Second), due)

	v, _, _ := f.kv.Get(ctx, KeyIssuedAt)
	assert.Equal(t, strconv.FormatInt(clock.Now().UnixMilli(), 10), v)

	restored := New(Options{Backend: f.backend, Storage: f.kv, AutoRefresh: true, Clock: clock.Now})
	t.Cleanup(restored.Stop)
	require.True(t, restored.Init(ctx))
	restoredDue, ok := restored.NextRefresh()
	require.True(t, ok)
	assert.Equal(t, due, restoredDue)
}

func TestRefreshKeepsMenuPermissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	menuPerms := []string{"system:admin:list", "system:admin:add"}
	require.NoError(t, storage.SetJSON(ctx, f.kv, KeyPermissions, menuPerms))
	_, err = f.store.Refresh(ctx)
	require.NoError(t, err)
	_, err = f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	var got []string
	ok, err := storage.GetJSON(ctx, f.kv, KeyPermissions, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, menuPerms, got)
}

func TestLogoutRunsHookOnce(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, func(o *Options) { o.OnLogout = func() { calls.Add(1) } })
	ctx := context.Background()

	require.NoError(t, f.store.Logout(ctx))
	assert.Zero(t, calls.Load())

	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	require.NoError(t, f.store.Logout(ctx))
	require.NoError(t, f.store.Logout(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoginOverSessionClearsMenus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.store.Login(ctx, Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	assert.Zero(t, f.menus.cleared)

	_, err = f.store.LoginBySms(ctx, SmsCredentials{Phone: "13900000000", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.menus.cleared)
	assert.True(t, f.store.IsLoggedIn())
}
