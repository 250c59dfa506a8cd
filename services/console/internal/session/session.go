// Package session 管理登录态：令牌、用户信息与自动刷新。
package session

import (
	"context"
	"sync"
	"time"

	"github.com/adminconsole/pkg/auth"
	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/storage"
	"github.com/adminconsole/services/console/internal/api"
	"github.com/adminconsole/services/console/internal/menu"
	"github.com/adminconsole/services/console/internal/router"
	"go.uber.org/zap"
)

// Session 当前登录态，AccessToken 非空即视为已登录
type Session struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiresIn    int64    `json:"expiresIn"` // 签发时的有效秒数
	UserID       int64    `json:"userId"`
	Username     string   `json:"username"`
	NickName     string   `json:"nickName"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"` // 持久化副本由菜单状态维护
}

// LoggedIn 是否已登录
func (s Session) LoggedIn() bool {
	return s.AccessToken != ""
}

// 账号类型
const (
	LoginByUsername = 0
	LoginByPhone    = 1
	LoginByEmail    = 2
)

// Credentials 账号密码，Type 为账号类型
type Credentials struct {
	Username   string
	Password   string
	Captcha    string
	CaptchaKey string
	Type       int
}

// SmsCredentials 短信验证码
type SmsCredentials struct {
	Phone string
	Code  string
}

// Backend 会话依赖的认证接口，由 api.Client 实现
type Backend interface {
	PublicKey(ctx context.Context) (string, error)
	Login(ctx context.Context, req *api.LoginRequest) (*api.TokenPayload, error)
	LoginBySms(ctx context.Context, req *api.SmsLoginRequest) (*api.TokenPayload, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenPayload, error)
	Logout(ctx context.Context) error
	CurrentUserInfo(ctx context.Context) (*api.UserInfo, error)
}

// Menus 会话需要联动的菜单状态，由 menu.Resolver 实现
type Menus interface {
	Apply(ctx context.Context, nodes []menu.Node) error
	Restore(ctx context.Context) bool
	Clear(ctx context.Context)
}

// Navigator 登出后的跳转，由 router.History 实现
type Navigator interface {
	Current() string
	Push(raw string)
}

// Refresher 定时刷新的入口，由网关的单飞协调器实现
type Refresher interface {
	RefreshSession(ctx context.Context) error
}

// Options 会话选项
type Options struct {
	Backend   Backend
	Storage   storage.Store
	Menus     Menus
	Navigator Navigator
	Refresher Refresher
	Encryptor auth.Encryptor
	// OnLogout 会话清除后调用，用于移除该用户的路由
	OnLogout func()
	Clock    func() time.Time

	RefreshLead  time.Duration
	RefreshFloor time.Duration
	ExpiryGuard  time.Duration
	AutoRefresh  bool
}

// OptionsFromConfig 由配置生成刷新参数
func OptionsFromConfig(cfg *config.SessionConfig) Options {
	return Options{
		RefreshLead:  time.Duration(cfg.RefreshLead) * time.Second,
		RefreshFloor: time.Duration(cfg.RefreshFloor) * time.Second,
		ExpiryGuard:  time.Duration(cfg.ExpiryGuard) * time.Second,
		AutoRefresh:  cfg.AutoRefresh,
	}
}

// Store 会话存储
type Store struct {
	mu         sync.RWMutex
	sess       Session
	publicKey  string
	loggingOut bool
	issuedAt   time.Time // 当前访问令牌的签发时刻

	timer    *time.Timer
	timerGen uint64
	due      time.Time

	opts Options
	log  *zap.Logger
}

// New 创建会话存储
func New(opts Options) *Store {
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	if opts.Encryptor == nil {
		opts.Encryptor = auth.RSAEncryptor{}
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = 5 * time.Minute
	}
	if opts.RefreshFloor <= 0 {
		opts.RefreshFloor = time.Minute
	}
	if opts.ExpiryGuard <= 0 {
		opts.ExpiryGuard = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{opts: opts, log: logger.Named("session")}
}

// SetRefresher 绑定定时刷新入口
func (s *Store) SetRefresher(r Refresher) {
	s.mu.Lock()
	s.opts.Refresher = r
	s.mu.Unlock()
}

// SetNavigator 绑定登出跳转
func (s *Store) SetNavigator(n Navigator) {
	s.mu.Lock()
	s.opts.Navigator = n
	s.mu.Unlock()
}

// Current 当前会话快照
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	out := s.sess
	out.Roles = append([]string(nil), s.sess.Roles...)
	out.Permissions = append([]string(nil), s.sess.Permissions...)
	return out
}

// IsLoggedIn 是否已登录
func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.AccessToken != ""
}

// AccessToken 当前访问令牌
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.AccessToken
}

// Init 从持久化存储恢复会话并启动自动刷新
func (s *Store) Init(ctx context.Context) bool {
	sess, issuedAt, err := load(ctx, s.opts.Storage)
	if err != nil {
		s.log.Warn("恢复会话失败", zap.Error(err))
		return false
	}
	if !sess.LoggedIn() {
		return false
	}
	if issuedAt.IsZero() {
		issuedAt = s.opts.Clock()
	}
	s.mu.Lock()
	s.sess = sess
	s.issuedAt = issuedAt
	s.mu.Unlock()
	s.log.Info("session restored", zap.String("username", sess.Username))
	s.CheckAndRefreshToken()
	return true
}

// encryptPassword 使用服务端公钥加密密码；取公钥失败时发送明文
func (s *Store) encryptPassword(ctx context.Context, password string) (string, error) {
	s.mu.RLock()
	key := s.publicKey
	s.mu.RUnlock()

	if key == "" {
		fetched, err := s.opts.Backend.PublicKey(ctx)
		if err != nil || fetched == "" {
			s.log.Warn("获取公钥失败，密码将不加密发送", zap.Error(err))
			return password, nil
		}
		key = fetched
		s.mu.Lock()
		s.publicKey = key
		s.mu.Unlock()
	}

	encrypted, err := s.opts.Encryptor.Encrypt(key, password)
	if err != nil {
		return "", errors.Internal(err, "密码加密失败")
	}
	return encrypted, nil
}

// Login 账号密码登录
func (s *Store) Login(ctx context.Context, c Credentials) (*Session, error) {
	password, err := s.encryptPassword(ctx, c.Password)
	if err != nil {
		return nil, err
	}
	req := &api.LoginRequest{
		Username:   c.Username,
		Password:   password,
		Captcha:    c.Captcha,
		CaptchaKey: c.CaptchaKey,
	}
	if c.Type != LoginByUsername {
		t := c.Type
		req.Type = &t
	}
	p, err := s.opts.Backend.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.Username == "" {
		p.Username = c.Username
	}
	return s.establish(ctx, p)
}

// LoginBySms 短信验证码登录
func (s *Store) LoginBySms(ctx context.Context, c SmsCredentials) (*Session, error) {
	p, err := s.opts.Backend.LoginBySms(ctx, &api.SmsLoginRequest{Phone: c.Phone, Code: c.Code})
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, p)
}

// establish 保存登录结果，再拉取扩展信息；扩展信息失败不影响登录
func (s *Store) establish(ctx context.Context, p *api.TokenPayload) (*Session, error) {
	if p == nil || p.AccessToken == "" {
		return nil, errors.Auth(401, "登录失败：未返回访问令牌")
	}

	s.mu.Lock()
	switched := s.sess.AccessToken != ""
	s.sess = Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    p.ExpiresIn,
		UserID:       p.UserID,
		Username:     p.Username,
		NickName:     p.NickName,
	}
	s.issuedAt = s.opts.Clock()
	sess, issuedAt := s.snapshotLocked(), s.issuedAt
	s.mu.Unlock()
	// 换号登录时丢弃上一个用户的菜单
	if switched && s.opts.Menus != nil {
		s.opts.Menus.Clear(ctx)
	}
	s.persist(ctx, sess, issuedAt)

	info, err := s.opts.Backend.CurrentUserInfo(ctx)
	if err != nil {
		s.log.Warn("获取用户信息失败，使用登录返回的数据", zap.Error(err))
		if s.opts.Menus != nil {
			s.opts.Menus.Restore(ctx)
		}
	} else {
		s.mu.Lock()
		if info.UserID != 0 {
			s.sess.UserID = info.UserID
		}
		if info.Username != "" {
			s.sess.Username = info.Username
		}
		if info.NickName != "" {
			s.sess.NickName = info.NickName
		}
		s.sess.Roles = append([]string(nil), info.Roles...)
		s.sess.Permissions = append([]string(nil), info.Permissions...)
		sess, issuedAt = s.snapshotLocked(), s.issuedAt
		s.mu.Unlock()
		s.persist(ctx, sess, issuedAt)

		if s.opts.Menus != nil && info.Menus != nil {
			if err := s.opts.Menus.Apply(ctx, info.Menus); err != nil {
				s.log.Warn("保存菜单失败", zap.Error(err))
			}
		}
	}

	s.log.Info("login succeeded", zap.String("username", sess.Username), zap.Int64("expiresIn", sess.ExpiresIn))
	s.CheckAndRefreshToken()
	return &sess, nil
}

// Refresh 刷新令牌，只更新服务端返回的字段
func (s *Store) Refresh(ctx context.Context) (*Session, error) {
	s.mu.RLock()
	token, refreshToken := s.sess.AccessToken, s.sess.RefreshToken
	s.mu.RUnlock()
	if token == "" {
		return nil, errors.ErrNotLoggedIn
	}

	p, err := s.opts.Backend.Refresh(ctx, refreshToken)
	if err != nil {
		s.log.Warn("刷新令牌失败", zap.Error(err))
		if errors.IsKind(err, errors.KindAuth) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.KindAuth, 401, errors.MsgSessionExpired)
	}

	s.mu.Lock()
	if s.sess.AccessToken == "" {
		// 刷新期间已登出
		s.mu.Unlock()
		return nil, errors.ErrSessionExpired
	}
	if p.AccessToken != "" {
		s.sess.AccessToken = p.AccessToken
		s.issuedAt = s.opts.Clock()
	}
	if p.ExpiresIn > 0 {
		s.sess.ExpiresIn = p.ExpiresIn
	}
	if p.RefreshToken != "" {
		s.sess.RefreshToken = p.RefreshToken
	}
	sess, issuedAt := s.snapshotLocked(), s.issuedAt
	s.mu.Unlock()

	s.persist(ctx, sess, issuedAt)
	s.log.Info("token refreshed", zap.Int64("expiresIn", sess.ExpiresIn))
	s.CheckAndRefreshToken()
	return &sess, nil
}

// Logout 退出登录。未登录或正在退出时直接返回
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.sess.AccessToken == "" || s.loggingOut {
		s.mu.Unlock()
		return nil
	}
	s.loggingOut = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loggingOut = false
		s.mu.Unlock()
	}()

	if err := s.opts.Backend.Logout(ctx); err != nil {
		s.log.Warn("退出接口调用失败", zap.Error(err))
	}

	s.mu.Lock()
	s.sess = Session{}
	s.issuedAt = time.Time{}
	s.stopTimerLocked()
	nav := s.opts.Navigator
	s.mu.Unlock()

	erase(ctx, s.opts.Storage, s.log)
	if s.opts.Menus != nil {
		s.opts.Menus.Clear(ctx)
	}
	if s.opts.OnLogout != nil {
		s.opts.OnLogout()
	}
	if nav != nil && router.ParseLocation(nav.Current()).Path != router.LoginPath {
		nav.Push(router.LoginPath)
	}
	s.log.Info("logged out")
	return nil
}
