// Package app 组装控制台的各个组件。
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/notify"
	pkgRegistry "github.com/adminconsole/pkg/registry"
	"github.com/adminconsole/pkg/storage"
	"github.com/adminconsole/services/console/internal/api"
	"github.com/adminconsole/services/console/internal/gateway"
	"github.com/adminconsole/services/console/internal/guard"
	"github.com/adminconsole/services/console/internal/menu"
	"github.com/adminconsole/services/console/internal/router"
	"github.com/adminconsole/services/console/internal/session"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
)

// maxRedirects 一次导航最多跟随的重定向次数
const maxRedirects = 5

// Option 可选依赖
type Option func(*options)

type options struct {
	transport http.RoundTripper
	notifier  notify.Notifier
	store     storage.Store
	registry  registry.Registry
}

// WithTransport 替换 HTTP 传输层
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithNotifier 替换提示服务
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithStore 使用已有的持久化存储，不再按配置打开
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRegistry 使用已有的注册中心
func WithRegistry(r registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// Console 控制台
type Console struct {
	cfg *config.Config

	Store    storage.Store
	Gateway  *gateway.Gateway
	API      *api.Client
	Session  *session.Store
	Menus    *menu.Resolver
	Table    *router.Table
	History  *router.History
	Guard    *guard.Guard
	Notifier notify.Notifier

	registry  registry.Registry
	ownsStore bool
	log       *zap.Logger
}

// New 按配置创建控制台
func New(cfg *config.Config, opts ...Option) (*Console, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Console{cfg: cfg, registry: o.registry, log: logger.Named("console")}

	c.Notifier = o.notifier
	if c.Notifier == nil {
		c.Notifier = notify.NewZap(logger.Named("console"))
	}

	c.Store = o.store
	if c.Store == nil {
		s, err := storage.Open(&cfg.Storage)
		if err != nil {
			return nil, err
		}
		c.Store = s
		c.ownsStore = true
	} else if cfg.Storage.Prefix != "" {
		c.Store = storage.WithPrefix(c.Store, cfg.Storage.Prefix)
	}

	gwOpts := api.GatewayOptions(gateway.OptionsFromConfig(&cfg.API))
	gwOpts.Transport = o.transport
	gwOpts.Notifier = c.Notifier
	c.Gateway = gateway.New(gwOpts)
	c.API = api.New(c.Gateway, cfg.API.ClientID, cfg.API.ClientSecret)

	c.Table = router.NewTable()
	c.History = router.NewHistory()
	c.Menus = menu.NewResolver(c.API, c.Store)

	sessOpts := session.OptionsFromConfig(&cfg.Session)
	sessOpts.Backend = c.API
	sessOpts.Storage = c.Store
	sessOpts.Menus = c.Menus
	sessOpts.Navigator = c.History
	sessOpts.Refresher = c.Gateway
	sessOpts.OnLogout = c.dropRoutes
	c.Session = session.New(sessOpts)
	c.Gateway.SetAuthenticator(c.Session.Authenticator())

	c.Guard = guard.New(guard.Options{
		Session:    c.Session,
		Refresher:  c.Gateway,
		Menus:      c.Menus,
		Table:      c.Table,
		Notifier:   c.Notifier,
		RetryDelay: cfg.Navigation.RetryDelay(),
	})
	return c, nil
}

// Start 解析接口地址并恢复上次的会话
func (c *Console) Start(ctx context.Context) error {
	if err := c.discover(); err != nil {
		return err
	}
	if c.Session.Init(ctx) && c.Menus.Restore(ctx) {
		router.Install(c.Table, c.Menus.Routes())
	}
	c.log.Info("console started",
		zap.String("baseURL", c.Gateway.BaseURL()),
		zap.Bool("loggedIn", c.Session.IsLoggedIn()),
	)
	return nil
}

// discover 启用服务发现时用注册中心里的节点地址替换 api.baseURL
func (c *Console) discover() error {
	d := c.cfg.API.Discovery
	if !d.Enabled {
		return nil
	}
	reg := c.registry
	if reg == nil {
		r, err := pkgRegistry.New(d.Registry)
		if err != nil {
			return errors.Configuration(err.Error())
		}
		reg = r
	}
	baseURL, err := pkgRegistry.ResolveBaseURL(reg, d.Service, d.BasePath)
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, 500, "服务发现失败")
	}
	c.Gateway.SetBaseURL(baseURL)
	return nil
}

// Navigate 经过守卫进入页面，跟随重定向，返回最终裁决
func (c *Console) Navigate(ctx context.Context, raw string) guard.Decision {
	loc := router.ParseLocation(raw)
	var d guard.Decision
	for i := 0; i < maxRedirects; i++ {
		d = c.Guard.Before(ctx, loc)
		if d.Action == guard.Allow {
			c.History.Push(d.Target)
			return d
		}
		loc = router.ParseLocation(d.Target)
	}
	c.log.Warn("too many redirects", zap.String("path", raw))
	c.History.Push(d.Target)
	return d
}

// Login 账号密码登录后进入 redirect 指定的页面
func (c *Console) Login(ctx context.Context, creds session.Credentials) (guard.Decision, error) {
	if _, err := c.Session.Login(ctx, creds); err != nil {
		return guard.Decision{}, err
	}
	return c.enter(ctx), nil
}

// LoginBySms 短信登录后进入 redirect 指定的页面
func (c *Console) LoginBySms(ctx context.Context, creds session.SmsCredentials) (guard.Decision, error) {
	if _, err := c.Session.LoginBySms(ctx, creds); err != nil {
		return guard.Decision{}, err
	}
	return c.enter(ctx), nil
}

// enter 换成新用户的路由后跳转
func (c *Console) enter(ctx context.Context) guard.Decision {
	c.dropRoutes()
	if c.Menus.Loaded() {
		router.Install(c.Table, c.Menus.Routes())
	}
	c.Notifier.Success("登录成功")
	return c.Navigate(ctx, c.afterLogin())
}

// dropRoutes 移除上一个会话注册的动态路由
func (c *Console) dropRoutes() {
	if n := c.Table.RemoveDynamic(); n > 0 {
		c.log.Debug("dynamic routes removed", zap.Int("count", n))
	}
}

func (c *Console) afterLogin() string {
	loc := c.History.Location()
	if loc.Path == router.LoginPath {
		if r := loc.Query.Get("redirect"); r != "" {
			return r
		}
	}
	return router.HomePath
}

// Logout 退出登录
func (c *Console) Logout(ctx context.Context) error {
	return c.Session.Logout(ctx)
}

// Page 打开页面的结果
type Page struct {
	Decision guard.Decision
	Data     json.RawMessage
}

// Open 进入页面并加载页面数据
func (c *Console) Open(ctx context.Context, raw string) (*Page, error) {
	d := c.Navigate(ctx, raw)
	page := &Page{Decision: d}
	if d.Action != guard.Allow {
		return page, nil
	}
	src := d.Route.View.Source
	if src == nil {
		return page, nil
	}
	data, err := c.API.Call(ctx, src.Method, src.Path, src.Query, src.Body)
	if err != nil {
		return page, fmt.Errorf("load %s: %w", d.Route.View.Key, err)
	}
	page.Data = data
	return page, nil
}

// Close 停止自动刷新并关闭存储
func (c *Console) Close() error {
	c.Session.Stop()
	if c.ownsStore {
		return storage.Close(c.Store)
	}
	return nil
}
