// Package guard 在每次导航前检查登录态、加载菜单并校验页面权限。
package guard

import (
	"context"
	"time"

	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/notify"
	"github.com/adminconsole/services/console/internal/menu"
	"github.com/adminconsole/services/console/internal/router"
	"go.uber.org/zap"
)

// Action 导航结果
type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Decision 守卫的裁决
type Decision struct {
	Action  Action
	Target  string          // 最终地址（含查询参数）
	Route   router.Resolved // 放行时命中的路由
	Blocked bool            // 因权限不足被拦截
	Message string          // 已提示给用户的信息
}

// Session 守卫读取的会话能力
type Session interface {
	IsLoggedIn() bool
	CheckAndRefreshToken()
	Logout(ctx context.Context) error
}

// Refresher 菜单加载遇到认证错误时的刷新入口
type Refresher interface {
	RefreshSession(ctx context.Context) error
}

// Menus 守卫使用的菜单能力，由 menu.Resolver 实现
type Menus interface {
	Loaded() bool
	Restore(ctx context.Context) bool
	Fetch(ctx context.Context) ([]menu.Node, error)
	Routes() []router.Route
	HasPermission(perm string) bool
}

// Options 守卫依赖
type Options struct {
	Session    Session
	Refresher  Refresher
	Menus      Menus
	Table      *router.Table
	Notifier   notify.Notifier
	RetryDelay time.Duration
}

// Guard 导航守卫，本身不持有数据
type Guard struct {
	opts Options
	log  *zap.Logger
}

// New 创建守卫
func New(opts Options) *Guard {
	if opts.Notifier == nil {
		opts.Notifier = notify.NewZap(logger.Named("console"))
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	return &Guard{opts: opts, log: logger.Named("guard")}
}

func redirect(target string) Decision {
	return Decision{Action: Redirect, Target: target}
}

// Before 在进入 to 之前执行
func (g *Guard) Before(ctx context.Context, to router.Location) Decision {
	loggedIn := g.opts.Session.IsLoggedIn()

	if to.Path == router.LoginPath {
		if loggedIn {
			return redirect(router.HomePath)
		}
		res, _ := g.opts.Table.Resolve(router.LoginPath)
		return Decision{Action: Allow, Target: to.FullPath(), Route: res}
	}

	res, found := g.opts.Table.Resolve(to.Path)
	// 未命中的路径按需要登录处理
	requiresAuth := !found || res.Meta.RequiresAuth
	if !loggedIn {
		if requiresAuth {
			return redirect(router.LoginLocation(to.FullPath()).FullPath())
		}
		return Decision{Action: Allow, Target: to.FullPath(), Route: res}
	}

	g.opts.Session.CheckAndRefreshToken()

	if !g.opts.Menus.Loaded() {
		if d, stop := g.loadMenus(ctx, to); stop {
			return d
		}
		res, found = g.opts.Table.Resolve(to.Path)
	}

	if !found && g.opts.Menus.Loaded() {
		if !g.sleep(ctx) {
			return redirect(router.HomePath)
		}
		router.Install(g.opts.Table, g.opts.Menus.Routes())
		res, found = g.opts.Table.Resolve(to.Path)
	}
	if !found {
		g.log.Warn("route not found", zap.String("path", to.Path))
		g.opts.Notifier.Warn(errors.MsgPageNotFound)
		d := redirect(router.HomePath)
		d.Message = errors.MsgPageNotFound
		return d
	}

	if perm := res.Meta.Perms; perm != "" && !g.opts.Menus.HasPermission(perm) {
		g.log.Warn("route denied", zap.String("path", res.FullPath), zap.String("perms", perm))
		g.opts.Notifier.Error(errors.MsgRouteDenied)
		d := redirect(router.HomePath)
		d.Blocked = true
		d.Message = errors.MsgRouteDenied
		return d
	}

	target := res.FullPath
	if len(to.Query) > 0 {
		target = router.Location{Path: res.FullPath, Query: to.Query}.FullPath()
	}
	return Decision{Action: Allow, Target: target, Route: res}
}

// loadMenus 先用缓存注册路由，再从服务端获取最新菜单。stop 为 true 时直接返回 d
func (g *Guard) loadMenus(ctx context.Context, to router.Location) (d Decision, stop bool) {
	if g.opts.Menus.Restore(ctx) {
		router.Install(g.opts.Table, g.opts.Menus.Routes())
	}

	_, err := g.opts.Menus.Fetch(ctx)
	if err != nil && errors.IsKind(err, errors.KindAuth) {
		g.log.Info("menu fetch unauthorized, refreshing", zap.Error(err))
		if rerr := g.refresh(ctx); rerr != nil {
			err = rerr
		} else {
			_, err = g.opts.Menus.Fetch(ctx)
		}
		if err != nil && errors.IsKind(err, errors.KindAuth) {
			if lerr := g.opts.Session.Logout(context.WithoutCancel(ctx)); lerr != nil {
				g.log.Warn("logout failed", zap.Error(lerr))
			}
			return redirect(router.LoginLocation(to.FullPath()).FullPath()), true
		}
	}

	if err != nil {
		g.log.Warn("加载菜单失败", zap.Error(err))
		if !g.opts.Menus.Loaded() {
			g.opts.Notifier.Error(errors.MsgMenuLoad)
		}
		return Decision{}, false
	}

	router.Install(g.opts.Table, g.opts.Menus.Routes())
	return Decision{}, false
}

func (g *Guard) refresh(ctx context.Context) error {
	if g.opts.Refresher == nil {
		return errors.ErrNoRefreshToken
	}
	err := g.opts.Refresher.RefreshSession(ctx)
	if err != nil && !errors.IsKind(err, errors.KindAuth) {
		return errors.Wrap(err, errors.KindAuth, 401, errors.MsgSessionExpired)
	}
	return err
}

// sleep 等待路由注册，ctx 取消时返回 false
func (g *Guard) sleep(ctx context.Context) bool {
	t := time.NewTimer(g.opts.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
