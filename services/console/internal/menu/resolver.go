package menu

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/storage"
	"github.com/adminconsole/services/console/internal/router"
	"github.com/adminconsole/services/console/internal/views"
	"go.uber.org/zap"
)

// 持久化键
const (
	KeyMenuTree    = "menuTree"
	KeyPermissions = "permissions"
)

// Source 当前用户菜单的数据来源
type Source interface {
	CurrentUserMenus(ctx context.Context) ([]Node, error)
}

// Resolver 菜单与权限解析器
type Resolver struct {
	mu     sync.RWMutex
	source Source
	store  storage.Store
	tree   []Node
	list   []Node
	perms  map[string]struct{}
	loaded bool
	log    *zap.Logger
}

// NewResolver 创建解析器
func NewResolver(source Source, store storage.Store) *Resolver {
	return &Resolver{
		source: source,
		store:  store,
		perms:  make(map[string]struct{}),
		log:    logger.Named("menu"),
	}
}

// Fetch 从服务端获取菜单并更新状态
func (r *Resolver) Fetch(ctx context.Context) ([]Node, error) {
	nodes, err := r.source.CurrentUserMenus(ctx)
	if err != nil {
		r.log.Warn("获取菜单失败", zap.Error(err))
		return nil, errors.MenuLoad(err)
	}
	if err := r.Apply(ctx, nodes); err != nil {
		return nil, err
	}
	return r.Tree(), nil
}

// Apply 用已获取的菜单树更新状态并持久化
func (r *Resolver) Apply(ctx context.Context, nodes []Node) error {
	tree := withoutHome(nodes)
	perms := ExtractPermissions(tree)

	r.mu.Lock()
	r.setLocked(tree, perms)
	r.mu.Unlock()

	if err := storage.SetJSON(ctx, r.store, KeyMenuTree, tree); err != nil {
		return errors.MenuLoad(fmt.Errorf("persist menu tree: %w", err))
	}
	if err := storage.SetJSON(ctx, r.store, KeyPermissions, r.Permissions()); err != nil {
		return errors.MenuLoad(fmt.Errorf("persist permissions: %w", err))
	}
	return nil
}

func (r *Resolver) setLocked(tree []Node, perms []string) {
	r.tree = tree
	r.list = append([]Node{Home()}, Flatten(tree)...)
	r.perms = make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if p != "" {
			r.perms[p] = struct{}{}
		}
	}
	r.loaded = true
}

// Restore 从持久化存储恢复，数据缺失或损坏时保持未加载状态
func (r *Resolver) Restore(ctx context.Context) bool {
	var tree []Node
	ok, err := storage.GetJSON(ctx, r.store, KeyMenuTree, &tree)
	if err != nil {
		r.log.Warn("恢复菜单数据失败", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	tree = withoutHome(tree)

	var perms []string
	ok, err = storage.GetJSON(ctx, r.store, KeyPermissions, &perms)
	if err != nil || !ok {
		if err != nil {
			r.log.Warn("恢复权限数据失败", zap.Error(err))
		}
		perms = ExtractPermissions(tree)
	}

	r.mu.Lock()
	r.setLocked(tree, perms)
	r.mu.Unlock()
	r.log.Debug("menus restored", zap.Int("nodes", len(tree)), zap.Int("perms", len(perms)))
	return true
}

// Clear 清空状态与持久化数据
func (r *Resolver) Clear(ctx context.Context) {
	r.mu.Lock()
	r.tree = nil
	r.list = nil
	r.perms = make(map[string]struct{})
	r.loaded = false
	r.mu.Unlock()

	if err := r.store.Delete(ctx, KeyMenuTree, KeyPermissions); err != nil {
		r.log.Warn("清除菜单数据失败", zap.Error(err))
	}
}

// Loaded 菜单是否已加载
func (r *Resolver) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Tree 原始菜单树（不含首页）
func (r *Resolver) Tree() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Node(nil), r.tree...)
}

// List 扁平菜单列表，首页在第一位
func (r *Resolver) List() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Node(nil), r.list...)
}

// Permissions 排序后的权限标识
func (r *Resolver) Permissions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.perms))
	for p := range r.perms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasPermission 权限检查，空标识总是放行
func (r *Resolver) HasPermission(perm string) bool {
	if perm == "" {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.perms[perm]
	return ok
}

// Routes 由页面菜单生成子路由
func (r *Resolver) Routes() []router.Route {
	list := r.List()
	routes := make([]router.Route, 0, len(list))
	for _, n := range list {
		if !n.Routable() {
			continue
		}
		view, err := views.Resolve(n.Component)
		if err != nil {
			r.log.Warn("组件未登记，使用默认页面",
				zap.Int64("menuId", n.ID),
				zap.String("component", n.Component),
				zap.Error(err),
			)
		}
		routes = append(routes, router.Route{
			Path: strings.TrimPrefix(n.Path, "/"),
			Name: fmt.Sprintf("Menu_%d", n.ID),
			View: view,
			Meta: router.Meta{
				Title:        n.MenuName,
				Icon:         n.Icon,
				Perms:        n.Perms,
				MenuID:       n.ID,
				RequiresAuth: true,
			},
		})
	}
	return routes
}

// SidebarMenus 侧边栏菜单：启用且可见的顶层目录与页面，首页在前
func (r *Resolver) SidebarMenus() []Node {
	tree := r.Tree()
	out := make([]Node, 0, len(tree)+1)
	out = append(out, Home())
	for _, n := range tree {
		if (n.MenuType == TypeDirectory || n.MenuType == TypePage) &&
			n.Status == StatusEnabled && n.Visible == VisibleShown {
			out = append(out, n)
		}
	}
	return out
}
