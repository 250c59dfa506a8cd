package router

import (
	stderrors "errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/services/console/internal/views"
	"go.uber.org/zap"
)

// 固定路由
const (
	LoginPath     = "/login"
	HomePath      = "/"
	DashboardPath = "/dashboard"
	LayoutName    = "Layout"
	LoginName     = "Login"
	DashboardName = "Dashboard"
	maxRedirects  = 8
)

var (
	ErrParentNotFound = stderrors.New("parent route not found")
	ErrDuplicateName  = stderrors.New("route name already registered")
)

// Meta 路由元信息
type Meta struct {
	Title        string `json:"title"`
	Icon         string `json:"icon,omitempty"`
	Perms        string `json:"perms,omitempty"`
	MenuID       int64  `json:"menuId"`
	RequiresAuth bool   `json:"requiresAuth"`
}

// Route 路由描述。作为子路由注册时 Path 为相对路径
type Route struct {
	Path     string     `json:"path"`
	Name     string     `json:"name"`
	Redirect string     `json:"redirect,omitempty"`
	View     views.View `json:"-"`
	Meta     Meta       `json:"meta"`
}

// Resolved 已注册的路由
type Resolved struct {
	Route
	FullPath string `json:"fullPath"`
	Parent   string `json:"parent,omitempty"`
	Dynamic  bool   `json:"dynamic"`
}

// Table 路由表
type Table struct {
	mu     sync.RWMutex
	routes map[string]*Resolved // key: 完整路径
	names  map[string]string    // name -> 完整路径
	order  []string
	log    *zap.Logger
}

// NewTable 创建路由表并注册固定路由
func NewTable() *Table {
	t := &Table{
		routes: make(map[string]*Resolved),
		names:  make(map[string]string),
		log:    logger.Named("router"),
	}
	t.add("", Route{Path: LoginPath, Name: LoginName, Meta: Meta{Title: "登录"}}, false)
	t.add("", Route{
		Path:     HomePath,
		Name:     LayoutName,
		Redirect: DashboardPath,
		Meta:     Meta{RequiresAuth: true},
	}, false)
	t.add(LayoutName, Route{
		Path: "dashboard",
		Name: DashboardName,
		View: views.Default(),
		Meta: Meta{Title: "首页", Icon: "house", RequiresAuth: true},
	}, false)
	return t
}

// joinPath 拼接父子路径
func joinPath(parent, child string) string {
	if strings.HasPrefix(child, "/") || parent == "" {
		return path.Clean("/" + child)
	}
	return path.Clean(parent + "/" + child)
}

func (t *Table) add(parentName string, r Route, dynamic bool) (*Resolved, error) {
	parentPath := ""
	if parentName != "" {
		p, ok := t.names[parentName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrParentNotFound, parentName)
		}
		parentPath = p
	}
	if _, ok := t.names[r.Name]; ok && r.Name != "" {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, r.Name)
	}

	full := joinPath(parentPath, r.Path)
	res := &Resolved{Route: r, FullPath: full, Parent: parentName, Dynamic: dynamic}
	t.routes[full] = res
	if r.Name != "" {
		t.names[r.Name] = full
	}
	t.order = append(t.order, full)
	return res, nil
}

// AddRoute 在父路由下注册子路由
func (t *Table) AddRoute(parentName string, r Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	res, err := t.add(parentName, r, true)
	if err != nil {
		return err
	}
	t.log.Debug("注册路由",
		zap.String("name", r.Name),
		zap.String("path", res.FullPath),
		zap.String("view", r.View.Key),
		zap.String("perms", r.Meta.Perms),
	)
	return nil
}

// HasPath 完整路径是否已注册
func (t *Table) HasPath(fullPath string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.routes[path.Clean("/"+fullPath)]
	return ok
}

// FullPath 计算子路由注册后的完整路径
func (t *Table) FullPath(parentName, relative string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.names[parentName]
	if !ok {
		return "", false
	}
	return joinPath(p, relative), true
}

// Resolve 解析路径，跟随重定向；未命中时 ok 为 false
func (t *Table) Resolve(p string) (Resolved, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p = path.Clean("/" + p)
	for i := 0; i < maxRedirects; i++ {
		r, ok := t.routes[p]
		if !ok {
			return Resolved{}, false
		}
		if r.Redirect == "" {
			return *r, true
		}
		p = path.Clean("/" + r.Redirect)
	}
	return Resolved{}, false
}

// Routes 按注册顺序返回所有路由
func (t *Table) Routes() []Resolved {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Resolved, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, *t.routes[p])
	}
	return out
}

// RemoveDynamic 移除所有动态注册的路由，返回移除数量
func (t *Table) RemoveDynamic() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.order[:0]
	removed := 0
	for _, p := range t.order {
		r := t.routes[p]
		if !r.Dynamic {
			kept = append(kept, p)
			continue
		}
		delete(t.routes, p)
		delete(t.names, r.Name)
		removed++
	}
	t.order = kept
	return removed
}

// Install 在 Layout 下注册路由，完整路径已存在的跳过，返回新增数量
func Install(t *Table, routes []Route) int {
	added := 0
	for _, r := range routes {
		full, ok := t.FullPath(LayoutName, r.Path)
		if !ok || t.HasPath(full) {
			continue
		}
		if err := t.AddRoute(LayoutName, r); err != nil {
			t.log.Warn("注册路由失败", zap.String("name", r.Name), zap.Error(err))
			continue
		}
		added++
	}
	if added > 0 {
		t.log.Info("routes installed", zap.Int("added", added))
	}
	return added
}
