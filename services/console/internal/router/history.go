package router

import (
	"net/url"
	"strings"
	"sync"
)

// Location 导航目标
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation 解析形如 /path?a=b 的地址
func ParseLocation(raw string) Location {
	p, q, _ := strings.Cut(raw, "?")
	if p == "" {
		p = HomePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	query, _ := url.ParseQuery(q)
	return Location{Path: p, Query: query}
}

// FullPath 带查询参数的完整地址
func (l Location) FullPath() string {
	if len(l.Query) == 0 {
		return l.Path
	}
	return l.Path + "?" + l.Query.Encode()
}

// LoginLocation 登录页地址，携带回跳目标
func LoginLocation(redirect string) Location {
	loc := Location{Path: LoginPath}
	if redirect != "" {
		loc.Query = url.Values{"redirect": {redirect}}
	}
	return loc
}

// History 当前所在页面与访问记录
type History struct {
	mu      sync.RWMutex
	current Location
	entries []string
}

// NewHistory 创建访问记录，初始位于登录页
func NewHistory() *History {
	return &History{current: Location{Path: LoginPath}}
}

// Current 当前路径
func (h *History) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Path
}

// Location 当前位置
func (h *History) Location() Location {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Push 进入新页面
func (h *History) Push(raw string) {
	loc := ParseLocation(raw)
	h.mu.Lock()
	h.current = loc
	h.entries = append(h.entries, loc.FullPath())
	h.mu.Unlock()
}

// Entries 访问记录副本
func (h *History) Entries() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}
