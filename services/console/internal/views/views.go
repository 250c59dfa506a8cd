// Package views 是控制台页面的封闭枚举。
//
// 菜单中的组件键只能映射到这里登记的页面，未登记的键回退到首页。
package views

import (
	"net/http"
	"net/url"
	"sort"

	"github.com/adminconsole/pkg/errors"
)

// Source 页面加载时发出的数据请求
type Source struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// View 一个可加载的页面
type View struct {
	Key    string
	Title  string
	Source *Source // 首页等无数据请求的页面为空
}

func page(path string) *Source {
	return &Source{
		Method: http.MethodPost,
		Path:   path,
		Query:  url.Values{"current": {"1"}, "size": {"10"}},
		Body:   map[string]interface{}{},
	}
}

func get(path string) *Source {
	return &Source{Method: http.MethodGet, Path: path}
}

// 页面组件键
const (
	KeyDashboard = "Dashboard"
	KeyAdmin     = "system/user/index"
	KeyRole      = "system/role/index"
	KeyMenu      = "system/menu/index"
	KeyTenant    = "system/tenant/index"
	KeyOperLog   = "monitor/operlog/index"
	KeyServer    = "monitor/server/index"
	KeyJvm       = "monitor/jvm/index"
	KeyRedis     = "monitor/redis/index"
	KeyOnline    = "monitor/online/index"
	KeyInfo      = "monitor/info/index"
)

var registry = map[string]View{
	KeyDashboard: {Key: KeyDashboard, Title: "首页"},
	KeyAdmin:     {Key: KeyAdmin, Title: "用户管理", Source: page("/sms/admin/page")},
	KeyRole:      {Key: KeyRole, Title: "角色管理", Source: page("/sms/role/page")},
	KeyMenu:      {Key: KeyMenu, Title: "菜单管理", Source: get("/sms/menu/tree")},
	KeyTenant:    {Key: KeyTenant, Title: "租户管理", Source: page("/sms/tenant/page")},
	KeyOperLog:   {Key: KeyOperLog, Title: "操作日志", Source: page("/sms/operlog/page")},
	KeyServer:    {Key: KeyServer, Title: "服务监控", Source: get("/sms/monitor/server")},
	KeyJvm:       {Key: KeyJvm, Title: "JVM监控", Source: get("/sms/monitor/jvm")},
	KeyRedis:     {Key: KeyRedis, Title: "缓存监控", Source: get("/sms/monitor/redis")},
	KeyOnline:    {Key: KeyOnline, Title: "在线用户", Source: get("/sms/monitor/online")},
	KeyInfo:      {Key: KeyInfo, Title: "系统信息", Source: get("/sms/monitor/info")},
}

// Default 默认页面
func Default() View {
	return registry[KeyDashboard]
}

// Lookup 查找页面
func Lookup(key string) (View, bool) {
	v, ok := registry[key]
	return v, ok
}

// Resolve 解析组件键；未登记的键返回默认页面和配置错误
func Resolve(key string) (View, error) {
	if v, ok := registry[key]; ok {
		return v, nil
	}
	return Default(), errors.Configuration("未知的页面组件: " + key)
}

// Keys 所有已登记的组件键
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasSource 页面是否需要加载数据
func (v View) HasSource() bool {
	return v.Source != nil
}
