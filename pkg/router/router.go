// Package router 按控制器批量注册 fiber 路由。
package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Route 路由配置
type Route struct {
	Method      string          // HTTP方法
	Path        string          // 相对路径，或以/开头的绝对路径
	Handler     fiber.Handler   // 处理函数
	Middlewares []fiber.Handler // 路由级中间件，按顺序执行
}

// Middlewares 命名的公共中间件，如 "jwt"、"operlog"
type Middlewares map[string]fiber.Handler

// Use 按名称取出中间件，未注册的名称被忽略
func (m Middlewares) Use(names ...string) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(names))
	for _, name := range names {
		if h, ok := m[name]; ok && h != nil {
			out = append(out, h)
		}
	}
	return out
}

// Registrar 路由注册器接口
type Registrar interface {
	// Prefix 返回路由前缀
	Prefix() string
	// Routes 返回路由配置列表
	Routes(middlewares Middlewares) []Route
}

// Register 注册所有控制器的路由
func Register(app fiber.Router, middlewares Middlewares, controllers ...Registrar) {
	for _, ctrl := range controllers {
		prefix := ctrl.Prefix()
		g := app.Group(prefix)

		for _, route := range ctrl.Routes(middlewares) {
			handlers := buildHandlers(route)
			if strings.HasPrefix(route.Path, "/") && !strings.HasPrefix(route.Path, prefix) {
				app.Add(route.Method, route.Path, handlers...)
			} else {
				g.Add(route.Method, route.Path, handlers...)
			}
		}
	}
}

// buildHandlers 中间件在前，处理函数在后
func buildHandlers(route Route) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(route.Middlewares)+1)
	handlers = append(handlers, route.Middlewares...)
	return append(handlers, route.Handler)
}
