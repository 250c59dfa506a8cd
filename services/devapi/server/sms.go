package server

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/adminconsole/pkg/dal"
	"github.com/adminconsole/pkg/middleware"
	"github.com/adminconsole/pkg/response"
	"github.com/adminconsole/pkg/router"
	"github.com/adminconsole/services/devapi/internal/model"
	"github.com/gofiber/fiber/v2"
)

// pageQuery 分页查询的筛选条件
type pageQuery struct {
	Keyword string `json:"keyword"`
	Status  *int8  `json:"status"`
}

// smsController 系统管理与系统监控接口
type smsController struct {
	s *Server
}

func (h *smsController) Prefix() string {
	return "/sms"
}

func (h *smsController) Routes(mws router.Middlewares) []router.Route {
	guarded := func(perm string) []fiber.Handler {
		chain := mws.Use("jwt")
		chain = append(chain, middleware.RequirePerm(h.s.casbin, perm))
		return append(chain, mws.Use("operlog")...)
	}

	return []router.Route{
		{Method: fiber.MethodPost, Path: "admin/page", Handler: h.adminPage, Middlewares: guarded("system:admin:list")},
		{Method: fiber.MethodPost, Path: "role/page", Handler: h.rolePage, Middlewares: guarded("system:role:list")},
		{Method: fiber.MethodPost, Path: "tenant/page", Handler: h.tenantPage, Middlewares: guarded("system:tenant:list")},
		{Method: fiber.MethodPost, Path: "operlog/page", Handler: h.operLogPage, Middlewares: guarded("monitor:operlog:list")},
		{Method: fiber.MethodGet, Path: "menu/tree", Handler: h.menuTree, Middlewares: guarded("system:menu:list")},
		{Method: fiber.MethodGet, Path: "monitor/server", Handler: h.server, Middlewares: guarded("monitor:server:list")},
		{Method: fiber.MethodGet, Path: "monitor/jvm", Handler: h.goRuntime, Middlewares: guarded("monitor:jvm:list")},
		{Method: fiber.MethodGet, Path: "monitor/redis", Handler: h.cache, Middlewares: guarded("monitor:redis:list")},
		{Method: fiber.MethodGet, Path: "monitor/online", Handler: h.online, Middlewares: guarded("monitor:online:list")},
		{Method: fiber.MethodGet, Path: "monitor/info", Handler: h.info, Middlewares: guarded("monitor:info:list")},
	}
}

func pagination(c *fiber.Ctx) *dal.Pagination {
	return dal.NewPagination(c.QueryInt("current", 1), c.QueryInt("size", dal.DefaultPageSize))
}

func parsePageQuery(c *fiber.Ctx) pageQuery {
	var q pageQuery
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&q)
	}
	return q
}

// writePage 以统一分页结构输出
func writePage[T any](c *fiber.Ctx, result *dal.PagedResult[T]) error {
	return response.SuccessPage(c, result.Records, result.Total, result.Current, result.Size)
}

func (h *smsController) adminPage(c *fiber.Ctx) error {
	q := parsePageQuery(c)
	opts := []dal.QueryOption{dal.WithOrder("id")}
	if q.Keyword != "" {
		like := "%" + q.Keyword + "%"
		opts = append(opts, dal.WithWhere("username LIKE ? OR nick_name LIKE ? OR phone LIKE ?", like, like, like))
	}
	if q.Status != nil {
		opts = append(opts, dal.WithWhere("status = ?", *q.Status))
	}
	result, err := h.s.admins.FindPaged(c.UserContext(), nil, pagination(c), opts...)
	if err != nil {
		return response.ServerError(c, "")
	}
	return writePage(c, result)
}

func (h *smsController) rolePage(c *fiber.Ctx) error {
	q := parsePageQuery(c)
	opts := []dal.QueryOption{dal.WithOrder("id")}
	if q.Keyword != "" {
		like := "%" + q.Keyword + "%"
		opts = append(opts, dal.WithWhere("code LIKE ? OR name LIKE ?", like, like))
	}
	result, err := h.s.roles.FindPaged(c.UserContext(), nil, pagination(c), opts...)
	if err != nil {
		return response.ServerError(c, "")
	}
	return writePage(c, result)
}

func (h *smsController) tenantPage(c *fiber.Ctx) error {
	q := parsePageQuery(c)
	opts := []dal.QueryOption{dal.WithOrder("id")}
	if q.Keyword != "" {
		opts = append(opts, dal.WithWhere("name LIKE ?", "%"+q.Keyword+"%"))
	}
	result, err := h.s.tenants.FindPaged(c.UserContext(), nil, pagination(c), opts...)
	if err != nil {
		return response.ServerError(c, "")
	}
	return writePage(c, result)
}

func (h *smsController) operLogPage(c *fiber.Ctx) error {
	q := parsePageQuery(c)
	opts := []dal.QueryOption{dal.WithOrder("id DESC")}
	if q.Keyword != "" {
		like := "%" + q.Keyword + "%"
		opts = append(opts, dal.WithWhere("username LIKE ? OR path LIKE ?", like, like))
	}
	result, err := h.s.operLogs.FindPaged(c.UserContext(), nil, pagination(c), opts...)
	if err != nil {
		return response.ServerError(c, "")
	}
	return writePage(c, result)
}

// menuTree 完整菜单树，含停用节点
func (h *smsController) menuTree(c *fiber.Ctx) error {
	menus, err := h.s.menus.FindAll(c.UserContext(), nil, dal.WithOrder("sort, id"))
	if err != nil {
		return response.ServerError(c, "")
	}
	return response.Success(c, model.BuildTree(menus, 0))
}

func (h *smsController) server(c *fiber.Ctx) error {
	hostname, _ := os.Hostname()
	return response.Success(c, fiber.Map{
		"hostname": hostname,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"cpus":     runtime.NumCPU(),
		"uptime":   int64(time.Since(h.s.started).Seconds()),
	})
}

// goRuntime 运行时信息，对应页面上的 JVM 监控
func (h *smsController) goRuntime(c *fiber.Ctx) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return response.Success(c, fiber.Map{
		"version":    runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"heapAlloc":  mem.HeapAlloc,
		"heapSys":    mem.HeapSys,
		"numGC":      mem.NumGC,
	})
}

func (h *smsController) cache(c *fiber.Ctx) error {
	pending := h.s.smsCodes.Count()
	return response.Success(c, fiber.Map{
		"mode":       "memory",
		"cachedKeys": pending,
		"generation": h.s.generation.Load(),
	})
}

// online 持有有效刷新令牌的会话
func (h *smsController) online(c *fiber.Ctx) error {
	sessions, err := h.s.onlineSessions(c.UserContext())
	if err != nil {
		return response.ServerError(c, "")
	}
	return response.Success(c, sessions)
}

func (h *smsController) info(c *fiber.Ctx) error {
	return response.Success(c, fiber.Map{
		"service":   h.s.cfg.ServiceName,
		"version":   serviceVersion,
		"startedAt": h.s.started.Format(time.RFC3339),
		"database":  h.s.cfg.Database.Driver,
		"refreshes": h.s.refreshes.Load(),
	})
}

// onlineSession 在线会话
type onlineSession struct {
	AdminID   int64     `json:"adminId"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) onlineSessions(ctx context.Context) ([]onlineSession, error) {
	records, err := s.tokens.FindAll(ctx, nil,
		dal.WithWhere("revoked = ? AND expires_at > ?", false, time.Now()),
		dal.WithOrder("id"))
	if err != nil {
		return nil, err
	}
	names := map[int64]string{}
	out := make([]onlineSession, 0, len(records))
	for _, r := range records {
		name, ok := names[r.AdminID]
		if !ok {
			admin, err := s.admins.FindOne(ctx, map[string]interface{}{"id": r.AdminID})
			if err != nil {
				return nil, err
			}
			if admin != nil {
				name = admin.Username
			}
			names[r.AdminID] = name
		}
		out = append(out, onlineSession{AdminID: r.AdminID, Username: name, ExpiresAt: r.ExpiresAt})
	}
	return out, nil
}
