package middleware

import (
	"strings"
	"time"

	"github.com/adminconsole/pkg/auth"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/response"
	"github.com/adminconsole/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// 上下文键
const (
	LocalUserID    = "userId"
	LocalUsername  = "username"
	LocalRoles     = "roles"
	LocalClaims    = "claims"
	LocalRequestID = "requestId"
)

// GenerationFunc 返回当前令牌代次
type GenerationFunc func() int64

// JWTAuth JWT认证中间件。认证失败时返回业务码401（HTTP 200）
func JWTAuth(jwtManager *auth.JWTManager, generation GenerationFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			return response.Error(c, response.CodeUnauthorized, "未提供认证令牌")
		}
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := jwtManager.ParseToken(token)
		if err != nil {
			return response.Error(c, response.CodeUnauthorized, "无效的认证令牌")
		}
		if generation != nil && claims.Generation != generation() {
			return response.Error(c, response.CodeUnauthorized, "认证令牌已失效")
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUsername, claims.Username)
		c.Locals(LocalRoles, claims.Roles)
		c.Locals(LocalClaims, claims)
		return c.Next()
	}
}

// PermissionChecker 权限检查
type PermissionChecker interface {
	HasPermission(sub, perm string) bool
}

// RequirePerm 要求当前用户持有权限标识，需在 JWTAuth 之后使用
func RequirePerm(checker PermissionChecker, perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !checker.HasPermission(GetUsername(c), perm) {
			return response.Forbidden(c, "没有访问权限")
		}
		return c.Next()
	}
}

// OperationRecord 一次操作的记录
type OperationRecord struct {
	UserID   int64
	Username string
	Module   string
	Action   string
	Method   string
	Path     string
	IP       string
	Status   int
	Latency  time.Duration
}

// OperationLogFunc 操作日志记录回调
type OperationLogFunc func(rec OperationRecord)

// OperationLog 操作日志记录中间件
func OperationLog(logFunc OperationLogFunc, moduleName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			return err
		}
		if logFunc != nil {
			logFunc(OperationRecord{
				UserID:   GetUserID(c),
				Username: GetUsername(c),
				Module:   moduleName,
				Action:   actionByMethod(c.Method()),
				Method:   c.Method(),
				Path:     c.Path(),
				IP:       c.IP(),
				Status:   c.Response().StatusCode(),
				Latency:  time.Since(start),
			})
		}
		return nil
	}
}

// actionByMethod 根据HTTP方法获取操作类型
func actionByMethod(method string) string {
	switch method {
	case fiber.MethodPost:
		return "新增"
	case fiber.MethodPut, fiber.MethodPatch:
		return "修改"
	case fiber.MethodDelete:
		return "删除"
	case fiber.MethodGet:
		return "查询"
	default:
		return "其他"
	}
}

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				err = response.ServerError(c, "服务器内部错误")
			}
		}()
		return c.Next()
	}
}

// Cors 跨域中间件
func Cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if origin := c.Get("Origin"); origin != "" {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-Id")
			c.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

// RequestID 请求ID中间件，沿用客户端传入的ID
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-Id")
		if requestID == "" {
			requestID = utils.UUID()
		}
		c.Locals(LocalRequestID, requestID)
		c.Set("X-Request-Id", requestID)
		return c.Next()
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(LocalUserID).(int64)
	return id
}

// GetUsername 从上下文获取用户名
func GetUsername(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalUsername).(string)
	return name
}
