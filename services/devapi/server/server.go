// Package server 是控制台开发与测试用的桩后端。
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/adminconsole/pkg/auth"
	"github.com/adminconsole/pkg/cache"
	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/dal"
	"github.com/adminconsole/pkg/database"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/middleware"
	pkgRegistry "github.com/adminconsole/pkg/registry"
	"github.com/adminconsole/pkg/router"
	"github.com/adminconsole/services/devapi/internal/model"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// BasePath 所有接口的前缀
	BasePath       = "/api"
	serviceVersion = "v1.0.0"
	refreshTTL     = 7 * 24 * time.Hour
	smsCodeTTL     = 5 * time.Minute
	smsResendAfter = time.Minute
)

// Server 桩后端
type Server struct {
	cfg     config.DevAPIConfig
	app     *fiber.App
	db      *gorm.DB
	jwt     *auth.JWTManager
	keys    *auth.KeyPair
	casbin  *auth.CasbinService
	started time.Time

	admins   *dal.Repository[model.Admin]
	roles    *dal.Repository[model.Role]
	tenants  *dal.Repository[model.Tenant]
	menus    *dal.Repository[model.Menu]
	tokens   *dal.Repository[model.RefreshToken]
	operLogs *dal.Repository[model.OperLog]

	generation atomic.Int64
	refreshes  atomic.Int64

	smsCodes *cache.Cache[string]

	registry registry.Registry
	service  *registry.Service
	log      *zap.Logger
}

// New 创建桩后端：打开数据库、迁移、写入种子数据并注册路由
func New(cfg *config.DevAPIConfig) (*Server, error) {
	c := *cfg
	if c.JWT.Secret == "" {
		c.JWT.Secret = "devapi-secret"
	}
	if c.JWT.Expire <= 0 {
		c.JWT.Expire = 7200
	}
	if c.SmsCode == "" {
		c.SmsCode = "123456"
	}
	if c.ServiceName == "" {
		c.ServiceName = "devapi"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	db, err := database.Open(&c.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	casbinSvc, err := auth.NewCasbinService(db, auth.MenuModel)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	keys, err := auth.GenerateKeyPair(2048)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	s := &Server{
		cfg:      c,
		db:       db,
		jwt:      auth.NewJWTManager(&c.JWT),
		keys:     keys,
		casbin:   casbinSvc,
		started:  time.Now(),
		admins:   dal.NewRepository[model.Admin](db),
		roles:    dal.NewRepository[model.Role](db),
		tenants:  dal.NewRepository[model.Tenant](db),
		menus:    dal.NewRepository[model.Menu](db),
		tokens:   dal.NewRepository[model.RefreshToken](db),
		operLogs: dal.NewRepository[model.OperLog](db),
		smsCodes: cache.New[string](time.Minute),
		log:      logger.Named("devapi"),
	}
	if err := s.seed(context.Background()); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("写入种子数据失败: %w", err)
	}

	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.app.Use(middleware.Recovery())
	s.app.Use(middleware.Cors())
	s.app.Use(middleware.RequestID())
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": s.cfg.ServiceName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	mws := router.Middlewares{
		"jwt":     middleware.JWTAuth(s.jwt, s.generation.Load),
		"operlog": middleware.OperationLog(s.recordOperation, "sms"),
	}
	api := s.app.Group(BasePath)
	router.Register(api, mws, &authController{s: s}, &smsController{s: s})
	return s, nil
}

// App fiber 应用
func (s *Server) App() *fiber.App {
	return s.app
}

// Handler 以 net/http 形式暴露，便于 httptest 使用
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Listen 监听配置的地址，阻塞直到关闭
func (s *Server) Listen() error {
	s.log.Info("devapi listening", zap.String("addr", s.cfg.Addr()))
	return s.app.Listen(s.cfg.Addr())
}

// Register 注册到服务发现，address 为空时使用配置的监听地址
func (s *Server) Register(reg registry.Registry, address string) error {
	if address == "" {
		address = s.cfg.Addr()
	}
	svc := pkgRegistry.NewServiceBuilder(s.cfg.ServiceName, serviceVersion).
		WithAddress(address).
		WithBasePath(BasePath).
		Build()
	if err := reg.Register(svc); err != nil {
		return fmt.Errorf("注册服务失败: %w", err)
	}
	s.registry, s.service = reg, svc
	s.log.Info("service registered", zap.String("service", svc.Name), zap.String("address", address))
	return nil
}

// Shutdown 注销服务并释放资源
func (s *Server) Shutdown() error {
	if s.registry != nil && s.service != nil {
		if err := s.registry.Deregister(s.service); err != nil {
			s.log.Warn("注销服务失败", zap.Error(err))
		}
	}
	s.smsCodes.Close()
	if err := s.app.Shutdown(); err != nil {
		s.log.Warn("关闭 HTTP 服务失败", zap.Error(err))
	}
	return database.Close(s.db)
}

// RevokeAccessTokens 让所有已签发的访问令牌失效
func (s *Server) RevokeAccessTokens() {
	s.generation.Add(1)
}

// RevokeRefreshTokens 让所有刷新令牌失效
func (s *Server) RevokeRefreshTokens(ctx context.Context) error {
	return s.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("revoked = ?", false).
		Update("revoked", true).Error
}

// RefreshCount 成功刷新的次数
func (s *Server) RefreshCount() int64 {
	return s.refreshes.Load()
}

// PublicKey 当前公钥
func (s *Server) PublicKey() string {
	key, _ := s.keys.PublicKey()
	return key
}

// recordOperation 写入操作日志，失败只记录日志
func (s *Server) recordOperation(rec middleware.OperationRecord) {
	entry := &model.OperLog{
		AdminID:  rec.UserID,
		Username: rec.Username,
		Module:   rec.Module,
		Action:   rec.Action,
		Method:   rec.Method,
		Path:     rec.Path,
		IP:       rec.IP,
		Status:   rec.Status,
		Duration: rec.Latency.Milliseconds(),
	}
	if err := s.operLogs.Create(context.Background(), entry); err != nil {
		s.log.Warn("写入操作日志失败", zap.Error(err))
	}
}
