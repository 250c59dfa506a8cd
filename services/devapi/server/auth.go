package server

import (
	"context"
	"time"

	"github.com/adminconsole/pkg/auth"
	"github.com/adminconsole/pkg/dal"
	"github.com/adminconsole/pkg/middleware"
	"github.com/adminconsole/pkg/response"
	"github.com/adminconsole/pkg/router"
	"github.com/adminconsole/pkg/utils"
	"github.com/adminconsole/services/devapi/internal/model"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"go.uber.org/zap"
)

// 登录方式
const (
	loginByUsername = 0
	loginByPhone    = 1
)

// loginRequest 账号密码登录请求
type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Captcha    string `json:"captcha"`
	CaptchaKey string `json:"captchaKey"`
	Type       *int   `json:"type"`
}

type smsCodeRequest struct {
	Phone string `json:"phone"`
	Scene string `json:"scene"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// authController 认证接口
type authController struct {
	s *Server
}

func (h *authController) Prefix() string {
	return "/auth"
}

func (h *authController) Routes(mws router.Middlewares) []router.Route {
	var smsLogin []fiber.Handler
	if h.s.cfg.ClientID != "" {
		smsLogin = append(smsLogin, basicauth.New(basicauth.Config{
			Users: map[string]string{h.s.cfg.ClientID: h.s.cfg.ClientSecret},
			Unauthorized: func(c *fiber.Ctx) error {
				return response.Unauthorized(c, "客户端认证失败")
			},
		}))
	}

	return []router.Route{
		{Method: fiber.MethodGet, Path: "publicKey", Handler: h.publicKey},
		{Method: fiber.MethodPost, Path: "login", Handler: h.login},
		{Method: fiber.MethodPost, Path: "sms/code", Handler: h.sendSmsCode},
		{Method: fiber.MethodPost, Path: "sms/login", Handler: h.smsLogin, Middlewares: smsLogin},
		{Method: fiber.MethodPost, Path: "refresh", Handler: h.refresh},
		{Method: fiber.MethodGet, Path: "logout", Handler: h.logout, Middlewares: mws.Use("jwt")},
		{Method: fiber.MethodGet, Path: "menus", Handler: h.menus, Middlewares: mws.Use("jwt")},
		{Method: fiber.MethodGet, Path: "userinfo", Handler: h.userinfo, Middlewares: mws.Use("jwt")},
	}
}

func (h *authController) publicKey(c *fiber.Ctx) error {
	key, err := h.s.keys.PublicKey()
	if err != nil {
		return response.ServerError(c, "获取公钥失败")
	}
	return response.Success(c, fiber.Map{"publicKey": key})
}

func (h *authController) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "参数错误")
	}
	if req.Username == "" || req.Password == "" {
		return response.Error(c, response.CodeError, "用户名和密码不能为空")
	}

	// 解密失败时按明文处理
	password := req.Password
	if plain, err := h.s.keys.Decrypt(req.Password); err == nil {
		password = plain
	}

	ctx := c.UserContext()
	conds := map[string]interface{}{"username": req.Username}
	if req.Type != nil && *req.Type == loginByPhone {
		conds = map[string]interface{}{"phone": req.Username}
	}
	admin, err := h.s.admins.FindOne(ctx, conds)
	if err != nil {
		return response.ServerError(c, "")
	}
	if admin == nil || !auth.CheckPassword(admin.Password, password) {
		return response.Error(c, response.CodeError, "用户名或密码错误")
	}
	if admin.Status != 0 {
		return response.Error(c, response.CodeForbidden, "账号已停用")
	}

	tokens, err := h.s.issue(ctx, admin)
	if err != nil {
		h.s.log.Error("签发令牌失败", zap.Error(err))
		return response.ServerError(c, "")
	}
	return response.Success(c, fiber.Map{
		"accessToken":  tokens.AccessToken,
		"tokenType":    tokens.TokenType,
		"expiresIn":    tokens.ExpiresIn,
		"refreshToken": tokens.RefreshToken,
		"userId":       admin.ID,
		"username":     admin.Username,
		"nickName":     admin.NickName,
	})
}

func (h *authController) sendSmsCode(c *fiber.Ctx) error {
	var req smsCodeRequest
	if err := c.BodyParser(&req); err != nil || req.Phone == "" {
		return response.BadRequest(c, "手机号不能为空")
	}
	admin, err := h.s.admins.FindOne(c.UserContext(), map[string]interface{}{"phone": req.Phone})
	if err != nil {
		return response.ServerError(c, "")
	}
	if admin == nil {
		return response.Error(c, response.CodeError, "手机号未注册")
	}

	if !h.s.smsCodes.SetNX(smsLimitKey(req.Phone), "", smsResendAfter) {
		return response.Error(c, response.CodeError, "验证码发送过于频繁")
	}
	h.s.smsCodes.Set(smsCodeKey(req.Phone), h.s.cfg.SmsCode, smsCodeTTL)
	h.s.log.Info("sms code sent", zap.String("phone", req.Phone), zap.String("scene", req.Scene))
	return response.Success(c, nil)
}

// smsLogin 表单登录，返回下划线风格的令牌字段
func (h *authController) smsLogin(c *fiber.Ctx) error {
	if c.FormValue("grant_type") != "sms" {
		return response.Error(c, response.CodeError, "不支持的授权类型")
	}
	phone, code := c.FormValue("phone"), c.FormValue("code")
	if !h.s.consumeSmsCode(phone, code) {
		return response.Unauthorized(c, "验证码错误或已过期")
	}

	ctx := c.UserContext()
	admin, err := h.s.admins.FindOne(ctx, map[string]interface{}{"phone": phone})
	if err != nil {
		return response.ServerError(c, "")
	}
	if admin == nil || admin.Status != 0 {
		return response.Unauthorized(c, "账号不可用")
	}

	tokens, err := h.s.issue(ctx, admin)
	if err != nil {
		h.s.log.Error("签发令牌失败", zap.Error(err))
		return response.ServerError(c, "")
	}
	return response.Success(c, fiber.Map{
		"access_token":  tokens.AccessToken,
		"token_type":    tokens.TokenType,
		"expires_in":    tokens.ExpiresIn,
		"refresh_token": tokens.RefreshToken,
		"user_id":       admin.ID,
		"username":      admin.Username,
		"nickname":      admin.NickName,
		"scope":         c.FormValue("scope"),
	})
}

// refresh 用刷新令牌换取新的访问令牌，刷新令牌本身不轮换
func (h *authController) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	_ = c.BodyParser(&req)
	if req.RefreshToken == "" {
		return response.Unauthorized(c, "缺少刷新令牌")
	}

	ctx := c.UserContext()
	record, err := h.s.tokens.FindOne(ctx, map[string]interface{}{"token": req.RefreshToken})
	if err != nil {
		return response.ServerError(c, "")
	}
	if record == nil || !record.Valid(time.Now()) {
		return response.Unauthorized(c, "刷新令牌已失效")
	}
	admin, err := h.s.admins.FindOne(ctx, map[string]interface{}{"id": record.AdminID})
	if err != nil {
		return response.ServerError(c, "")
	}
	if admin == nil || admin.Status != 0 {
		return response.Unauthorized(c, "账号不可用")
	}

	info, err := h.s.jwt.CreateTokenInfo(admin.ID, admin.Username, []string{admin.RoleCode}, h.s.generation.Load())
	if err != nil {
		return response.ServerError(c, "")
	}
	h.s.refreshes.Add(1)
	return response.Success(c, fiber.Map{
		"accessToken": info.AccessToken,
		"expiresIn":   info.ExpiresIn,
	})
}

func (h *authController) logout(c *fiber.Ctx) error {
	err := h.s.tokens.UpdateFields(c.UserContext(),
		map[string]interface{}{"admin_id": middleware.GetUserID(c), "revoked": false},
		map[string]interface{}{"revoked": true})
	if err != nil {
		h.s.log.Warn("吊销刷新令牌失败", zap.Error(err))
	}
	return response.Success(c, nil)
}

// menus 当前用户可见的菜单树，业务码以字符串输出
func (h *authController) menus(c *fiber.Ctx) error {
	tree, err := h.s.userMenus(c.UserContext(), middleware.GetUsername(c))
	if err != nil {
		return response.ServerError(c, "")
	}
	return response.SuccessText(c, tree)
}

func (h *authController) userinfo(c *fiber.Ctx) error {
	ctx := c.UserContext()
	admin, err := h.s.admins.FindOne(ctx, map[string]interface{}{"id": middleware.GetUserID(c)})
	if err != nil {
		return response.ServerError(c, "")
	}
	if admin == nil {
		return response.Error(c, response.CodeUnauthorized, "用户不存在")
	}
	tree, err := h.s.userMenus(ctx, admin.Username)
	if err != nil {
		return response.ServerError(c, "")
	}
	return response.Success(c, fiber.Map{
		"userId":      admin.ID,
		"username":    admin.Username,
		"nickName":    admin.NickName,
		"roles":       []string{admin.RoleCode},
		"permissions": collectPerms(tree),
	})
}

// issue 签发访问令牌并保存新的刷新令牌
func (s *Server) issue(ctx context.Context, admin *model.Admin) (*auth.TokenInfo, error) {
	info, err := s.jwt.CreateTokenInfo(admin.ID, admin.Username, []string{admin.RoleCode}, s.generation.Load())
	if err != nil {
		return nil, err
	}
	record := &model.RefreshToken{
		Token:     utils.UUIDWithoutDash(),
		AdminID:   admin.ID,
		ExpiresAt: time.Now().Add(refreshTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}
	info.RefreshToken = record.Token
	return info, nil
}

func smsCodeKey(phone string) string  { return "sms:code:" + phone }
func smsLimitKey(phone string) string { return "sms:limit:" + phone }

// consumeSmsCode 校验验证码，通过后作废
func (s *Server) consumeSmsCode(phone, code string) bool {
	if code == "" {
		return false
	}
	want, ok := s.smsCodes.Get(smsCodeKey(phone))
	if !ok || want != code {
		return false
	}
	_, ok = s.smsCodes.Take(smsCodeKey(phone))
	return ok
}

// userMenus 按权限过滤后的菜单树，空目录不下发
func (s *Server) userMenus(ctx context.Context, username string) ([]model.Menu, error) {
	menus, err := s.menus.FindAll(ctx, map[string]interface{}{"status": 0}, dal.WithOrder("sort, id"))
	if err != nil {
		return nil, err
	}
	visible := make([]model.Menu, 0, len(menus))
	for _, m := range menus {
		if m.MenuType == "M" || m.Perms == "" || s.casbin.HasPermission(username, m.Perms) {
			visible = append(visible, m)
		}
	}
	tree := pruneEmpty(model.BuildTree(visible, 0))
	if tree == nil {
		tree = []model.Menu{}
	}
	return tree, nil
}

func pruneEmpty(tree []model.Menu) []model.Menu {
	out := tree[:0]
	for _, m := range tree {
		if m.MenuType == "M" {
			m.Children = pruneEmpty(m.Children)
			if len(m.Children) == 0 {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func collectPerms(tree []model.Menu) []string {
	perms := []string{}
	for _, m := range tree {
		if m.Perms != "" {
			perms = append(perms, m.Perms)
		}
		perms = append(perms, collectPerms(m.Children)...)
	}
	return perms
}
