// Package api 封装控制台调用的后端接口。
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/adminconsole/services/console/internal/gateway"
	"github.com/adminconsole/services/console/internal/menu"
)

// 接口路径，相对于 api.baseURL
const (
	PathPublicKey   = "/auth/publicKey"
	PathLogin       = "/auth/login"
	PathSmsCode     = "/auth/sms/code"
	PathSmsLogin    = "/auth/sms/login"
	PathRefresh     = "/auth/refresh"
	PathLogout      = "/auth/logout"
	PathCurrentMenu = "/auth/menus"
	PathCurrentUser = "/auth/userinfo"
)

// 登录场景
const (
	SceneAdmin = "admin"
	GrantSms   = "sms"
)

// GatewayOptions 控制台网关的接口相关选项
func GatewayOptions(opts gateway.Options) gateway.Options {
	opts.RefreshPath = PathRefresh
	opts.ExemptPaths = []string{PathLogin, PathSmsLogin, PathLogout}
	opts.QuietPaths = []string{PathLogin, PathSmsLogin, PathLogout, PathPublicKey}
	return opts
}

// LoginRequest 账号密码登录参数
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Captcha    string `json:"captcha,omitempty"`
	CaptchaKey string `json:"captchaKey,omitempty"`
	Type       *int   `json:"type,omitempty"` // 0 用户名 1 手机号 2 邮箱
}

// SmsLoginRequest 短信登录参数
type SmsLoginRequest struct {
	Phone string
	Code  string
	Scene string
	Scope string
}

// UserInfo 当前用户扩展信息
type UserInfo struct {
	UserID      int64       `json:"userId"`
	Username    string      `json:"username"`
	NickName    string      `json:"nickName"`
	Roles       []string    `json:"roles"`
	Permissions []string    `json:"permissions"`
	Menus       []menu.Node `json:"menus"`
}

// Client 后端接口客户端
type Client struct {
	gw           *gateway.Gateway
	clientID     string
	clientSecret string
}

// New 创建客户端，clientID/clientSecret 用于短信登录的基本认证
func New(gw *gateway.Gateway, clientID, clientSecret string) *Client {
	return &Client{gw: gw, clientID: clientID, clientSecret: clientSecret}
}

// Gateway 底层网关
func (c *Client) Gateway() *gateway.Gateway {
	return c.gw
}

// PublicKey 获取密码加密公钥，data 可以是字符串或 {publicKey}
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	var raw json.RawMessage
	if err := c.gw.Get(ctx, PathPublicKey, nil, &raw); err != nil {
		return "", err
	}
	var key string
	if err := json.Unmarshal(raw, &key); err == nil {
		return key, nil
	}
	var obj struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.PublicKey, nil
}

// decodeToken 将松散的令牌数据规范化
func decodeToken(raw map[string]interface{}) (*TokenPayload, error) {
	if raw == nil {
		return &TokenPayload{}, nil
	}
	return NormalizeToken(raw)
}

// Login 账号密码登录
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*TokenPayload, error) {
	var raw map[string]interface{}
	if err := c.gw.Post(ctx, PathLogin, req, &raw); err != nil {
		return nil, err
	}
	return decodeToken(raw)
}

// SendSmsCode 发送短信验证码，默认管理端场景
func (c *Client) SendSmsCode(ctx context.Context, phone, scene string) error {
	if scene == "" {
		scene = SceneAdmin
	}
	return c.gw.Post(ctx, PathSmsCode, map[string]string{"phone": phone, "scene": scene}, nil)
}

// LoginBySms 短信验证码登录（表单 + 基本认证）
func (c *Client) LoginBySms(ctx context.Context, req *SmsLoginRequest) (*TokenPayload, error) {
	scene, scope := req.Scene, req.Scope
	if scene == "" {
		scene = SceneAdmin
	}
	if scope == "" {
		scope = SceneAdmin
	}
	form := url.Values{
		"grant_type": {GrantSms},
		"phone":      {req.Phone},
		"code":       {req.Code},
		"scene":      {scene},
		"scope":      {scope},
	}

	var raw map[string]interface{}
	err := c.gw.Do(ctx, &gateway.Request{
		Method: http.MethodPost,
		Path:   PathSmsLogin,
		Form:   form,
		Basic:  &gateway.BasicAuth{Username: c.clientID, Password: c.clientSecret},
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeToken(raw)
}

// Refresh 刷新令牌；持有刷新令牌时放在请求体中
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPayload, error) {
	var body interface{}
	if refreshToken != "" {
		body = map[string]string{"refreshToken": refreshToken}
	}
	var raw map[string]interface{}
	if err := c.gw.Post(ctx, PathRefresh, body, &raw); err != nil {
		return nil, err
	}
	return decodeToken(raw)
}

// Logout 退出登录
func (c *Client) Logout(ctx context.Context) error {
	return c.gw.Get(ctx, PathLogout, nil, nil)
}

// CurrentUserMenus 当前用户菜单树
func (c *Client) CurrentUserMenus(ctx context.Context) ([]menu.Node, error) {
	var nodes []menu.Node
	if err := c.gw.Get(ctx, PathCurrentMenu, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// CurrentUserInfo 当前用户信息
func (c *Client) CurrentUserInfo(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	if err := c.gw.Get(ctx, PathCurrentUser, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Call 通用调用，返回原始 data
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.gw.Do(ctx, &gateway.Request{
		Method: strings.ToUpper(method),
		Path:   path,
		Query:  query,
		Body:   body,
	}, &raw)
	return raw, err
}
