package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/errors"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/pkg/notify"
	"github.com/adminconsole/pkg/response"
	"github.com/adminconsole/pkg/utils"
	"go.uber.org/zap"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-Id"
	bearerPrefix        = "Bearer "
)

// Authenticator 网关依赖的会话能力
type Authenticator interface {
	AccessToken() string
	IsLoggedIn() bool
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
}

// BasicAuth HTTP基本认证凭证
type BasicAuth struct {
	Username string
	Password string
}

// Request 一次接口调用的原始配置，重放时原样重新发出
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{} // JSON 请求体
	Form   url.Values  // 表单请求体，优先于 Body
	Basic  *BasicAuth
	Header http.Header
	Quiet  bool // 失败时不弹出提示
}

// Options 网关选项
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Transport   http.RoundTripper
	Notifier    notify.Notifier
	RefreshPath string   // 刷新接口
	ExemptPaths []string // 不参与401刷新处理的接口，刷新接口自动包含
	QuietPaths  []string // 失败时不提示的接口
}

// OptionsFromConfig 由配置生成选项
func OptionsFromConfig(cfg *config.APIConfig) Options {
	return Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.TimeoutDuration(),
	}
}

// Gateway 所有接口调用的统一出口
type Gateway struct {
	mu       sync.RWMutex
	baseURL  string
	auth     Authenticator
	client   *http.Client
	notifier notify.Notifier
	flight   *Flight
	opts     Options
	log      *zap.Logger
}

// errUnauthorized 内部标记：需要走刷新流程
var errUnauthorized = stderrors.New("unauthorized")

// New 创建网关
func New(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewZap(logger.Named("console"))
	}

	g := &Gateway{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		notifier: notifier,
		opts:     opts,
		log:      logger.Named("gateway"),
	}
	g.flight = NewFlight(g.refresh)
	return g
}

// SetAuthenticator 绑定会话
func (g *Gateway) SetAuthenticator(auth Authenticator) {
	g.mu.Lock()
	g.auth = auth
	g.mu.Unlock()
}

// SetBaseURL 替换接口地址，用于服务发现
func (g *Gateway) SetBaseURL(baseURL string) {
	g.mu.Lock()
	g.baseURL = strings.TrimRight(baseURL, "/")
	g.mu.Unlock()
	g.log.Info("base url updated", zap.String("baseURL", baseURL))
}

// BaseURL 当前接口地址
func (g *Gateway) BaseURL() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.baseURL
}

// Flight 刷新协调器
func (g *Gateway) Flight() *Flight {
	return g.flight
}

func (g *Gateway) authenticator() Authenticator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.auth
}

func (g *Gateway) token() string {
	if a := g.authenticator(); a != nil {
		return a.AccessToken()
	}
	return ""
}

// refresh 实际的刷新操作，由 Flight 调用
func (g *Gateway) refresh(ctx context.Context) error {
	a := g.authenticator()
	if a == nil {
		return errors.ErrNotLoggedIn
	}
	return a.Refresh(ctx)
}

// RefreshSession 通过单飞协调器刷新会话，与被动刷新共享同一次刷新
func (g *Gateway) RefreshSession(ctx context.Context) error {
	return g.flight.Do(ctx)
}

// expire 会话失效：提示并登出
func (g *Gateway) expire(ctx context.Context) {
	a := g.authenticator()
	if a == nil || !a.IsLoggedIn() {
		return
	}
	g.notifier.Error(errors.MsgSessionExpired)
	if err := a.Logout(context.WithoutCancel(ctx)); err != nil {
		g.log.Warn("logout after expiry failed", zap.Error(err))
	}
}

func matchPath(path string, list []string) bool {
	for _, p := range list {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func (g *Gateway) isRefreshPath(path string) bool {
	return g.opts.RefreshPath != "" && strings.Contains(path, g.opts.RefreshPath)
}

func (g *Gateway) isExempt(path string) bool {
	return g.isRefreshPath(path) || matchPath(path, g.opts.ExemptPaths)
}

func (g *Gateway) isQuiet(req *Request) bool {
	return req.Quiet || matchPath(req.Path, g.opts.QuietPaths)
}

// Do 发出请求并把成功响应的 data 解码到 out
func (g *Gateway) Do(ctx context.Context, req *Request, out interface{}) error {
	token := g.token()
	env, err := g.roundTrip(ctx, req, token, nil)
	if !stderrors.Is(err, errUnauthorized) {
		return g.complete(req, env, err, out)
	}

	if g.isExempt(req.Path) {
		if g.isRefreshPath(req.Path) {
			// 刷新令牌已失效，不再重试
			g.expire(ctx)
		}
		return errors.Wrap(err, errors.KindAuth, 401, unauthorizedMessage(env))
	}

	if token == "" {
		return errors.Wrap(err, errors.KindAuth, 401, errors.MsgSessionExpired)
	}

	// 令牌在请求期间已被其他调用刷新，直接重放
	if cur := g.token(); cur != "" && cur != token {
		return g.replay(ctx, req, out, nil)
	}

	ticket := g.flight.Enqueue(ctx)
	if err := ticket.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return errors.Network(err)
		}
		ticket.Fail(func() { g.expire(ctx) })
		return errors.Wrap(err, errors.KindAuth, 401, errors.MsgSessionExpired)
	}
	defer ticket.Release()
	return g.replay(ctx, req, out, ticket)
}

// replay 刷新后重放一次，仍然401则视为会话失效
func (g *Gateway) replay(ctx context.Context, req *Request, out interface{}, ticket *Ticket) error {
	var trace *httptrace.ClientTrace
	if ticket != nil {
		trace = &httptrace.ClientTrace{
			WroteRequest: func(httptrace.WroteRequestInfo) { ticket.Release() },
		}
	}

	env, err := g.roundTrip(ctx, req, g.token(), trace)
	if stderrors.Is(err, errUnauthorized) {
		g.log.Warn("replayed request unauthorized", zap.String("path", req.Path))
		g.expire(ctx)
		return errors.Wrap(err, errors.KindAuth, 401, errors.MsgSessionExpired)
	}
	return g.complete(req, env, err, out)
}

// complete 把结果转换为调用方可见的结果，并按需提示
func (g *Gateway) complete(req *Request, env *response.Envelope, err error, out interface{}) error {
	if err == nil {
		if !env.OK() {
			err = errors.Request(int(env.Code), env.Message)
		} else if decodeErr := env.Decode(out); decodeErr != nil {
			err = errors.Wrap(decodeErr, errors.KindRequest, int(env.Code), "响应数据格式错误")
		}
	}
	if err != nil && !g.isQuiet(req) {
		g.notifier.Error(errors.GetMessage(err))
	}
	return err
}

func unauthorizedMessage(env *response.Envelope) string {
	if env != nil && env.Message != "" {
		return env.Message
	}
	return errors.MsgSessionExpired
}

// buildRequest 根据原始配置构造 http 请求
func (g *Gateway) buildRequest(ctx context.Context, req *Request, token string) (*http.Request, error) {
	target := g.BaseURL() + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, utils.UUID())
	if token != "" {
		if strings.HasPrefix(token, bearerPrefix) {
			httpReq.Header.Set(HeaderAuthorization, token)
		} else {
			httpReq.Header.Set(HeaderAuthorization, bearerPrefix+token)
		}
	}
	if req.Basic != nil {
		httpReq.SetBasicAuth(req.Basic.Username, req.Basic.Password)
	}
	return httpReq, nil
}

// roundTrip 发出一次请求。返回 errUnauthorized 表示需要刷新，
// 其他错误已经转换为带分类的错误
func (g *Gateway) roundTrip(ctx context.Context, req *Request, token string, trace *httptrace.ClientTrace) (*response.Envelope, error) {
	if trace != nil {
		ctx = httptrace.WithClientTrace(ctx, trace)
	}
	httpReq, err := g.buildRequest(ctx, req, token)
	if err != nil {
		return nil, errors.Internal(err, "构造请求失败")
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.log.Warn("request failed",
			zap.String("method", httpReq.Method),
			zap.String("path", req.Path),
			zap.String("request_id", httpReq.Header.Get(HeaderRequestID)),
			zap.Error(err),
		)
		return nil, errors.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Network(err)
	}
	g.log.Debug("request done",
		zap.String("method", httpReq.Method),
		zap.String("path", req.Path),
		zap.String("request_id", httpReq.Header.Get(HeaderRequestID)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	env := &response.Envelope{}
	decodeErr := json.Unmarshal(raw, env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return env, errUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return nil, errors.Request(http.StatusForbidden, errors.MsgForbidden)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, errors.Request(resp.StatusCode, errors.MsgServerError)
	case resp.StatusCode >= http.StatusBadRequest:
		if decodeErr == nil && env.Message != "" {
			return nil, errors.Request(resp.StatusCode, env.Message)
		}
		return nil, errors.Request(resp.StatusCode, "")
	}

	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, errors.KindRequest, resp.StatusCode, "响应格式错误")
	}
	if env.Code == response.CodeUnauthorized {
		return env, errUnauthorized
	}
	return env, nil
}

// Get 发起GET请求
func (g *Gateway) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return g.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post 发起POST请求
func (g *Gateway) Post(ctx context.Context, path string, body, out interface{}) error {
	return g.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put 发起PUT请求
func (g *Gateway) Put(ctx context.Context, path string, body, out interface{}) error {
	return g.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete 发起DELETE请求
func (g *Gateway) Delete(ctx context.Context, path string, query url.Values, out interface{}) error {
	return g.Do(ctx, &Request{Method: http.MethodDelete, Path: path, Query: query}, out)
}
