package errors

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	KindAuth          Kind = "auth"          // 凭证或刷新被拒绝，最终都会走登出
	KindRequest       Kind = "request"       // 业务码非200
	KindNetwork       Kind = "network"       // 传输层失败：超时、连接失败
	KindMenuLoad      Kind = "menu_load"     // 菜单获取或解析失败
	KindConfiguration Kind = "configuration" // 组件映射缺失等配置错误
	KindInternal      Kind = "internal"
)

// 预定义消息，与界面提示保持一致
const (
	MsgSessionExpired = "登录已过期，请重新登录"
	MsgForbidden      = "没有权限访问"
	MsgServerError    = "服务器错误"
	MsgNetwork        = "网络错误，请检查网络连接"
	MsgRouteDenied    = "没有权限访问该页面"
	MsgMenuLoad       = "加载菜单失败"
	MsgPageNotFound   = "页面不存在"
)

// 预定义错误
var (
	ErrSessionExpired = Auth(401, MsgSessionExpired)
	ErrNotLoggedIn    = Auth(401, "未登录")
	ErrNoRefreshToken = Auth(401, "刷新令牌不存在")
)

// AppError 应用错误
type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s %d] %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s %d] %s", e.Kind, e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同类同码视为相等，便于 errors.Is 与预定义错误比较
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code && e.Message == t.Message
}

// New 创建新错误
func New(kind Kind, code int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, kind Kind, code int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Auth 创建认证错误
func Auth(code int, message string) *AppError {
	if message == "" {
		message = MsgSessionExpired
	}
	return New(KindAuth, code, message)
}

// Request 创建业务错误
func Request(code int, message string) *AppError {
	if message == "" {
		message = fmt.Sprintf("请求失败(%d)", code)
	}
	return New(KindRequest, code, message)
}

// Network 创建网络错误
func Network(err error) *AppError {
	return Wrap(err, KindNetwork, 0, MsgNetwork)
}

// MenuLoad 创建菜单加载错误
func MenuLoad(err error) *AppError {
	return Wrap(err, KindMenuLoad, 0, MsgMenuLoad)
}

// Configuration 创建配置错误
func Configuration(message string) *AppError {
	return New(KindConfiguration, 0, message)
}

// Internal 创建内部错误
func Internal(err error, message string) *AppError {
	return Wrap(err, KindInternal, 500, message)
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsKind 沿包装链查找指定分类的错误
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return false
}

// KindOf 获取最外层的错误分类
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 500
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
