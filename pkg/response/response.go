package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Code 业务码，传输时可能是数字也可能是数字字符串
type Code int

// UnmarshalJSON 兼容 200 与 "200"
func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid envelope code %q", s)
		}
		*c = Code(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("invalid envelope code %s", string(b))
	}
	*c = Code(int(f))
	return nil
}

// Envelope 统一响应结构，Data 延迟解码
type Envelope struct {
	Code    Code            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK 是否成功
func (e *Envelope) OK() bool {
	return e.Code == CodeSuccess
}

// Decode 将 data 解码到 out，data 为空时不做任何事
func (e *Envelope) Decode(out interface{}) error {
	if out == nil || len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null")) {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// Response 服务端响应结构
type Response struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// textResponse 业务码以字符串传输的响应
type textResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageData 分页数据
type PageData struct {
	Records  interface{} `json:"records"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// 响应码定义
const (
	CodeSuccess       Code = 200
	CodeError         Code = 400
	CodeUnauthorized  Code = 401
	CodeForbidden     Code = 403
	CodeNotFound      Code = 404
	CodeValidateError Code = 422
	CodeServerError   Code = 500
)

// 响应消息定义
const (
	MsgSuccess       = "success"
	MsgUnauthorized  = "unauthorized"
	MsgForbidden     = "forbidden"
	MsgNotFound      = "not found"
	MsgValidateError = "validation error"
	MsgServerError   = "server error"
)

// Success 成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// SuccessText 成功响应，业务码以字符串 "200" 输出
func SuccessText(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(textResponse{
		Code:    strconv.Itoa(int(CodeSuccess)),
		Message: MsgSuccess,
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *fiber.Ctx, records interface{}, total int64, page, pageSize int) error {
	return Success(c, PageData{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Error 业务错误响应，HTTP 状态始终为200
func Error(c *fiber.Ctx, code Code, message string) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 请求错误
func BadRequest(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(Response{
		Code:    CodeError,
		Message: message,
	})
}

// Unauthorized 未授权，HTTP 状态为401
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgUnauthorized
	}
	return c.Status(http.StatusUnauthorized).JSON(Response{
		Code:    CodeUnauthorized,
		Message: message,
	})
}

// Forbidden 禁止访问
func Forbidden(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgForbidden
	}
	return c.Status(http.StatusForbidden).JSON(Response{
		Code:    CodeForbidden,
		Message: message,
	})
}

// NotFound 未找到
func NotFound(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgNotFound
	}
	return c.Status(http.StatusNotFound).JSON(Response{
		Code:    CodeNotFound,
		Message: message,
	})
}

// ValidateError 验证错误
func ValidateError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgValidateError
	}
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeValidateError,
		Message: message,
	})
}

// ServerError 服务器错误
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return c.Status(http.StatusInternalServerError).JSON(Response{
		Code:    CodeServerError,
		Message: message,
	})
}
