// Package utils 通用小工具。
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// UUID 生成UUID
func UUID() string {
	return uuid.New().String()
}

// UUIDWithoutDash 生成不带横线的UUID，用作不透明令牌
func UUIDWithoutDash() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// SnakeToCamel 下划线转大驼峰
func SnakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// SnakeToLowerCamel 下划线转小驼峰，如 access_token -> accessToken。
// 不含下划线的键原样返回
func SnakeToLowerCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	result := SnakeToCamel(s)
	if len(result) > 0 {
		return strings.ToLower(result[:1]) + result[1:]
	}
	return result
}
