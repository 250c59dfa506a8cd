// Package storage 提供会话与菜单的持久化键值镜像。
//
// 所有值都以字符串保存，结构化数据由调用方编码为 JSON。
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/database"
	"gorm.io/gorm"
)

// Store 持久化键值存储
type Store interface {
	// Get 读取键值，键不存在时 ok 为 false
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Closer 可关闭的存储
type Closer interface {
	Close() error
}

// GetJSON 读取并解码 JSON 值
func GetJSON(ctx context.Context, s Store, key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON 编码并写入 JSON 值
func SetJSON(ctx context.Context, s Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Open 按配置创建存储，结果已带上命名空间前缀
func Open(cfg *config.StorageConfig) (Store, error) {
	var base Store
	switch cfg.Driver {
	case "memory", "":
		base = NewMemory()
	case "redis":
		conn, err := database.OpenRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		base = NewRedis(conn.Client, conn)
	case "sqlite", "mysql", "postgres":
		dbCfg := cfg.Database
		dbCfg.Driver = cfg.Driver
		db, err := database.Open(&dbCfg)
		if err != nil {
			return nil, fmt.Errorf("open sql storage: %w", err)
		}
		s, err := NewSQL(db)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
		s.owned = true
		base = s
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
	return WithPrefix(base, cfg.Prefix), nil
}

// Close 关闭存储底层连接
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// closeDB 关闭 gorm 连接
func closeDB(db *gorm.DB) error {
	return database.Close(db)
}
