package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV 键值表
type KV struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 表名
func (KV) TableName() string {
	return "console_kv"
}

// SQL 基于 gorm 的存储
type SQL struct {
	db    *gorm.DB
	owned bool
}

// NewSQL 创建SQL存储并迁移表结构
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&KV{}); err != nil {
		return nil, fmt.Errorf("migrate kv table: %w", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var kv KV
	err := s.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).First(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return kv.Value, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&KV{Key: key, Value: value}).Error
}

func (s *SQL) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where(map[string]interface{}{"key": keys}).Delete(&KV{}).Error
}

// Close 关闭由存储自身打开的连接
func (s *SQL) Close() error {
	if !s.owned {
		return nil
	}
	return closeDB(s.db)
}
