package dal

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository 通用仓储
type Repository[T any] struct {
	db *gorm.DB
}

// NewRepository 使用指定连接创建仓储
func NewRepository[T any](db *gorm.DB) *Repository[T] {
	return &Repository[T]{db: db}
}

func (r *Repository[T]) query(ctx context.Context, opts []QueryOption) *gorm.DB {
	var entity T
	db := r.db.WithContext(ctx).Model(&entity)
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

// Create 创建实体
func (r *Repository[T]) Create(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

// CreateBatch 批量创建
func (r *Repository[T]) CreateBatch(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(entities, 100).Error
}

// UpdateFields 更新指定字段
func (r *Repository[T]) UpdateFields(ctx context.Context, conditions map[string]interface{}, fields map[string]interface{}) error {
	var entity T
	return r.db.WithContext(ctx).Model(&entity).Where(conditions).Updates(fields).Error
}

// FindOne 查找单个实体，不存在时返回 nil
func (r *Repository[T]) FindOne(ctx context.Context, conditions map[string]interface{}, opts ...QueryOption) (*T, error) {
	var entity T
	if err := r.query(ctx, opts).Where(conditions).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

// FindAll 查找所有符合条件的实体
func (r *Repository[T]) FindAll(ctx context.Context, conditions map[string]interface{}, opts ...QueryOption) ([]T, error) {
	var entities []T
	db := r.query(ctx, opts)
	if len(conditions) > 0 {
		db = db.Where(conditions)
	}
	if err := db.Find(&entities).Error; err != nil {
		return nil, err
	}
	return entities, nil
}

// FindPaged 分页查询
func (r *Repository[T]) FindPaged(ctx context.Context, conditions map[string]interface{}, p *Pagination, opts ...QueryOption) (*PagedResult[T], error) {
	if p == nil {
		p = NewPagination(1, DefaultPageSize)
	}
	p.normalize()

	db := r.query(ctx, opts)
	if len(conditions) > 0 {
		db = db.Where(conditions)
	}
	db = db.Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	var entities []T
	if err := db.Offset(p.Offset()).Limit(p.PageSize).Find(&entities).Error; err != nil {
		return nil, err
	}
	return NewPagedResult(entities, total, p), nil
}

// Count 统计数量
func (r *Repository[T]) Count(ctx context.Context, conditions map[string]interface{}) (int64, error) {
	var count int64
	db := r.query(ctx, nil)
	if len(conditions) > 0 {
		db = db.Where(conditions)
	}
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Transaction 执行事务
func (r *Repository[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
