package dal

// 分页默认值
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination 分页参数，Current 从 1 开始
type Pagination struct {
	Current  int `json:"current" query:"current"`
	PageSize int `json:"size" query:"size"`
}

// NewPagination 规范化分页参数
func NewPagination(current, size int) *Pagination {
	p := &Pagination{Current: current, PageSize: size}
	p.normalize()
	return p
}

func (p *Pagination) normalize() {
	if p.Current < 1 {
		p.Current = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// Offset 偏移量
func (p *Pagination) Offset() int {
	return (p.Current - 1) * p.PageSize
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Current int   `json:"current"`
	Size    int   `json:"size"`
	Pages   int64 `json:"pages"`
}

// NewPagedResult 创建分页结果
func NewPagedResult[T any](records []T, total int64, p *Pagination) *PagedResult[T] {
	if records == nil {
		records = []T{}
	}
	pages := int64(0)
	if p.PageSize > 0 {
		pages = (total + int64(p.PageSize) - 1) / int64(p.PageSize)
	}
	return &PagedResult[T]{
		Records: records,
		Total:   total,
		Current: p.Current,
		Size:    p.PageSize,
		Pages:   pages,
	}
}
