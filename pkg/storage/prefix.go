package storage

import "context"

// Prefixed 为所有键加上命名空间前缀
type Prefixed struct {
	store  Store
	prefix string
}

// WithPrefix 包装存储，prefix 为空时原样返回
func WithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &Prefixed{store: s, prefix: prefix}
}

func (p *Prefixed) key(key string) string {
	return p.prefix + key
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.Get(ctx, p.key(key))
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	return p.store.Set(ctx, p.key(key), value)
}

func (p *Prefixed) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.key(k)
	}
	return p.store.Delete(ctx, full...)
}

// Close 关闭底层存储
func (p *Prefixed) Close() error {
	return Close(p.store)
}
