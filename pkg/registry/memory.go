package registry

import (
	"sync"

	"go-micro.dev/v5/registry"
)

// MemoryRegistry 进程内注册中心，用于测试与单机开发
type MemoryRegistry struct {
	services map[string]*registry.Service
	mu       sync.RWMutex
}

// NewMemoryRegistry 创建内存注册中心
func NewMemoryRegistry() registry.Registry {
	return &MemoryRegistry{
		services: make(map[string]*registry.Service),
	}
}

func (r *MemoryRegistry) Init(opts ...registry.Option) error { return nil }

func (r *MemoryRegistry) Options() registry.Options { return registry.Options{} }

// Register 注册服务，同名服务按节点ID合并
func (r *MemoryRegistry) Register(s *registry.Service, opts ...registry.RegisterOption) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.services[s.Name]
	if !ok {
		cp := *s
		cp.Nodes = append([]*registry.Node(nil), s.Nodes...)
		r.services[s.Name] = &cp
		return nil
	}
	for _, n := range s.Nodes {
		replaced := false
		for i, existing := range cur.Nodes {
			if existing.Id == n.Id {
				cur.Nodes[i] = n
				replaced = true
				break
			}
		}
		if !replaced {
			cur.Nodes = append(cur.Nodes, n)
		}
	}
	return nil
}

// Deregister 注销服务节点，节点全部注销后移除服务
func (r *MemoryRegistry) Deregister(s *registry.Service, opts ...registry.DeregisterOption) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.services[s.Name]
	if !ok {
		return nil
	}
	kept := cur.Nodes[:0]
	for _, existing := range cur.Nodes {
		remove := false
		for _, n := range s.Nodes {
			if n.Id == existing.Id {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, existing)
		}
	}
	cur.Nodes = kept
	if len(cur.Nodes) == 0 || len(s.Nodes) == 0 {
		delete(r.services, s.Name)
	}
	return nil
}

// GetService 获取服务
func (r *MemoryRegistry) GetService(name string, opts ...registry.GetOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.services[name]; ok {
		return []*registry.Service{s}, nil
	}
	return nil, registry.ErrNotFound
}

// ListServices 列出所有服务
func (r *MemoryRegistry) ListServices(opts ...registry.ListOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*registry.Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	return services, nil
}

// Watch 不推送变化，Next 阻塞到 Stop
func (r *MemoryRegistry) Watch(opts ...registry.WatchOption) (registry.Watcher, error) {
	return &memoryWatcher{exit: make(chan struct{})}, nil
}

func (r *MemoryRegistry) String() string {
	return "memory"
}

type memoryWatcher struct {
	once sync.Once
	exit chan struct{}
}

func (w *memoryWatcher) Next() (*registry.Result, error) {
	<-w.exit
	return nil, registry.ErrWatcherStopped
}

func (w *memoryWatcher) Stop() {
	w.once.Do(func() { close(w.exit) })
}
