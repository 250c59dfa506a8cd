package registry

import (
	"errors"
	"fmt"
	"strings"

	"go-micro.dev/v5/registry"
)

// 元数据键
const (
	metaBasePath = "base_path"
	metaScheme   = "scheme"
)

// ErrNoNodes 服务没有可用节点
var ErrNoNodes = errors.New("service has no nodes")

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string // 服务名称
	Version  string // 服务版本
	NodeID   string // 节点ID
	Address  string // 服务地址 host:port
	BasePath string // 接口基础路径，如 /api
	Scheme   string // http | https
}

// BuildService 构建服务注册信息
func BuildService(cfg *ServiceConfig) *registry.Service {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return &registry.Service{
		Name:    cfg.Name,
		Version: cfg.Version,
		Nodes: []*registry.Node{
			{
				Id:      cfg.NodeID,
				Address: cfg.Address,
				Metadata: map[string]string{
					metaBasePath: cfg.BasePath,
					metaScheme:   scheme,
				},
			},
		},
	}
}

// ServiceBuilder 服务构建器
type ServiceBuilder struct {
	config *ServiceConfig
}

// NewServiceBuilder 创建服务构建器
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{
		config: &ServiceConfig{
			Name:    name,
			Version: version,
		},
	}
}

// WithNodeID 设置节点ID
func (b *ServiceBuilder) WithNodeID(nodeID string) *ServiceBuilder {
	b.config.NodeID = nodeID
	return b
}

// WithAddress 设置服务地址
func (b *ServiceBuilder) WithAddress(addr string) *ServiceBuilder {
	b.config.Address = addr
	return b
}

// WithBasePath 设置接口基础路径
func (b *ServiceBuilder) WithBasePath(basePath string) *ServiceBuilder {
	b.config.BasePath = basePath
	return b
}

// Build 构建服务
func (b *ServiceBuilder) Build() *registry.Service {
	// 如果没有设置NodeID，使用服务名+"-1"
	if b.config.NodeID == "" {
		b.config.NodeID = b.config.Name + "-1"
	}
	return BuildService(b.config)
}

// New 按名称创建注册中心
func New(kind string) (registry.Registry, error) {
	switch kind {
	case "mdns", "":
		return registry.NewMDNSRegistry(), nil
	case "memory":
		return NewMemoryRegistry(), nil
	default:
		return nil, fmt.Errorf("unsupported registry: %s", kind)
	}
}

// ResolveBaseURL 从注册中心解析接口地址，取第一个节点
func ResolveBaseURL(reg registry.Registry, service, defaultBasePath string) (string, error) {
	services, err := reg.GetService(service)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", service, err)
	}
	for _, svc := range services {
		for _, node := range svc.Nodes {
			if node.Address == "" {
				continue
			}
			scheme := node.Metadata[metaScheme]
			if scheme == "" {
				scheme = "http"
			}
			basePath := node.Metadata[metaBasePath]
			if basePath == "" {
				basePath = defaultBasePath
			}
			return scheme + "://" + node.Address + "/" + strings.TrimLeft(basePath, "/"), nil
		}
	}
	return "", fmt.Errorf("lookup %s: %w", service, ErrNoNodes)
}
