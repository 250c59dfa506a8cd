package auth

import (
	"fmt"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// MenuModel 菜单权限模型：用户继承角色，角色持有权限标识
const MenuModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*")
`

// CasbinService Casbin服务
type CasbinService struct {
	enforcer *casbin.Enforcer
}

// NewCasbinService 基于 gorm 适配器创建Casbin服务
func NewCasbinService(db *gorm.DB, modelText string) (*CasbinService, error) {
	// 使用GORM适配器
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	// 加载策略
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load casbin policy: %w", err)
	}
	return &CasbinService{enforcer: enforcer}, nil
}

// HasPermission 检查主体是否持有权限标识
func (s *CasbinService) HasPermission(sub, perm string) bool {
	ok, _ := s.enforcer.Enforce(sub, perm)
	return ok
}

// AddPermission 为角色添加权限标识
func (s *CasbinService) AddPermission(role, perm string) error {
	_, err := s.enforcer.AddPolicy(role, perm)
	return err
}

// SetUserRoles 设置用户角色
func (s *CasbinService) SetUserRoles(user string, roles ...string) error {
	if _, err := s.enforcer.DeleteRolesForUser(user); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := s.enforcer.AddGroupingPolicy(user, role); err != nil {
			return err
		}
	}
	return nil
}

// GetRolesForUser 获取用户的所有角色
func (s *CasbinService) GetRolesForUser(user string) ([]string, error) {
	return s.enforcer.GetRolesForUser(user)
}

// GetPermissionsForUser 获取用户（含角色继承）的所有权限标识
func (s *CasbinService) GetPermissionsForUser(user string) ([]string, error) {
	perms, err := s.enforcer.GetImplicitPermissionsForUser(user)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if len(p) >= 2 {
			out = append(out, p[1])
		}
	}
	return out, nil
}
