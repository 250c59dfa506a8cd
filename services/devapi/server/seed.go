package server

import (
	"context"

	"github.com/adminconsole/pkg/auth"
	"github.com/adminconsole/services/devapi/internal/model"
	"gorm.io/gorm"
)

// 角色
const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

// seedAdmin 种子账号
type seedAdmin struct {
	username, password, nickName, phone, role string
	status                                    int8
}

var seedAdmins = []seedAdmin{
	{"admin", "admin123", "超级管理员", "13800000000", RoleAdmin, 0},
	{"audit", "audit123", "审计员", "13900000000", RoleAuditor, 0},
	{"locked", "locked123", "已停用", "13700000000", RoleAuditor, 1},
}

var seedMenus = []model.Menu{
	{ID: 1, MenuName: "系统管理", MenuType: "M", Path: "/system", Icon: "setting", Sort: 1},
	{ID: 100, ParentID: 1, MenuName: "用户管理", MenuType: "C", Path: "/system/user", Component: "system/user/index", Icon: "user", Perms: "system:admin:list", Sort: 1},
	{ID: 1001, ParentID: 100, MenuName: "用户新增", MenuType: "F", Perms: "system:admin:add"},
	{ID: 1002, ParentID: 100, MenuName: "用户修改", MenuType: "F", Perms: "system:admin:edit"},
	{ID: 1003, ParentID: 100, MenuName: "用户删除", MenuType: "F", Perms: "system:admin:remove"},
	{ID: 101, ParentID: 1, MenuName: "角色管理", MenuType: "C", Path: "/system/role", Component: "system/role/index", Icon: "peoples", Perms: "system:role:list", Sort: 2},
	{ID: 1011, ParentID: 101, MenuName: "分配权限", MenuType: "F", Perms: "system:role:assign"},
	{ID: 102, ParentID: 1, MenuName: "菜单管理", MenuType: "C", Path: "/system/menu", Component: "system/menu/index", Icon: "tree-table", Perms: "system:menu:list", Sort: 3},
	{ID: 103, ParentID: 1, MenuName: "租户管理", MenuType: "C", Path: "/system/tenant", Component: "system/tenant/index", Icon: "company", Perms: "system:tenant:list", Sort: 4},
	{ID: 2, MenuName: "系统监控", MenuType: "M", Path: "/monitor", Icon: "monitor", Sort: 2},
	{ID: 200, ParentID: 2, MenuName: "操作日志", MenuType: "C", Path: "/monitor/operlog", Component: "monitor/operlog/index", Icon: "form", Perms: "monitor:operlog:list", Sort: 1},
	{ID: 201, ParentID: 2, MenuName: "服务监控", MenuType: "C", Path: "/monitor/server", Component: "monitor/server/index", Icon: "server", Perms: "monitor:server:list", Sort: 2},
	{ID: 202, ParentID: 2, MenuName: "JVM监控", MenuType: "C", Path: "/monitor/jvm", Component: "monitor/jvm/index", Icon: "cpu", Perms: "monitor:jvm:list", Sort: 3},
	{ID: 203, ParentID: 2, MenuName: "缓存监控", MenuType: "C", Path: "/monitor/redis", Component: "monitor/redis/index", Icon: "redis", Perms: "monitor:redis:list", Sort: 4},
	{ID: 204, ParentID: 2, MenuName: "在线用户", MenuType: "C", Path: "/monitor/online", Component: "monitor/online/index", Icon: "online", Perms: "monitor:online:list", Sort: 5},
	{ID: 2041, ParentID: 204, MenuName: "强制下线", MenuType: "F", Perms: "monitor:online:forceLogout"},
	{ID: 205, ParentID: 2, MenuName: "系统信息", MenuType: "C", Path: "/monitor/info", Component: "monitor/info/index", Icon: "info", Perms: "monitor:info:list", Sort: 6},
	{ID: 206, ParentID: 2, MenuName: "定时任务", MenuType: "C", Path: "/monitor/job", Component: "monitor/job/index", Icon: "job", Perms: "monitor:job:list", Status: 1, Sort: 7},
}

var seedPolicies = map[string][]string{
	RoleAdmin: {"*"},
	RoleAuditor: {
		"system:role:list",
		"monitor:operlog:list",
		"monitor:server:list",
		"monitor:info:list",
	},
}

// seed 写入账号、角色、菜单、租户与权限策略，已有数据时跳过
func (s *Server) seed(ctx context.Context) error {
	count, err := s.admins.Count(ctx, nil)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	roles := []model.Role{
		{Code: RoleAdmin, Name: "超级管理员"},
		{Code: RoleAuditor, Name: "审计员"},
	}
	if err := s.roles.CreateBatch(ctx, roles); err != nil {
		return err
	}

	admins := make([]model.Admin, 0, len(seedAdmins))
	for _, a := range seedAdmins {
		hash, err := auth.HashPassword(a.password)
		if err != nil {
			return err
		}
		admins = append(admins, model.Admin{
			Username: a.username,
			Password: hash,
			NickName: a.nickName,
			Phone:    a.phone,
			Status:   a.status,
			RoleCode: a.role,
		})
		if err := s.casbin.SetUserRoles(a.username, a.role); err != nil {
			return err
		}
	}
	if err := s.admins.CreateBatch(ctx, admins); err != nil {
		return err
	}

	for role, perms := range seedPolicies {
		for _, perm := range perms {
			if err := s.casbin.AddPermission(role, perm); err != nil {
				return err
			}
		}
	}

	return s.menus.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(append([]model.Menu(nil), seedMenus...)).Error; err != nil {
			return err
		}
		return tx.Create([]model.Tenant{
			{Name: "默认租户", Contact: "admin"},
			{Name: "测试租户", Contact: "audit"},
		}).Error
	})
}
