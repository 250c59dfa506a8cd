package menu

import (
	"strings"
)

// 操作类型
const (
	ActionQuery  = "query"
	ActionAdd    = "add"
	ActionEdit   = "edit"
	ActionRemove = "remove"
	ActionAssign = "assign"
	ActionExport = "export"
	ActionImport = "import"
	ActionClean  = "clean"
)

var actionNames = map[string]string{
	"查询":   ActionQuery,
	"新增":   ActionAdd,
	"添加":   ActionAdd,
	"编辑":   ActionEdit,
	"修改":   ActionEdit,
	"删除":   ActionRemove,
	"移除":   ActionRemove,
	"分配":   ActionAssign,
	"授权":   ActionAssign,
	"导出":   ActionExport,
	"导入":   ActionImport,
	"清空":   ActionClean,
	"强制下线": ActionRemove,
}

// ActionType 操作名称对应的操作类型，未知名称视为查询
func ActionType(actionName string) string {
	if a, ok := actionNames[actionName]; ok {
		return a
	}
	return ActionQuery
}

// cleanMenuPath 去掉开头的 / 和结尾的 /index
func cleanMenuPath(p string) string {
	return strings.TrimSuffix(strings.TrimLeft(p, "/"), "/index")
}

// PermissionKey 由菜单路径和操作生成权限标识，如 system/admin + add -> system:admin:add
func PermissionKey(menuPath, action string) string {
	var parts []string
	for _, p := range strings.Split(cleanMenuPath(menuPath), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(append(parts, action), ":")
}

// FindButtonPerm 在菜单的按钮子节点中按名称查找权限标识。
// menuPath 为空时在所有页面中查找
func (r *Resolver) FindButtonPerm(menuPath, actionName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target := cleanMenuPath(menuPath)
	for _, n := range r.list {
		if n.MenuType != TypePage {
			continue
		}
		if menuPath != "" && cleanMenuPath(n.Path) != target {
			continue
		}
		for _, child := range n.Children {
			if child.MenuType == TypeButton && child.Perms != "" && strings.Contains(child.MenuName, actionName) {
				return child.Perms, true
			}
		}
		if menuPath != "" {
			return "", false
		}
	}
	return "", false
}

// Can 按钮级权限检查：优先使用菜单数据中的按钮权限，找不到时按路径生成
func (r *Resolver) Can(menuPath, action, actionName string) bool {
	if actionName != "" {
		if perm, ok := r.FindButtonPerm(menuPath, actionName); ok {
			return r.HasPermission(perm)
		}
	}
	return r.HasPermission(PermissionKey(menuPath, action))
}

// Checker 绑定菜单路径的权限检查函数
func (r *Resolver) Checker(menuPath string) func(action, actionName string) bool {
	return func(action, actionName string) bool {
		return r.Can(menuPath, action, actionName)
	}
}
