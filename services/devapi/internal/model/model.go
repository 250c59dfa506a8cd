// Package model 桩后端的数据模型。
package model

import (
	"time"

	"github.com/adminconsole/pkg/dal"
)

// Admin 管理员
type Admin struct {
	dal.Model
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Password string `gorm:"size:255;not null" json:"-"`
	NickName string `gorm:"size:50" json:"nickName"`
	Phone    string `gorm:"size:20;index" json:"phone"`
	Status   int8   `gorm:"default:0" json:"status"` // 0:正常 1:停用
	RoleCode string `gorm:"size:50" json:"roleCode"`
}

func (Admin) TableName() string { return "sms_admin" }

// Role 角色
type Role struct {
	dal.Model
	Code   string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name   string `gorm:"size:50;not null" json:"name"`
	Status int8   `gorm:"default:0" json:"status"`
}

func (Role) TableName() string { return "sms_role" }

// Tenant 租户
type Tenant struct {
	dal.Model
	Name    string `gorm:"size:100;not null" json:"name"`
	Contact string `gorm:"size:50" json:"contact"`
	Status  int8   `gorm:"default:0" json:"status"`
}

func (Tenant) TableName() string { return "sms_tenant" }

// Menu 菜单，字段与控制台的菜单节点一致
type Menu struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ParentID  int64  `gorm:"default:0;index" json:"parentId"`
	MenuName  string `gorm:"size:50;not null" json:"menuName"`
	MenuType  string `gorm:"size:1;not null" json:"menuType"` // M:目录 C:菜单 F:按钮
	Path      string `gorm:"size:255" json:"path,omitempty"`
	Component string `gorm:"size:255" json:"component,omitempty"`
	Icon      string `gorm:"size:50" json:"icon,omitempty"`
	Perms     string `gorm:"size:100" json:"perms,omitempty"`
	Status    int8   `gorm:"default:0" json:"status"`
	Visible   int8   `gorm:"default:0" json:"visible"`
	Sort      int    `gorm:"default:0" json:"-"`
	Children  []Menu `gorm:"-" json:"children,omitempty"`
}

func (Menu) TableName() string { return "sms_menu" }

// RefreshToken 刷新令牌
type RefreshToken struct {
	dal.Model
	Token     string    `gorm:"size:64;uniqueIndex;not null"`
	AdminID   int64     `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
	Revoked   bool      `gorm:"default:false"`
}

func (RefreshToken) TableName() string { return "sms_refresh_token" }

// Valid 是否仍可使用
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// OperLog 操作日志
type OperLog struct {
	dal.Model
	AdminID  int64  `gorm:"index" json:"adminId"`
	Username string `gorm:"size:50" json:"username"`
	Module   string `gorm:"size:50" json:"module"`
	Action   string `gorm:"size:50" json:"action"`
	Method   string `gorm:"size:10" json:"method"`
	Path     string `gorm:"size:255" json:"path"`
	IP       string `gorm:"size:50" json:"ip"`
	Status   int    `json:"status"`
	Duration int64  `json:"duration"` // 毫秒
}

func (OperLog) TableName() string { return "sms_oper_log" }

// All 需要迁移的模型
func All() []interface{} {
	return []interface{}{&Admin{}, &Role{}, &Tenant{}, &Menu{}, &RefreshToken{}, &OperLog{}}
}

// BuildTree 按父ID组装菜单树，保持输入顺序
func BuildTree(menus []Menu, parentID int64) []Menu {
	var tree []Menu
	for i := range menus {
		if menus[i].ParentID == parentID {
			m := menus[i]
			m.Children = BuildTree(menus, m.ID)
			tree = append(tree, m)
		}
	}
	return tree
}
