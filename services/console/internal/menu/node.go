package menu

// MenuType 菜单类型
type MenuType string

const (
	TypeDirectory MenuType = "M"
	TypePage      MenuType = "C"
	TypeButton    MenuType = "F"
)

// 状态
const (
	StatusEnabled  = 0
	StatusDisabled = 1
	VisibleShown   = 0
	VisibleHidden  = 1
)

// HomeID 首页保留ID
const HomeID int64 = 0

// Node 服务端下发的菜单节点
type Node struct {
	ID        int64    `json:"id"`
	MenuName  string   `json:"menuName"`
	ParentID  int64    `json:"parentId"`
	MenuType  MenuType `json:"menuType"`
	Path      string   `json:"path,omitempty"`
	Component string   `json:"component,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Perms     string   `json:"perms,omitempty"`
	Status    int      `json:"status"`
	Visible   int      `json:"visible"`
	Children  []Node   `json:"children,omitempty"`
}

// Home 固定的首页菜单
func Home() Node {
	return Node{
		ID:        HomeID,
		MenuName:  "首页",
		ParentID:  0,
		MenuType:  TypePage,
		Path:      "/dashboard",
		Component: "Dashboard",
		Icon:      "house",
		Status:    StatusEnabled,
		Visible:   VisibleShown,
	}
}

// Routable 是否可以生成路由
func (n *Node) Routable() bool {
	return n.MenuType == TypePage &&
		n.Path != "" &&
		n.Component != "" &&
		n.Status == StatusEnabled &&
		n.ID != HomeID
}

// Flatten 深度优先展开，父节点在子节点之前
func Flatten(nodes []Node) []Node {
	var out []Node
	var walk func(items []Node)
	walk = func(items []Node) {
		for _, n := range items {
			out = append(out, n)
			if len(n.Children) > 0 {
				walk(n.Children)
			}
		}
	}
	walk(nodes)
	return out
}

// ExtractPermissions 收集所有非空权限标识
func ExtractPermissions(nodes []Node) []string {
	var out []string
	for _, n := range Flatten(nodes) {
		if n.Perms != "" {
			out = append(out, n.Perms)
		}
	}
	return out
}

// withoutHome 去掉服务端数据中占用首页ID的顶层节点
func withoutHome(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == HomeID {
			continue
		}
		out = append(out, n)
	}
	return out
}
