// internal/service/gift/domain/zone.go
package domain

import "time"

// ZoneType 是行政/组织层级节点的类型标签。
type ZoneType string

const (
	ZoneTypeRegion     ZoneType = "REGION"
	ZoneTypeDept       ZoneType = "DEPT"
	ZoneTypeCity       ZoneType = "CITY"
	ZoneTypePostalCode ZoneType = "POSTAL_CODE"
	ZoneTypeCompany    ZoneType = "COMPANY"
)

// ValidZoneType 检查类型标签是否是已知值。
func ValidZoneType(t ZoneType) bool {
	switch t {
	case ZoneTypeRegion, ZoneTypeDept, ZoneTypeCity, ZoneTypePostalCode, ZoneTypeCompany:
		return true
	}
	return false
}

// Zone 是层级树中的一个节点。ParentID 为空表示根节点。
// 父节点必须先于子节点存在，因此树在构造上无环。
type Zone struct {
	ID        string
	Type      ZoneType
	Name      string
	ParentID  string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ZoneTree 是区域层级的只读快照，按 id 索引的节点仓。
// 祖先解析用迭代的父指针回溯，深度受树高限制。
type ZoneTree struct {
	nodes map[string]Zone
}

// NewZoneTree 从一组节点构建快照。
func NewZoneTree(zones []Zone) *ZoneTree {
	nodes := make(map[string]Zone, len(zones))
	for _, z := range zones {
		nodes[z.ID] = z
	}
	return &ZoneTree{nodes: nodes}
}

// Get 返回指定节点。
func (t *ZoneTree) Get(zoneID string) (Zone, bool) {
	z, ok := t.nodes[zoneID]
	return z, ok
}

// Size 返回节点数。
func (t *ZoneTree) Size() int {
	return len(t.nodes)
}

// ResolveAncestors 返回从叶子到根的有序 id 列表（包含自身）。
// 未知的 zoneID 返回 ErrZoneNotFound；调用方应把它当作"无归属"
// 降级处理，而不是整个请求失败。
func (t *ZoneTree) ResolveAncestors(zoneID string) ([]string, error) {
	z, ok := t.nodes[zoneID]
	if !ok {
		return nil, ErrZoneNotFound
	}

	chain := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	for {
		if _, dup := seen[z.ID]; dup {
			// 树在构造上无环；数据被破坏时在这里止损
			break
		}
		seen[z.ID] = struct{}{}
		chain = append(chain, z.ID)

		if z.ParentID == "" {
			break
		}
		parent, ok := t.nodes[z.ParentID]
		if !ok {
			// 父节点已被删除，链到此为止
			break
		}
		z = parent
	}
	return chain, nil
}

// Descendants 返回 ancestorID 子树内的全部节点 id（包含自身）。
// 统计报表用它把 "按区域过滤" 展开成一个 id 集合。
func (t *ZoneTree) Descendants(ancestorID string) []string {
	if _, ok := t.nodes[ancestorID]; !ok {
		return nil
	}
	ids := make([]string, 0, 8)
	for id := range t.nodes {
		if t.IsDescendantOf(id, ancestorID) {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsDescendantOf 判断 zoneID 是否属于 ancestorID 或其子树。
// 节点被视为自身的后代。
func (t *ZoneTree) IsDescendantOf(zoneID, ancestorID string) bool {
	chain, err := t.ResolveAncestors(zoneID)
	if err != nil {
		return false
	}
	for _, id := range chain {
		if id == ancestorID {
			return true
		}
	}
	return false
}
