// internal/service/gift/domain/gift.go
package domain

import "time"

// BucketGlobal 是全局配额桶的名字。没有区域配额的奖品只用这个桶；
// 声明了区域配额但留有余量 (sum < total) 的奖品，余量也落在这个桶里。
const BucketGlobal = "GLOBAL"

// ZoneQuota 是 zone_id → 预留数量 的显式值类型。
// 动态的 JSON 配额数据在系统边界反序列化成它并校验一次，
// 内部流转不再出现裸 map[string]interface{}。
type ZoneQuota map[string]int

// Sum 返回所有区域配额之和。
func (q ZoneQuota) Sum() int {
	total := 0
	for _, n := range q {
		total += n
	}
	return total
}

// Gift 是赞助企业捐赠的一种奖品。
type Gift struct {
	ID            string
	Code          string // 唯一短码, 例如 "VELO-2026"
	Name          string
	Donor         string // 捐赠企业
	ValidFrom     *time.Time
	ValidTo       *time.Time
	RequiredLevel Level // 为空表示不限等级
	TotalQuantity int
	ZoneQuota     ZoneQuota // 可为空；值之和必须 ≤ TotalQuantity
	// EligibilityRule 是管理员配置的附加资格规则 (CEL 表达式)，
	// 对玩家画像求值，为空表示无附加规则。
	EligibilityRule string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate 在写入边界校验奖品定义的不变式。
func (g *Gift) Validate() error {
	if g.Code == "" {
		return NewValidationError("code", "must not be empty")
	}
	if g.Name == "" {
		return NewValidationError("name", "must not be empty")
	}
	if g.TotalQuantity <= 0 {
		return NewValidationError("total_quantity", "must be positive, got %d", g.TotalQuantity)
	}
	if g.RequiredLevel != "" && !g.RequiredLevel.Valid() {
		return NewValidationError("required_level", "unknown level %q", g.RequiredLevel)
	}
	if g.ValidFrom != nil && g.ValidTo != nil && g.ValidTo.Before(*g.ValidFrom) {
		return NewValidationError("end_date", "must not precede start_date")
	}
	for zoneID, qty := range g.ZoneQuota {
		if zoneID == "" {
			return NewValidationError("zone_quota", "zone id must not be empty")
		}
		if qty <= 0 {
			return NewValidationError("zone_quota", "quantity for zone %s must be positive, got %d", zoneID, qty)
		}
	}
	if sum := g.ZoneQuota.Sum(); sum > g.TotalQuantity {
		return NewValidationError("zone_quota", "quota sum %d exceeds total_quantity %d", sum, g.TotalQuantity)
	}
	return nil
}

// IsActiveAt 检查奖品在指定时刻是否处于有效期内。
// 未设置的边界视为不限。
func (g *Gift) IsActiveAt(t time.Time) bool {
	if g.ValidFrom != nil && t.Before(*g.ValidFrom) {
		return false
	}
	if g.ValidTo != nil && t.After(*g.ValidTo) {
		return false
	}
	return true
}

// HasZoneQuota 报告奖品是否声明了区域配额。
func (g *Gift) HasZoneQuota() bool {
	return len(g.ZoneQuota) > 0
}

// ResidualQuantity 返回未划分到任何区域的余量，即 GLOBAL 桶的容量。
func (g *Gift) ResidualQuantity() int {
	return g.TotalQuantity - g.ZoneQuota.Sum()
}

// BucketCapacity 返回指定配额桶的容量。
// 区域配额是全局库存的一个划分，不是额外的独立池子。
func (g *Gift) BucketCapacity(bucket string) int {
	if bucket == BucketGlobal {
		if g.HasZoneQuota() {
			return g.ResidualQuantity()
		}
		return g.TotalQuantity
	}
	return g.ZoneQuota[bucket]
}

// Buckets 返回奖品的全部配额桶（含 GLOBAL）。
func (g *Gift) Buckets() []string {
	buckets := make([]string, 0, len(g.ZoneQuota)+1)
	for zoneID := range g.ZoneQuota {
		buckets = append(buckets, zoneID)
	}
	buckets = append(buckets, BucketGlobal)
	return buckets
}
