// internal/service/gift/domain/eligibility.go
package domain

import "time"

// Decision 是资格评估的结果。
// Eligible 为 true 时 Bucket 指向应该扣减的配额桶，
// 为 false 时 Reason 给出拒绝原因。
type Decision struct {
	Eligible bool
	Bucket   string
	Reason   RefusalReason
}

// Evaluate 判定玩家对奖品的领取资格，并选出候选配额桶。
//
// ancestors 是玩家区域从叶子到根的祖先链（由 ZoneTree 预先解析，
// 玩家无区域或区域未知时传空）。函数本身不做任何 I/O，规则按序：
//
//  1. 奖品必须在有效期内，否则 GIFT_INACTIVE；
//  2. 奖品声明了等级门槛时，玩家等级必须达标，否则 LEVEL_TOO_LOW；
//  3. 奖品声明了区域配额时，取祖先链中第一个出现在配额表里的
//     区域作为桶；链上没有匹配时，若存在未划分余量则落到 GLOBAL 桶，
//     否则 NO_ZONE_QUOTA；
//  4. 没有区域配额的奖品一律使用 GLOBAL 桶，只受总量约束。
func Evaluate(player *Player, gift *Gift, ancestors []string, now time.Time) Decision {
	if !gift.IsActiveAt(now) {
		return Decision{Reason: ReasonGiftInactive}
	}

	if gift.RequiredLevel != "" && !player.Level.AtLeast(gift.RequiredLevel) {
		return Decision{Reason: ReasonLevelTooLow}
	}

	if !gift.HasZoneQuota() {
		return Decision{Eligible: true, Bucket: BucketGlobal}
	}

	for _, zoneID := range ancestors {
		if _, ok := gift.ZoneQuota[zoneID]; ok {
			return Decision{Eligible: true, Bucket: zoneID}
		}
	}

	if gift.ResidualQuantity() > 0 {
		return Decision{Eligible: true, Bucket: BucketGlobal}
	}
	return Decision{Reason: ReasonNoZoneQuota}
}
