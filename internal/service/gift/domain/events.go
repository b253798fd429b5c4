// internal/service/gift/domain/events.go
package domain

import "time"

// 发奖事件类型。
const (
	EventAllocationWon      = "ALLOCATION_WON"
	EventAllocationExpired  = "ALLOCATION_EXPIRED"
	EventAllocationRedeemed = "ALLOCATION_REDEEMED"
)

// GiftAllocationEvent 发布到 gift-allocation-events 主题，
// 供通知/邮件等下游系统消费。
type GiftAllocationEvent struct {
	Type         string    `json:"type"`
	AllocationID string    `json:"allocationId"`
	GiftID       string    `json:"giftId"`
	GiftCode     string    `json:"giftCode"`
	GiftName     string    `json:"giftName"`
	PlayerID     string    `json:"playerId"`
	Bucket       string    `json:"bucket"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// PlayerMilestoneReached 由答题计分子系统发布：玩家积分跨过一个
// 等级里程碑。发奖引擎消费它来触发自动发奖。
type PlayerMilestoneReached struct {
	EventID   string    `json:"eventId"`
	PlayerID  string    `json:"playerId"`
	Level     Level     `json:"level"`
	Points    int       `json:"points"`
	ReachedAt time.Time `json:"reachedAt"`
}
