// internal/service/gift/domain/allocation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AllocationStatus 定义了发奖记录的生命周期状态。
type AllocationStatus string

const (
	// StatusPending 预留成功、持久化刚完成的初始状态。
	StatusPending AllocationStatus = "PENDING"
	// StatusWon claim 流程全部落库后的状态。与 PENDING 分开，
	// 是为了将来接入异步人工审核时不用改动预留契约。
	StatusWon AllocationStatus = "WON"
	// StatusRedeemed 玩家已实际领取，终态。
	StatusRedeemed AllocationStatus = "REDEEMED"
	// StatusExpired 超过奖品有效期或被取消，库存已退回，终态。
	StatusExpired AllocationStatus = "EXPIRED"
)

// Allocation 是"某玩家获得某奖品"的记录，发奖流程的聚合根。
// 只会被创建和状态流转，从不物理删除（审计需要）。
type Allocation struct {
	ID            string
	GiftID        string
	PlayerID      string
	Bucket        string // 预留库存所在的配额桶
	ReservationID string // 配额台账返回的预留令牌
	Status        AllocationStatus
	AllocatedAt   time.Time
	RedeemedAt    *time.Time
	ExpiredAt     *time.Time
	UpdatedAt     time.Time
}

// NewAllocation 创建一条 PENDING 状态的发奖记录。
func NewAllocation(giftID, playerID, bucket, reservationID string) *Allocation {
	now := time.Now()
	return &Allocation{
		ID:            uuid.NewString(),
		GiftID:        giftID,
		PlayerID:      playerID,
		Bucket:        bucket,
		ReservationID: reservationID,
		Status:        StatusPending,
		AllocatedAt:   now,
		UpdatedAt:     now,
	}
}

// IsLive 报告记录是否还占用着一份库存。
// 非 EXPIRED 的记录参与 "同一 (gift, player) 至多一条" 的唯一性约束。
func (a *Allocation) IsLive() bool {
	return a.Status != StatusExpired
}

// MarkWon 将记录从 PENDING 流转到 WON。
func (a *Allocation) MarkWon() error {
	if a.Status != StatusPending {
		return ErrInvalidTransition
	}
	a.Status = StatusWon
	a.UpdatedAt = time.Now()
	return nil
}

// Redeem 将记录流转到 REDEEMED。
// 对已经 REDEEMED 的记录是幂等的空操作，返回 changed=false。
func (a *Allocation) Redeem(at time.Time) (changed bool, err error) {
	switch a.Status {
	case StatusRedeemed:
		return false, nil
	case StatusWon:
		a.Status = StatusRedeemed
		a.RedeemedAt = &at
		a.UpdatedAt = time.Now()
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Expire 将 PENDING 或 WON 的记录流转到 EXPIRED。
// 调用方负责在流转成功后把预留的库存退回台账。
func (a *Allocation) Expire(at time.Time) error {
	switch a.Status {
	case StatusPending, StatusWon:
		a.Status = StatusExpired
		a.ExpiredAt = &at
		a.UpdatedAt = time.Now()
		return nil
	default:
		return ErrInvalidTransition
	}
}
