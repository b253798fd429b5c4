// internal/service/gift/domain/port/ledger.go
package port

import (
	"context"

	"ecoquiz/internal/service/gift/domain"
)

// ReservationToken 是台账返回的不透明预留凭证，代表一份已消耗的库存。
// 记录在 Allocation 上，过期/取消时凭它退回库存。
type ReservationToken struct {
	ID     string
	GiftID string
	Bucket string
}

// QuotaLedger 是并发关键的配额台账出站端口。
//
// TryReserve 必须是原子的 compare-and-increment：区域桶和全局余量
// 在同一个串行化步骤里一起检查、一起扣减——区域配额是全局库存的
// 划分，不是独立池子。配额不足时返回 domain.ErrQuotaExhausted。
//
// Release 必须幂等：重复释放同一令牌是空操作，以容忍崩溃恢复
// 期间的重试。
type QuotaLedger interface {
	TryReserve(ctx context.Context, gift *domain.Gift, bucket string) (ReservationToken, error)
	Release(ctx context.Context, token ReservationToken) error

	// Rebuild 从发奖记录（事实来源）重建奖品的各桶计数。
	// 服务启动或奖品定义变更后调用。
	Rebuild(ctx context.Context, gift *domain.Gift) error

	// Reserved 返回奖品各桶当前的预留数，用于监控和报表。
	Reserved(ctx context.Context, giftID string) (map[string]int, error)
}
