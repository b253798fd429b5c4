// internal/service/gift/domain/port/notifier.go
package port

import (
	"context"

	"ecoquiz/internal/service/gift/domain"
)

// AllocationNotifier 是发奖事件的出站端口，由 Kafka 适配器实现。
// 发布失败只记日志不回滚业务——通知是尽力而为的旁路。
type AllocationNotifier interface {
	NotifyWon(ctx context.Context, allocation *domain.Allocation, gift *domain.Gift) error
	NotifyExpired(ctx context.Context, allocation *domain.Allocation, gift *domain.Gift) error
	NotifyRedeemed(ctx context.Context, allocation *domain.Allocation, gift *domain.Gift) error
}
