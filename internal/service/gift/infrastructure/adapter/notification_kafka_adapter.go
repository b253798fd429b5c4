// internal/service/gift/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"ecoquiz/internal/pkg/mq"
	"ecoquiz/internal/service/gift/domain"
)

// NotificationKafkaAdapter 实现了 port.AllocationNotifier 接口。
// 发奖事件发布到 gift-allocation-events 主题，邮件/通知等
// 下游系统各自消费。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

// NewNotificationKafkaAdapter 创建一个新的事件发布适配器。
func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

func (a *NotificationKafkaAdapter) NotifyWon(ctx context.Context, allocation *domain.Allocation, gift *domain.Gift) error {
	return a.publish(ctx, domain.EventAllocationWon, allocation, gift)
}

func (a *NotificationKafkaAdapter) NotifyExpired(ctx context.Context, allocation *domain.Allocation, gift *domain.Gift) error {
	return a.publish(ctx, domain.EventAllocationExpired, allocation, gift)
}

func (a *NotificationKafkaAdapter) NotifyRedeemed(ctx context.Context, allocation *domain.Allocation, gift *domain.Gift) error {
	return a.publish(ctx, domain.EventAllocationRedeemed, allocation, gift)
}

func (a *NotificationKafkaAdapter) publish(ctx context.Context, eventType string, allocation *domain.Allocation, gift *domain.Gift) error {
	event := domain.GiftAllocationEvent{
		Type:         eventType,
		AllocationID: allocation.ID,
		GiftID:       gift.ID,
		GiftCode:     gift.Code,
		GiftName:     gift.Name,
		PlayerID:     allocation.PlayerID,
		Bucket:       allocation.Bucket,
		OccurredAt:   time.Now(),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal allocation event")
	}

	// 以 playerID 为 key, 同一玩家的事件保持有序；
	// ProduceMessage 会自动注入追踪上下文
	return mq.ProduceMessage(ctx, a.writer, []byte(allocation.PlayerID), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
