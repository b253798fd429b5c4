// internal/service/gift/interfaces/milestone_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/pkg/mq"
	"ecoquiz/internal/service/gift/application"
	"ecoquiz/internal/service/gift/domain"
)

// MilestoneConsumerAdapter 是一个驱动适配器: 监听答题计分子系统的
// player-milestone-events 主题, 驱动自动发奖流程。
type MilestoneConsumerAdapter struct {
	reader *kafka.Reader
	appSvc *application.AllocationService
	wg     sync.WaitGroup
}

// NewMilestoneConsumerAdapter 创建升级事件消费者。
func NewMilestoneConsumerAdapter(reader *kafka.Reader, appSvc *application.AllocationService) *MilestoneConsumerAdapter {
	return &MilestoneConsumerAdapter{reader: reader, appSvc: appSvc}
}

// Start 开始消费。这是一个长期运行的方法。
func (a *MilestoneConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().
			Str("topic", a.reader.Config().Topic).
			Msg("milestone consumer started")
		for {
			// FetchMessage 而不是 ReadMessage, 以便手动控制提交与退出
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				// reader 被 Stop 关闭后 FetchMessage 返回 io.EOF
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("milestone consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("failed to fetch milestone message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			msgCtx := otel.GetTextMapPropagator().Extract(ctx, &headerCarrier)

			if err := a.processMessage(msgCtx, msg); err != nil {
				// 基础设施故障: 不提交 offset, 消息会被重投
				milestoneEventsTotal.WithLabelValues("error").Inc()
				logger.Ctx(msgCtx).Error().Err(err).Msg("failed to process milestone event")
				continue
			}
			milestoneEventsTotal.WithLabelValues("ok").Inc()

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(msgCtx).Error().Err(err).Msg("failed to commit milestone offset")
			}
		}
	}()
}

// Stop 优雅地停止消费者。关闭 reader 会让阻塞中的 FetchMessage 立即返回。
func (a *MilestoneConsumerAdapter) Stop(ctx context.Context) {
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("error closing milestone reader")
	}
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("milestone consumer stopped")
}

func (a *MilestoneConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.PlayerMilestoneReached
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 坏消息重投也不会变好, 记日志后当作已处理
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("dropping malformed milestone event")
		return nil
	}
	return a.appSvc.HandleMilestoneReached(ctx, &event)
}
