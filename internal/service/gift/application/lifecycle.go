// internal/service/gift/application/lifecycle.go
package application

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// 单轮过期扫描的批量与并发上限
const (
	expireBatchSize   = 500
	expireConcurrency = 8
)

// LifecycleService 负责发奖记录的后续流转: 核销与过期回收。
type LifecycleService struct {
	giftRepo  domain.GiftRepository
	allocRepo domain.AllocationRepository
	ledger    port.QuotaLedger
	stockGate port.StockGate // 可为 nil
	notifier  port.AllocationNotifier
	tracer    trace.Tracer

	now func() time.Time
}

// NewLifecycleService 组装生命周期服务。
func NewLifecycleService(
	giftRepo domain.GiftRepository,
	allocRepo domain.AllocationRepository,
	ledger port.QuotaLedger,
	stockGate port.StockGate,
	notifier port.AllocationNotifier,
	tracer trace.Tracer,
) *LifecycleService {
	return &LifecycleService{
		giftRepo:  giftRepo,
		allocRepo: allocRepo,
		ledger:    ledger,
		stockGate: stockGate,
		notifier:  notifier,
		tracer:    tracer,
		now:       time.Now,
	}
}

// Redeem 核销一条发奖记录。
// 已核销的记录是幂等空操作; 已过期的记录返回 ErrInvalidTransition。
func (s *LifecycleService) Redeem(ctx context.Context, allocationID string) (*domain.Allocation, error) {
	ctx, span := s.tracer.Start(ctx, "app.Redeem", trace.WithAttributes(
		attribute.String("allocation.id", allocationID),
	))
	defer span.End()

	allocation, err := s.allocRepo.FindByID(ctx, allocationID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	changed, err := allocation.Redeem(s.now())
	if err != nil {
		span.SetAttributes(attribute.String("allocation.status", string(allocation.Status)))
		return nil, err
	}
	if !changed {
		span.AddEvent("allocation already redeemed")
		return allocation, nil
	}

	ok, err := s.allocRepo.TransitionStatus(ctx, allocation, []domain.AllocationStatus{domain.StatusWon})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to persist redemption")
	}
	if !ok {
		// 前置条件失败: 有并发流转抢先了, 重读落库后的真实状态
		current, readErr := s.allocRepo.FindByID(ctx, allocationID)
		if readErr != nil {
			return nil, readErr
		}
		if current.Status == domain.StatusRedeemed {
			span.AddEvent("lost redeem race to another redeem")
			return current, nil
		}
		span.SetAttributes(attribute.String("allocation.status", string(current.Status)))
		return nil, domain.ErrInvalidTransition
	}

	if gift, giftErr := s.giftRepo.FindByID(ctx, allocation.GiftID); giftErr == nil {
		if notifyErr := s.notifier.NotifyRedeemed(ctx, allocation, gift); notifyErr != nil {
			logger.Ctx(ctx).Error().Err(notifyErr).
				Str("allocation_id", allocation.ID).
				Msg("failed to publish redemption event")
		}
	}

	logger.Ctx(ctx).Info().
		Str("allocation_id", allocation.ID).
		Str("gift_id", allocation.GiftID).
		Msg("allocation redeemed")
	return allocation, nil
}

// Expire 将一条记录流转到 EXPIRED 并退回它占用的库存。
// 已过期的记录是幂等空操作。
func (s *LifecycleService) Expire(ctx context.Context, allocationID string) error {
	allocation, err := s.allocRepo.FindByID(ctx, allocationID)
	if err != nil {
		return err
	}
	return s.expire(ctx, allocation)
}

func (s *LifecycleService) expire(ctx context.Context, allocation *domain.Allocation) error {
	ctx, span := s.tracer.Start(ctx, "app.expire", trace.WithAttributes(
		attribute.String("allocation.id", allocation.ID),
	))
	defer span.End()

	if err := allocation.Expire(s.now()); err != nil {
		if allocation.Status == domain.StatusExpired {
			return nil
		}
		return err
	}

	ok, err := s.allocRepo.TransitionStatus(ctx, allocation, []domain.AllocationStatus{domain.StatusPending, domain.StatusWon})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist expiry")
		return errors.Wrap(err, "failed to persist expiry")
	}
	if !ok {
		current, readErr := s.allocRepo.FindByID(ctx, allocation.ID)
		if readErr != nil {
			return readErr
		}
		if current.Status == domain.StatusExpired {
			return nil
		}
		// 被并发核销抢先, 库存仍被占用, 不退回
		span.AddEvent("expiry lost race to redemption")
		return domain.ErrInvalidTransition
	}

	// 状态已流转, 退回库存。Release 幂等, 失败时留给 Rebuild 兜底。
	token := port.ReservationToken{
		ID:     allocation.ReservationID,
		GiftID: allocation.GiftID,
		Bucket: allocation.Bucket,
	}
	if err := s.ledger.Release(ctx, token); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).
			Str("allocation_id", allocation.ID).
			Str("reservation_id", token.ID).
			Msg("failed to release quota on expiry")
	}
	if s.stockGate != nil {
		if err := s.stockGate.Refund(ctx, allocation.GiftID, allocation.PlayerID); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("allocation_id", allocation.ID).
				Msg("failed to refund stock gate on expiry")
		}
	}

	if gift, giftErr := s.giftRepo.FindByID(ctx, allocation.GiftID); giftErr == nil {
		if notifyErr := s.notifier.NotifyExpired(ctx, allocation, gift); notifyErr != nil {
			logger.Ctx(ctx).Error().Err(notifyErr).
				Str("allocation_id", allocation.ID).
				Msg("failed to publish expiry event")
		}
	}

	logger.Ctx(ctx).Info().
		Str("allocation_id", allocation.ID).
		Str("gift_id", allocation.GiftID).
		Msg("allocation expired, stock released")
	return nil
}

// ExpireOverdue 扫描奖品有效期已过的存活记录, 批量过期并退回库存。
// 返回本轮实际过期的记录数; 查询后被并发核销抢走的记录不计入。
// 由调度器周期性调用。
func (s *LifecycleService) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.ExpireOverdue")
	defer span.End()

	overdue, err := s.allocRepo.FindOverdue(ctx, s.now(), expireBatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "failed to list overdue allocations")
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	var released atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(expireConcurrency)
	for i := range overdue {
		allocation := overdue[i]
		g.Go(func() error {
			switch err := s.expire(gCtx, &allocation); {
			case err == nil:
				released.Add(1)
				return nil
			case errors.Is(err, domain.ErrInvalidTransition):
				// 快照过期: 这条记录在查询后被并发核销, 不计入
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return 0, err
	}

	count := int(released.Load())
	span.SetAttributes(attribute.Int("expiry.released", count))
	logger.Ctx(ctx).Info().Int("count", count).Msg("expiry sweep released overdue allocations")
	return count, nil
}
