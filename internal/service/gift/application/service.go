// internal/service/gift/application/service.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// AllocationService 编排 claim 流程：资格评估、配额预留、落库、事件发布。
// 只做流程编排，资格规则和状态机都在领域层。
type AllocationService struct {
	giftRepo   domain.GiftRepository
	playerRepo domain.PlayerRepository
	allocRepo  domain.AllocationRepository
	zoneTree   port.ZoneTreeProvider
	ledger     port.QuotaLedger
	ruleEngine port.RuleEngine
	stockGate  port.StockGate // 可为 nil, 此时直接走数据库台账
	notifier   port.AllocationNotifier
	tracer     trace.Tracer

	now func() time.Time
}

// NewAllocationService 组装 claim 引擎。stockGate 传 nil 表示关闭 Redis 快速路径。
func NewAllocationService(
	giftRepo domain.GiftRepository,
	playerRepo domain.PlayerRepository,
	allocRepo domain.AllocationRepository,
	zoneTree port.ZoneTreeProvider,
	ledger port.QuotaLedger,
	ruleEngine port.RuleEngine,
	stockGate port.StockGate,
	notifier port.AllocationNotifier,
	tracer trace.Tracer,
) *AllocationService {
	return &AllocationService{
		giftRepo:   giftRepo,
		playerRepo: playerRepo,
		allocRepo:  allocRepo,
		zoneTree:   zoneTree,
		ledger:     ledger,
		ruleEngine: ruleEngine,
		stockGate:  stockGate,
		notifier:   notifier,
		tracer:     tracer,
		now:        time.Now,
	}
}

// Claim 为玩家领取一件奖品。
//
// 同一 (gift, player) 已有存活记录时返回该记录且 Created=false（幂等）。
// 资格不足或售罄时返回 *domain.ClaimRefusedError。
// 持久化失败时释放已预留的配额后再报错，库存不会泄漏。
func (s *AllocationService) Claim(ctx context.Context, giftID, playerID string) (*ClaimResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.Claim", trace.WithAttributes(
		attribute.String("gift.id", giftID),
		attribute.String("player.id", playerID),
	))
	defer span.End()

	player, err := s.playerRepo.FindByID(ctx, playerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	gift, err := s.giftRepo.FindByID(ctx, giftID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 幂等短路: 已有存活记录时直接返回
	if existing, err := s.allocRepo.FindLiveByGiftAndPlayer(ctx, giftID, playerID); err == nil {
		span.AddEvent("claim resolved to existing live allocation")
		return &ClaimResult{Allocation: existing, Created: false}, nil
	} else if !errors.Is(err, domain.ErrAllocationNotFound) {
		span.RecordError(err)
		return nil, err
	}

	ancestors := s.resolveAncestors(ctx, player)
	now := s.now()

	decision := domain.Evaluate(player, gift, ancestors, now)
	if !decision.Eligible {
		span.SetAttributes(attribute.String("claim.refusal", string(decision.Reason)))
		return nil, domain.NewClaimRefused(decision.Reason)
	}
	span.SetAttributes(attribute.String("claim.bucket", decision.Bucket))

	if refusal, err := s.checkRule(ctx, gift, player, ancestors); err != nil {
		return nil, err
	} else if refusal != nil {
		span.SetAttributes(attribute.String("claim.refusal", string(refusal.Reason)))
		return nil, refusal
	}

	// Redis 闸门预检, 尽力而为; 闸门故障不阻塞发奖
	gatePassed, result, err := s.passGate(ctx, gift, playerID)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	token, err := s.ledger.TryReserve(ctx, gift, decision.Bucket)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExhausted) {
			s.refundGate(ctx, gatePassed, gift.ID, playerID)
			span.SetAttributes(attribute.String("claim.refusal", string(domain.ReasonSoldOut)))
			return nil, domain.NewClaimRefused(domain.ReasonSoldOut)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "quota reservation failed")
		s.refundGate(ctx, gatePassed, gift.ID, playerID)
		return nil, err
	}
	span.AddEvent("quota reserved", trace.WithAttributes(
		attribute.String("reservation.id", token.ID),
		attribute.String("reservation.bucket", token.Bucket),
	))

	allocation := domain.NewAllocation(gift.ID, playerID, decision.Bucket, token.ID)
	if err := s.allocRepo.Create(ctx, allocation); err != nil {
		// 并发竞争: 另一个请求刚插入了同一 (gift, player) 的记录。
		// 归还本次预留, 把对方的结果当作幂等命中返回。
		if errors.Is(err, domain.ErrDuplicateAllocation) {
			s.release(ctx, token)
			s.refundGate(ctx, gatePassed, gift.ID, playerID)
			if existing, findErr := s.allocRepo.FindLiveByGiftAndPlayer(ctx, giftID, playerID); findErr == nil {
				span.AddEvent("lost duplicate race, returning winner allocation")
				return &ClaimResult{Allocation: existing, Created: false}, nil
			}
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocation persistence failed")
		s.release(ctx, token)
		s.refundGate(ctx, gatePassed, gift.ID, playerID)
		return nil, errors.Wrap(err, "failed to persist allocation")
	}

	if err := allocation.MarkWon(); err != nil {
		return nil, err
	}
	if _, err := s.allocRepo.TransitionStatus(ctx, allocation, []domain.AllocationStatus{domain.StatusPending}); err != nil {
		// 记录已经落库并占着库存, 留给过期扫描兜底, 这里只记故障
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).
			Str("allocation_id", allocation.ID).
			Msg("failed to promote allocation to WON")
	}

	if err := s.notifier.NotifyWon(ctx, allocation, gift); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).
			Str("allocation_id", allocation.ID).
			Msg("failed to publish allocation won event")
	}

	logger.Ctx(ctx).Info().
		Str("allocation_id", allocation.ID).
		Str("gift_id", gift.ID).
		Str("player_id", playerID).
		Str("bucket", decision.Bucket).
		Msg("gift allocated")
	return &ClaimResult{Allocation: allocation, Created: true}, nil
}

// resolveAncestors 解析玩家区域的祖先链。
// 玩家无区域或区域不在树里时降级为 nil, 资格评估会落到 GLOBAL 桶的逻辑。
func (s *AllocationService) resolveAncestors(ctx context.Context, player *domain.Player) []string {
	if player.ZoneID == "" {
		return nil
	}
	tree, err := s.zoneTree.Tree(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to load zone tree, treating player as zoneless")
		return nil
	}
	ancestors, err := tree.ResolveAncestors(player.ZoneID)
	if err != nil {
		logger.Ctx(ctx).Warn().
			Str("player_id", player.ID).
			Str("zone_id", player.ZoneID).
			Msg("player references unknown zone")
		return nil
	}
	return ancestors
}

// checkRule 执行奖品上的附加资格规则。
// 引擎故障时放行（规则是收紧手段, 坏规则不应冻结发奖）, 规则为假时拒绝。
func (s *AllocationService) checkRule(ctx context.Context, gift *domain.Gift, player *domain.Player, ancestors []string) (*domain.ClaimRefusedError, error) {
	if gift.EligibilityRule == "" || s.ruleEngine == nil {
		return nil, nil
	}
	fact := port.Fact{
		PlayerID: player.ID,
		Level:    string(player.Level),
		Points:   player.Points,
		ZoneID:   player.ZoneID,
		ZonePath: ancestors,
	}
	pass, err := s.ruleEngine.Evaluate(gift.EligibilityRule, fact)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("gift_id", gift.ID).
			Msg("eligibility rule evaluation failed, letting player pass")
		return nil, nil
	}
	if !pass {
		return domain.NewClaimRefused(domain.ReasonRuleRejected), nil
	}
	return nil, nil
}

// passGate 执行 Redis 闸门预检。
// 返回 (是否已通过闸门扣减, 可直接返回的幂等结果, 错误)。
func (s *AllocationService) passGate(ctx context.Context, gift *domain.Gift, playerID string) (bool, *ClaimResult, error) {
	if s.stockGate == nil {
		return false, nil, nil
	}
	result, err := s.stockGate.Check(ctx, gift.ID, playerID)
	if err != nil {
		// 闸门只是预检, Redis 故障时退化为纯数据库路径
		logger.Ctx(ctx).Error().Err(err).
			Str("gift_id", gift.ID).
			Msg("stock gate check failed, falling back to ledger")
		return false, nil, nil
	}
	switch result {
	case port.GateSoldOut:
		return false, nil, domain.NewClaimRefused(domain.ReasonSoldOut)
	case port.GateDuplicate:
		// 闸门记得这个玩家, 但台账才是事实来源: 查一遍存活记录
		if existing, findErr := s.allocRepo.FindLiveByGiftAndPlayer(ctx, gift.ID, playerID); findErr == nil {
			return false, &ClaimResult{Allocation: existing, Created: false}, nil
		}
		// 闸门残留的脏登记 (比如记录已过期), 清掉再走正常流程
		if refundErr := s.stockGate.Refund(ctx, gift.ID, playerID); refundErr != nil {
			logger.Ctx(ctx).Error().Err(refundErr).
				Str("gift_id", gift.ID).
				Msg("failed to clear stale gate registration")
		}
		return false, nil, nil
	default:
		return true, nil, nil
	}
}

func (s *AllocationService) refundGate(ctx context.Context, passed bool, giftID, playerID string) {
	if !passed || s.stockGate == nil {
		return
	}
	if err := s.stockGate.Refund(ctx, giftID, playerID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("gift_id", giftID).
			Str("player_id", playerID).
			Msg("failed to refund stock gate")
	}
}

func (s *AllocationService) release(ctx context.Context, token port.ReservationToken) {
	if err := s.ledger.Release(ctx, token); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("reservation_id", token.ID).
			Msg("failed to release quota reservation")
	}
}

// GetAllocation 查询单条发奖记录。
func (s *AllocationService) GetAllocation(ctx context.Context, id string) (*domain.Allocation, error) {
	return s.allocRepo.FindByID(ctx, id)
}

// HandleMilestoneReached 处理答题子系统发来的玩家升级事件，
// 自动为玩家尝试领取所有有效且设置了对应等级门槛的奖品。
// 单件奖品的拒绝/售罄不是错误，只有基础设施故障才会使消息重试。
func (s *AllocationService) HandleMilestoneReached(ctx context.Context, event *domain.PlayerMilestoneReached) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleMilestoneReached", trace.WithSpanKind(trace.SpanKindConsumer), trace.WithAttributes(
		attribute.String("player.id", event.PlayerID),
		attribute.String("player.level", string(event.Level)),
	))
	defer span.End()

	gifts, err := s.giftRepo.FindActive(ctx, s.now())
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to list active gifts")
	}

	var claimed int
	for i := range gifts {
		gift := &gifts[i]
		if gift.RequiredLevel == "" || gift.RequiredLevel != event.Level {
			continue
		}
		result, err := s.Claim(ctx, gift.ID, event.PlayerID)
		if err != nil {
			var refused *domain.ClaimRefusedError
			if errors.As(err, &refused) {
				continue
			}
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).
				Str("gift_id", gift.ID).
				Str("player_id", event.PlayerID).
				Msg("auto claim failed")
			continue
		}
		if result.Created {
			claimed++
		}
	}

	span.SetAttributes(attribute.Int("milestone.auto_claimed", claimed))
	logger.Ctx(ctx).Info().
		Str("player_id", event.PlayerID).
		Str("level", string(event.Level)).
		Int("auto_claimed", claimed).
		Msg("processed player milestone event")
	return nil
}
