// internal/service/gift/application/catalog.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// CatalogService 管理奖品目录的增删改查。
// 写操作之后会重建配额台账并重灌 Redis 闸门, 保证计数与定义一致。
type CatalogService struct {
	giftRepo  domain.GiftRepository
	zoneTree  port.ZoneTreeProvider
	ledger    port.QuotaLedger
	stockGate port.StockGate // 可为 nil
	tracer    trace.Tracer
}

// NewCatalogService 组装目录服务。
func NewCatalogService(
	giftRepo domain.GiftRepository,
	zoneTree port.ZoneTreeProvider,
	ledger port.QuotaLedger,
	stockGate port.StockGate,
	tracer trace.Tracer,
) *CatalogService {
	return &CatalogService{
		giftRepo:  giftRepo,
		zoneTree:  zoneTree,
		ledger:    ledger,
		stockGate: stockGate,
		tracer:    tracer,
	}
}

// ListGifts 返回全部奖品及各自的配额占用情况。
func (s *CatalogService) ListGifts(ctx context.Context) ([]*GiftResponse, error) {
	gifts, err := s.giftRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]*GiftResponse, 0, len(gifts))
	for i := range gifts {
		responses = append(responses, s.toResponse(ctx, &gifts[i]))
	}
	return responses, nil
}

// GetGift 按 id 返回单件奖品。
func (s *CatalogService) GetGift(ctx context.Context, id string) (*GiftResponse, error) {
	gift, err := s.giftRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, gift), nil
}

// CreateGift 创建一件奖品, 校验不变式和区域引用后落库,
// 并初始化配额台账与闸门库存。
func (s *CatalogService) CreateGift(ctx context.Context, req *GiftRequest) (*GiftResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateGift", trace.WithAttributes(
		attribute.String("gift.code", req.Code),
	))
	defer span.End()

	gift, err := s.buildGift(ctx, req)
	if err != nil {
		return nil, err
	}
	gift.ID = uuid.NewString()
	now := time.Now()
	gift.CreatedAt = now
	gift.UpdatedAt = now

	if err := s.giftRepo.Create(ctx, gift); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.syncStock(ctx, gift)

	logger.Ctx(ctx).Info().
		Str("gift_id", gift.ID).
		Str("code", gift.Code).
		Int("total_quantity", gift.TotalQuantity).
		Msg("gift created")
	return s.toResponse(ctx, gift), nil
}

// UpdateGift 更新奖品定义并重建计数。
// 已有的发奖记录不受影响, 配额收紧后超出的部分只是不再接受新 claim。
func (s *CatalogService) UpdateGift(ctx context.Context, id string, req *GiftRequest) (*GiftResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateGift", trace.WithAttributes(
		attribute.String("gift.id", id),
	))
	defer span.End()

	existing, err := s.giftRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	gift, err := s.buildGift(ctx, req)
	if err != nil {
		return nil, err
	}
	gift.ID = existing.ID
	gift.CreatedAt = existing.CreatedAt
	gift.UpdatedAt = time.Now()

	if err := s.giftRepo.Update(ctx, gift); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.syncStock(ctx, gift)

	logger.Ctx(ctx).Info().Str("gift_id", gift.ID).Msg("gift updated")
	return s.toResponse(ctx, gift), nil
}

// DeleteGift 下架一件奖品。已发出的记录保留（审计需要）。
func (s *CatalogService) DeleteGift(ctx context.Context, id string) error {
	if _, err := s.giftRepo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.giftRepo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("gift_id", id).Msg("gift deleted")
	return nil
}

// WarmupStock 在服务启动时为所有有效奖品重建台账计数并重灌闸门。
// 崩溃恢复后 Redis 里的预检计数可能与事实脱节, 这里统一对齐。
func (s *CatalogService) WarmupStock(ctx context.Context) error {
	gifts, err := s.giftRepo.FindActive(ctx, time.Now())
	if err != nil {
		return err
	}
	for i := range gifts {
		s.syncStock(ctx, &gifts[i])
	}
	logger.Ctx(ctx).Info().Int("gifts", len(gifts)).Msg("stock warmup completed")
	return nil
}

// buildGift 把请求体转成领域模型并做全部写入校验。
func (s *CatalogService) buildGift(ctx context.Context, req *GiftRequest) (*domain.Gift, error) {
	quota := make(domain.ZoneQuota, len(req.Zones))
	for _, entry := range req.Zones {
		if _, dup := quota[entry.ZoneID]; dup {
			return nil, domain.NewValidationError("zones", "duplicate zone %s", entry.ZoneID)
		}
		quota[entry.ZoneID] = entry.Quantity
	}

	gift := &domain.Gift{
		Code:            req.Code,
		Name:            req.Name,
		Donor:           req.Donor,
		ValidFrom:       req.StartDate,
		ValidTo:         req.EndDate,
		RequiredLevel:   domain.Level(req.RequiredLevel),
		TotalQuantity:   req.TotalQuantity,
		ZoneQuota:       quota,
		EligibilityRule: req.EligibilityRule,
	}
	if err := gift.Validate(); err != nil {
		return nil, err
	}

	// 配额引用的区域必须真实存在
	if gift.HasZoneQuota() {
		tree, err := s.zoneTree.Tree(ctx)
		if err != nil {
			return nil, err
		}
		for zoneID := range gift.ZoneQuota {
			if _, ok := tree.Get(zoneID); !ok {
				return nil, domain.NewValidationError("zones", "unknown zone %s", zoneID)
			}
		}
	}
	return gift, nil
}

// syncStock 在奖品定义变更后重建台账计数并重灌闸门。
// 两者都失败时不回滚写入, 只记故障: 台账可随时重建。
func (s *CatalogService) syncStock(ctx context.Context, gift *domain.Gift) {
	if err := s.ledger.Rebuild(ctx, gift); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("gift_id", gift.ID).
			Msg("failed to rebuild quota ledger")
		return
	}
	if s.stockGate == nil {
		return
	}
	reserved, err := s.ledger.Reserved(ctx, gift.ID)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("gift_id", gift.ID).
			Msg("failed to read reserved counts")
		return
	}
	used := 0
	for _, n := range reserved {
		used += n
	}
	remaining := gift.TotalQuantity - used
	if remaining < 0 {
		remaining = 0
	}
	if err := s.stockGate.Prepare(ctx, gift, remaining); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("gift_id", gift.ID).
			Msg("failed to prepare stock gate")
	}
}

func (s *CatalogService) toResponse(ctx context.Context, gift *domain.Gift) *GiftResponse {
	reserved, err := s.ledger.Reserved(ctx, gift.ID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("gift_id", gift.ID).
			Msg("failed to read reserved counts for response")
		reserved = nil
	}
	return NewGiftResponse(gift, reserved)
}
