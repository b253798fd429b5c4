// internal/service/gift/application/zones.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// ZoneService 管理区域层级。写操作后让缓存的树快照失效。
type ZoneService struct {
	zoneRepo domain.ZoneRepository
	zoneTree port.ZoneTreeProvider
	tracer   trace.Tracer
}

// NewZoneService 组装区域服务。
func NewZoneService(zoneRepo domain.ZoneRepository, zoneTree port.ZoneTreeProvider, tracer trace.Tracer) *ZoneService {
	return &ZoneService{zoneRepo: zoneRepo, zoneTree: zoneTree, tracer: tracer}
}

// ListZones 返回全部区域。
func (s *ZoneService) ListZones(ctx context.Context) ([]*ZoneResponse, error) {
	zones, err := s.zoneRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]*ZoneResponse, 0, len(zones))
	for i := range zones {
		responses = append(responses, NewZoneResponse(&zones[i]))
	}
	return responses, nil
}

// GetZone 按 id 返回单个区域。
func (s *ZoneService) GetZone(ctx context.Context, id string) (*ZoneResponse, error) {
	zone, err := s.zoneRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewZoneResponse(zone), nil
}

// CreateZone 创建一个区域节点。父节点必须已存在, 树因此在构造上无环。
func (s *ZoneService) CreateZone(ctx context.Context, req *ZoneRequest) (*ZoneResponse, error) {
	if err := s.validate(ctx, req, ""); err != nil {
		return nil, err
	}

	now := time.Now()
	zone := &domain.Zone{
		ID:        uuid.NewString(),
		Type:      domain.ZoneType(req.Type),
		Name:      req.Name,
		ParentID:  req.ParentZoneID,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.zoneRepo.Create(ctx, zone); err != nil {
		return nil, err
	}
	s.zoneTree.Invalidate()

	logger.Ctx(ctx).Info().
		Str("zone_id", zone.ID).
		Str("type", string(zone.Type)).
		Str("name", zone.Name).
		Msg("zone created")
	return NewZoneResponse(zone), nil
}

// UpdateZone 更新区域节点。换父时校验不会引入环。
func (s *ZoneService) UpdateZone(ctx context.Context, id string, req *ZoneRequest) (*ZoneResponse, error) {
	existing, err := s.zoneRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, req, id); err != nil {
		return nil, err
	}

	existing.Type = domain.ZoneType(req.Type)
	existing.Name = req.Name
	existing.ParentID = req.ParentZoneID
	existing.Metadata = req.Metadata
	existing.UpdatedAt = time.Now()

	if err := s.zoneRepo.Update(ctx, existing); err != nil {
		return nil, err
	}
	s.zoneTree.Invalidate()

	logger.Ctx(ctx).Info().Str("zone_id", id).Msg("zone updated")
	return NewZoneResponse(existing), nil
}

// DeleteZone 删除区域节点, 其直接子节点挂到根上。
// 引用它的奖品配额桶保留, 只是不会再有玩家落进去。
func (s *ZoneService) DeleteZone(ctx context.Context, id string) error {
	if _, err := s.zoneRepo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.zoneRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.zoneTree.Invalidate()

	logger.Ctx(ctx).Info().Str("zone_id", id).Msg("zone deleted, children detached")
	return nil
}

// validate 校验区域请求。selfID 非空时是更新, 用于环检测。
func (s *ZoneService) validate(ctx context.Context, req *ZoneRequest, selfID string) error {
	if req.Name == "" {
		return domain.NewValidationError("name", "must not be empty")
	}
	if !domain.ValidZoneType(domain.ZoneType(req.Type)) {
		return domain.NewValidationError("type", "unknown zone type %q", req.Type)
	}
	if req.ParentZoneID == "" {
		return nil
	}
	if req.ParentZoneID == selfID {
		return domain.NewValidationError("parent_zone_id", "zone cannot be its own parent")
	}

	tree, err := s.zoneTree.Tree(ctx)
	if err != nil {
		return err
	}
	if _, ok := tree.Get(req.ParentZoneID); !ok {
		return domain.NewValidationError("parent_zone_id", "unknown zone %s", req.ParentZoneID)
	}
	// 新父节点不能位于自己的子树里
	if selfID != "" && tree.IsDescendantOf(req.ParentZoneID, selfID) {
		return domain.NewValidationError("parent_zone_id", "would create a cycle")
	}
	return nil
}
