// internal/service/gift/application/stats.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// StatsService 生成参与率/中奖率报表。
// 读已提交即可, 报表允许几秒的陈旧。
type StatsService struct {
	statsRepo domain.StatsRepository
	zoneTree  port.ZoneTreeProvider
	tracer    trace.Tracer
}

// NewStatsService 组装统计服务。
func NewStatsService(statsRepo domain.StatsRepository, zoneTree port.ZoneTreeProvider, tracer trace.Tracer) *StatsService {
	return &StatsService{statsRepo: statsRepo, zoneTree: zoneTree, tracer: tracer}
}

// Report 生成一份统计报表。
// 区域过滤展开成子树内的全部 zone id 后下推给仓储查询。
func (s *StatsService) Report(ctx context.Context, q domain.StatsQuery) (*StatsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.StatsReport")
	defer span.End()

	for _, level := range q.Levels {
		if !level.Valid() {
			return nil, domain.NewValidationError("levels", "unknown level %q", level)
		}
	}

	var zoneIDs []string
	if q.ZoneID != "" {
		tree, err := s.zoneTree.Tree(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		zoneIDs = tree.Descendants(q.ZoneID)
		if zoneIDs == nil {
			return nil, domain.ErrZoneNotFound
		}
		span.SetAttributes(attribute.Int("stats.zone_subtree_size", len(zoneIDs)))
	}

	total, active, err := s.statsRepo.CountPlayers(ctx, q, zoneIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	byLevel, err := s.statsRepo.WinnersByLevel(ctx, q, zoneIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	avgSeconds, err := s.statsRepo.AvgTimeToWinSeconds(ctx, q, zoneIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp := &StatsResponse{
		TotalPlayers:        total,
		ActivePlayers:       active,
		AvgTimeToWinSeconds: avgSeconds,
	}
	if total > 0 {
		resp.ParticipationRate = float64(active) / float64(total)
	}
	for _, stats := range byLevel {
		rate := LevelWinRate{
			Level:        string(stats.Level),
			TotalPlayers: stats.TotalPlayers,
			Winners:      stats.Winners,
		}
		if stats.TotalPlayers > 0 {
			rate.WinRate = float64(stats.Winners) / float64(stats.TotalPlayers)
		}
		resp.WinRateByLevel = append(resp.WinRateByLevel, rate)
	}
	return resp, nil
}
