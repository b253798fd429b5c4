// internal/service/gift/infrastructure/stats_gorm.go
package infrastructure

import (
	"context"

	"gorm.io/gorm"

	"ecoquiz/internal/service/gift/domain"
)

// GormStatsRepository 是 domain.StatsRepository 的 GORM 实现。
// 报表查询直接在事实表上做聚合，读已提交即可。
type GormStatsRepository struct {
	db *gorm.DB
}

func NewGormStatsRepository(db *gorm.DB) *GormStatsRepository {
	return &GormStatsRepository{db: db}
}

// playerScope 把报表过滤条件应用到 players 表上。
func playerScope(q domain.StatsQuery, zoneIDs []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if len(zoneIDs) > 0 {
			db = db.Where("players.zone_id IN ?", zoneIDs)
		}
		if len(q.Levels) > 0 {
			levels := make([]string, 0, len(q.Levels))
			for _, l := range q.Levels {
				levels = append(levels, string(l))
			}
			db = db.Where("players.level IN ?", levels)
		}
		return db
	}
}

func (r *GormStatsRepository) CountPlayers(ctx context.Context, q domain.StatsQuery, zoneIDs []string) (total, active int64, err error) {
	base := r.db.WithContext(ctx).Model(&PlayerModel{}).Scopes(playerScope(q, zoneIDs))
	if err = base.Count(&total).Error; err != nil {
		return 0, 0, err
	}

	activeQuery := r.db.WithContext(ctx).Model(&PlayerModel{}).Scopes(playerScope(q, zoneIDs)).
		Where("last_played_at IS NOT NULL")
	if q.From != nil {
		activeQuery = activeQuery.Where("last_played_at >= ?", *q.From)
	}
	if q.To != nil {
		activeQuery = activeQuery.Where("last_played_at <= ?", *q.To)
	}
	if err = activeQuery.Count(&active).Error; err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

// WinnersByLevel 统计各等级的玩家数与获奖玩家数。
// 获奖口径: 玩家有至少一条 WON/REDEEMED 记录, 且该奖品的等级门槛
// 正好等于玩家等级。
func (r *GormStatsRepository) WinnersByLevel(ctx context.Context, q domain.StatsQuery, zoneIDs []string) ([]domain.LevelStats, error) {
	type row struct {
		Level string
		N     int64
	}

	var totals []row
	err := r.db.WithContext(ctx).Model(&PlayerModel{}).
		Scopes(playerScope(q, zoneIDs)).
		Select("players.level AS level, COUNT(*) AS n").
		Group("players.level").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	winnersQuery := r.db.WithContext(ctx).Model(&PlayerModel{}).
		Scopes(playerScope(q, zoneIDs)).
		Joins("JOIN allocations ON allocations.player_id = players.id AND allocations.deleted_at IS NULL").
		Joins("JOIN gifts ON gifts.id = allocations.gift_id AND gifts.deleted_at IS NULL").
		Where("allocations.status IN ?", []string{string(domain.StatusWon), string(domain.StatusRedeemed)}).
		Where("gifts.required_level = players.level").
		Select("players.level AS level, COUNT(DISTINCT players.id) AS n").
		Group("players.level")
	if q.From != nil {
		winnersQuery = winnersQuery.Where("allocations.allocated_at >= ?", *q.From)
	}
	if q.To != nil {
		winnersQuery = winnersQuery.Where("allocations.allocated_at <= ?", *q.To)
	}
	var winners []row
	if err := winnersQuery.Scan(&winners).Error; err != nil {
		return nil, err
	}
	winnerByLevel := make(map[string]int64, len(winners))
	for _, w := range winners {
		winnerByLevel[w.Level] = w.N
	}

	stats := make([]domain.LevelStats, 0, len(totals))
	for _, t := range totals {
		stats = append(stats, domain.LevelStats{
			Level:        domain.Level(t.Level),
			TotalPlayers: t.N,
			Winners:      winnerByLevel[t.Level],
		})
	}
	return stats, nil
}

// AvgTimeToWinSeconds 返回玩家从注册到首次获奖的平均秒数。
// 每个玩家只取最早的一条 WON/REDEEMED 记录。
func (r *GormStatsRepository) AvgTimeToWinSeconds(ctx context.Context, q domain.StatsQuery, zoneIDs []string) (float64, error) {
	firstWins := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Select("player_id, MIN(allocated_at) AS first_won_at").
		Where("status IN ?", []string{string(domain.StatusWon), string(domain.StatusRedeemed)}).
		Group("player_id")
	if q.From != nil {
		firstWins = firstWins.Where("allocated_at >= ?", *q.From)
	}
	if q.To != nil {
		firstWins = firstWins.Where("allocated_at <= ?", *q.To)
	}

	var avg *float64
	err := r.db.WithContext(ctx).Model(&PlayerModel{}).
		Scopes(playerScope(q, zoneIDs)).
		Joins("JOIN (?) AS first_wins ON first_wins.player_id = players.id", firstWins).
		Select("AVG(TIMESTAMPDIFF(SECOND, players.created_at, first_wins.first_won_at))").
		Scan(&avg).Error
	if err != nil {
		return 0, err
	}
	if avg == nil {
		// 期间内没有任何获奖玩家
		return 0, nil
	}
	return *avg, nil
}
