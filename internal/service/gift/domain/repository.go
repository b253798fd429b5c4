// internal/service/gift/domain/repository.go
package domain

import (
	"context"
	"time"
)

// ZoneRepository 定义了区域数据的持久化接口。
// 位于领域层，由基础设施层实现。
type ZoneRepository interface {
	FindAll(ctx context.Context) ([]Zone, error)
	FindByID(ctx context.Context, id string) (*Zone, error)
	Create(ctx context.Context, zone *Zone) error
	Update(ctx context.Context, zone *Zone) error
	// Delete 软删除一个区域，并把其直接子节点的父引用置空（挂到根上）。
	Delete(ctx context.Context, id string) error
}

// GiftRepository 定义了奖品目录的持久化接口。
type GiftRepository interface {
	FindAll(ctx context.Context) ([]Gift, error)
	// FindActive 返回在指定时刻处于有效期内的奖品。
	FindActive(ctx context.Context, at time.Time) ([]Gift, error)
	FindByID(ctx context.Context, id string) (*Gift, error)
	FindByCode(ctx context.Context, code string) (*Gift, error)
	Create(ctx context.Context, gift *Gift) error
	Update(ctx context.Context, gift *Gift) error
	Delete(ctx context.Context, id string) error
}

// PlayerRepository 是玩家数据的只读接口。
// 玩家由答题计分子系统维护，发奖引擎不修改它。
type PlayerRepository interface {
	FindByID(ctx context.Context, id string) (*Player, error)
}

// AllocationRepository 定义了发奖记录的持久化接口。
type AllocationRepository interface {
	// Create 插入一条新记录。同一 (gift, player) 已存在存活记录时
	// 返回 ErrDuplicateAllocation（由唯一索引兜底并发竞争）。
	Create(ctx context.Context, allocation *Allocation) error

	FindByID(ctx context.Context, id string) (*Allocation, error)

	// FindLiveByGiftAndPlayer 查找指定 (gift, player) 的存活记录
	// （状态非 EXPIRED），没有时返回 ErrAllocationNotFound。
	FindLiveByGiftAndPlayer(ctx context.Context, giftID, playerID string) (*Allocation, error)

	// TransitionStatus 带状态前置条件地更新一条记录，
	// 是状态机对并发流转（如核销 vs 过期）的串行化点。
	// 前置条件不满足时返回 false 而不是报错，由调用方决定语义。
	TransitionStatus(ctx context.Context, allocation *Allocation, from []AllocationStatus) (bool, error)

	// FindOverdue 返回奖品有效期已过、状态仍为 PENDING/WON 的记录。
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]Allocation, error)

	// CountLiveByGiftAndBucket 按 (gift, bucket) 统计存活记录数，
	// 配额台账用它从事实表重建计数。
	CountLiveByGiftAndBucket(ctx context.Context, giftID string) (map[string]int, error)
}

// StatsQuery 是统计报表的过滤条件。
type StatsQuery struct {
	From   *time.Time
	To     *time.Time
	ZoneID string  // 为空表示不过滤；否则限定该区域子树
	Levels []Level // 为空表示全部等级
}

// LevelStats 是单个等级的发奖统计。
type LevelStats struct {
	Level        Level
	TotalPlayers int64
	Winners      int64
}

// StatsRepository 是报表聚合查询的只读接口。
// 读已提交即可，几秒的陈旧是预期内的。
type StatsRepository interface {
	// CountPlayers 统计订阅玩家总数与期间内至少玩过一次的玩家数。
	CountPlayers(ctx context.Context, q StatsQuery, zoneIDs []string) (total, active int64, err error)

	// WinnersByLevel 统计各等级的玩家数和获奖玩家数
	// （奖品等级门槛等于该等级，状态 WON/REDEEMED）。
	WinnersByLevel(ctx context.Context, q StatsQuery, zoneIDs []string) ([]LevelStats, error)

	// AvgTimeToWinSeconds 返回从玩家注册到首次获奖的平均秒数。
	AvgTimeToWinSeconds(ctx context.Context, q StatsQuery, zoneIDs []string) (float64, error)
}
