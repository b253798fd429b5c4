// internal/service/gift/domain/player.go
package domain

import "time"

// Level 是玩家等级，带全序关系：DECOUVERTE < CONNAISSEUR < EXPERT。
type Level string

const (
	LevelDecouverte  Level = "DECOUVERTE"
	LevelConnaisseur Level = "CONNAISSEUR"
	LevelExpert      Level = "EXPERT"
)

var levelRanks = map[Level]int{
	LevelDecouverte:  1,
	LevelConnaisseur: 2,
	LevelExpert:      3,
}

// Rank 返回等级的序数，未知等级返回 0。
func (l Level) Rank() int {
	return levelRanks[l]
}

// Valid 检查等级是否是已知值。
func (l Level) Valid() bool {
	return l.Rank() > 0
}

// AtLeast 按序比较两个等级。
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

// Player 是答题玩家。积分和等级由外部的答题计分子系统维护，
// 发奖引擎只做只读访问。
type Player struct {
	ID           string
	Nickname     string
	Points       int
	Level        Level
	ZoneID       string // 为空表示无区域归属
	LastPlayedAt *time.Time
	CreatedAt    time.Time
}
