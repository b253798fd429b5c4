// internal/service/gift/domain/port/stockgate.go
package port

import (
	"context"

	"ecoquiz/internal/service/gift/domain"
)

// GateResult 是库存闸门预检的结果。
type GateResult int

const (
	GatePass GateResult = iota + 1
	GateSoldOut
	GateDuplicate
)

// StockGate 是放在数据库台账前面的快速预检闸门（Redis 实现）。
// 它只负责在高并发下把明显售罄/重复的请求挡在事务之外，
// 从不作为事实来源：计数可随时从台账重灌。
type StockGate interface {
	// Check 原子地预扣一份闸门库存并登记玩家。
	Check(ctx context.Context, giftID, playerID string) (GateResult, error)

	// Refund 退回 Check 扣掉的那一份（补偿动作，幂等）。
	Refund(ctx context.Context, giftID, playerID string) error

	// Prepare 用台账的剩余量重灌闸门计数。
	Prepare(ctx context.Context, gift *domain.Gift, remaining int) error
}
