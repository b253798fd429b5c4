// internal/service/gift/infrastructure/adapter/stock_redis_adapter.go
package adapter

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"ecoquiz/internal/pkg/redis"
	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

const (
	claimGateScriptName   = "claim_gate"
	claimRefundScriptName = "claim_refund"
)

// StockRedisAdapter 是 port.StockGate 的 Redis 实现。
// 热门奖品开抢时大量请求同时到达，这个闸门用一段 Lua 脚本
// 原子地做"查重 + 预扣"，把明显无望的请求挡在数据库事务之外。
type StockRedisAdapter struct {
	redisClient *redis.Client
}

// NewStockRedisAdapter 创建闸门适配器，并预加载所需的 Lua 脚本。
func NewStockRedisAdapter(redisClient *redis.Client) (*StockRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(claimGateScriptName, claimGateScript); err != nil {
		return nil, errors.Wrap(err, "failed to load claim gate script")
	}
	if err := redisClient.LoadScriptFromContent(claimRefundScriptName, claimRefundScript); err != nil {
		return nil, errors.Wrap(err, "failed to load claim refund script")
	}
	return &StockRedisAdapter{redisClient: redisClient}, nil
}

func (a *StockRedisAdapter) Check(ctx context.Context, giftID, playerID string) (port.GateResult, error) {
	keys := []string{stockKey(giftID), claimantsKey(giftID)}

	result, err := a.redisClient.RunScript(ctx, claimGateScriptName, keys, playerID)
	if err != nil {
		return 0, errors.Wrap(err, "claim gate script failed")
	}
	code, ok := result.(int64)
	if !ok {
		return 0, errors.Errorf("unexpected result type from claim gate script: %T", result)
	}

	switch code {
	case 1:
		return port.GatePass, nil
	case 0:
		return port.GateSoldOut, nil
	case 2:
		return port.GateDuplicate, nil
	default:
		return 0, errors.Errorf("unknown result code from claim gate script: %d", code)
	}
}

func (a *StockRedisAdapter) Refund(ctx context.Context, giftID, playerID string) error {
	keys := []string{stockKey(giftID), claimantsKey(giftID)}
	_, err := a.redisClient.RunScript(ctx, claimRefundScriptName, keys, playerID)
	return errors.Wrap(err, "claim refund script failed")
}

// Prepare 用台账的剩余量重灌闸门计数，并清空已登记的玩家集合。
func (a *StockRedisAdapter) Prepare(ctx context.Context, gift *domain.Gift, remaining int) error {
	pipe := a.redisClient.GetClient().Pipeline()
	pipe.Set(ctx, stockKey(gift.ID), remaining, 0)
	pipe.Del(ctx, claimantsKey(gift.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to prepare stock gate for gift %s", gift.ID)
	}
	return nil
}

// hash tag 保证同一奖品的两个 key 落在同一个 cluster slot
func stockKey(giftID string) string {
	return fmt.Sprintf("gift:stock:{%s}", giftID)
}

func claimantsKey(giftID string) string {
	return fmt.Sprintf("gift:claimants:{%s}", giftID)
}

var claimGateScript = `
-- KEYS[1]: 闸门库存计数, 例如 gift:stock:{gift-123}
-- KEYS[2]: 已登记玩家集合, 例如 gift:claimants:{gift-123}
-- ARGV[1]: 当前玩家 ID

-- 1. 查重: 同一玩家不允许重复领取
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
    return 2
end

-- 2. 读取剩余量
local stock = tonumber(redis.call('get', KEYS[1]))

-- 3. 有余量则预扣并登记玩家
if stock and stock > 0 then
    redis.call('decr', KEYS[1])
    redis.call('sadd', KEYS[2], ARGV[1])
    return 1
end

-- 4. 售罄
return 0
`

var claimRefundScript = `
-- 补偿: 退回一份预扣并移除玩家登记。幂等——玩家不在集合里时不加库存。
if redis.call('srem', KEYS[2], ARGV[1]) == 1 then
    redis.call('incr', KEYS[1])
end
return 1
`
