// internal/service/gift/infrastructure/ledger_memory.go
package infrastructure

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// MemoryQuotaLedger 是 port.QuotaLedger 的进程内实现：
// 一把互斥锁做单写者，所有计数变更经过同一个串行化点。
// 单机部署和测试使用；计数不持久化，重启后由 Rebuild 重灌。
type MemoryQuotaLedger struct {
	mu sync.Mutex

	// counters[giftID][bucket]，含 bucketTotal 行
	counters map[string]map[string]*memCounter
	// tokens 记录未释放的预留，保证 Release 幂等
	tokens map[string]port.ReservationToken
}

type memCounter struct {
	capacity int
	reserved int
}

func NewMemoryQuotaLedger() *MemoryQuotaLedger {
	return &MemoryQuotaLedger{
		counters: make(map[string]map[string]*memCounter),
		tokens:   make(map[string]port.ReservationToken),
	}
}

func (l *MemoryQuotaLedger) TryReserve(ctx context.Context, gift *domain.Gift, bucket string) (port.ReservationToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buckets := l.bucketsFor(gift)
	totalRow := buckets[bucketTotal]
	if totalRow.reserved >= totalRow.capacity {
		return port.ReservationToken{}, domain.ErrQuotaExhausted
	}

	bucketRow := totalRow
	if bucket != bucketTotal {
		row, ok := buckets[bucket]
		if !ok {
			row = &memCounter{capacity: gift.BucketCapacity(bucket)}
			buckets[bucket] = row
		}
		bucketRow = row
		if bucketRow.reserved >= bucketRow.capacity {
			return port.ReservationToken{}, domain.ErrQuotaExhausted
		}
	}

	// 桶计数和全局计数在同一临界区内一起自增
	bucketRow.reserved++
	if bucketRow != totalRow {
		totalRow.reserved++
	}

	token := port.ReservationToken{ID: uuid.NewString(), GiftID: gift.ID, Bucket: bucket}
	l.tokens[token.ID] = token
	return token, nil
}

func (l *MemoryQuotaLedger) Release(ctx context.Context, token port.ReservationToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.tokens[token.ID]
	if !ok {
		return nil // 未知或已释放的令牌：空操作
	}
	delete(l.tokens, token.ID)

	buckets, ok := l.counters[stored.GiftID]
	if !ok {
		return nil
	}
	if row, ok := buckets[stored.Bucket]; ok && row.reserved > 0 {
		row.reserved--
	}
	if stored.Bucket != bucketTotal {
		if row, ok := buckets[bucketTotal]; ok && row.reserved > 0 {
			row.reserved--
		}
	}
	return nil
}

// Rebuild 按奖品定义重置各桶容量。进程内实现没有独立的事实表，
// 已有的预留计数按新容量保留。
func (l *MemoryQuotaLedger) Rebuild(ctx context.Context, gift *domain.Gift) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.counters[gift.ID]
	buckets := make(map[string]*memCounter, len(gift.ZoneQuota)+2)
	reservedTotal := 0
	for _, bucket := range gift.Buckets() {
		row := &memCounter{capacity: gift.BucketCapacity(bucket)}
		if prev, ok := old[bucket]; ok {
			row.reserved = prev.reserved
		}
		reservedTotal += row.reserved
		buckets[bucket] = row
	}
	buckets[bucketTotal] = &memCounter{capacity: gift.TotalQuantity, reserved: reservedTotal}
	l.counters[gift.ID] = buckets
	return nil
}

func (l *MemoryQuotaLedger) Reserved(ctx context.Context, giftID string) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int)
	for bucket, row := range l.counters[giftID] {
		if bucket == bucketTotal {
			continue
		}
		counts[bucket] = row.reserved
	}
	return counts, nil
}

func (l *MemoryQuotaLedger) bucketsFor(gift *domain.Gift) map[string]*memCounter {
	buckets, ok := l.counters[gift.ID]
	if !ok {
		buckets = make(map[string]*memCounter, len(gift.ZoneQuota)+2)
		buckets[bucketTotal] = &memCounter{capacity: gift.TotalQuantity}
		l.counters[gift.ID] = buckets
	}
	return buckets
}
