// internal/service/gift/infrastructure/ledger_gorm.go
package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

// bucketTotal 是全局余量计数行的桶名。每次预留除了扣减目标桶，
// 还要在同一事务里扣减这一行——区域配额是全局库存的划分。
const bucketTotal = "__TOTAL__"

// reserveTimeout 限定单次预留事务的时长，卡住的请求不能饿死台账。
const reserveTimeout = 3 * time.Second

// GormQuotaLedger 是 port.QuotaLedger 的 MySQL 实现。
// 预留是一次事务内的 SELECT ... FOR UPDATE + 比较自增：
// 行锁把同一 (gift, bucket) 上的并发预留串行化。
type GormQuotaLedger struct {
	db *gorm.DB
}

func NewGormQuotaLedger(db *gorm.DB) *GormQuotaLedger {
	return &GormQuotaLedger{db: db}
}

func (l *GormQuotaLedger) TryReserve(ctx context.Context, gift *domain.Gift, bucket string) (port.ReservationToken, error) {
	ctx, cancel := context.WithTimeout(ctx, reserveTimeout)
	defer cancel()

	token := port.ReservationToken{ID: uuid.NewString(), GiftID: gift.ID, Bucket: bucket}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 固定加锁顺序（先全局行，再桶行），避免互相持锁死锁
		totalRow, err := l.lockCounter(tx, gift, bucketTotal)
		if err != nil {
			return err
		}
		if totalRow.Reserved >= totalRow.Capacity {
			return domain.ErrQuotaExhausted
		}

		bucketRow := totalRow
		if bucket != bucketTotal {
			bucketRow, err = l.lockCounter(tx, gift, bucket)
			if err != nil {
				return err
			}
			if bucketRow.Reserved >= bucketRow.Capacity {
				return domain.ErrQuotaExhausted
			}
		}

		if err := tx.Model(&QuotaCounterModel{}).Where("id = ?", bucketRow.ID).
			Update("reserved", gorm.Expr("reserved + 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&QuotaCounterModel{}).Where("id = ?", totalRow.ID).
			Update("reserved", gorm.Expr("reserved + 1")).Error; err != nil {
			return err
		}

		return tx.Create(&QuotaReservationModel{
			ID:     token.ID,
			GiftID: gift.ID,
			Bucket: bucket,
		}).Error
	})
	if err != nil {
		return port.ReservationToken{}, err
	}
	return token, nil
}

// lockCounter 以 FOR UPDATE 读取计数行，不存在时补建。
// 补建走独立 INSERT 再重读，唯一索引保证并发补建只有一行胜出。
func (l *GormQuotaLedger) lockCounter(tx *gorm.DB, gift *domain.Gift, bucket string) (*QuotaCounterModel, error) {
	var row QuotaCounterModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gift_id = ? AND bucket = ?", gift.ID, bucket).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	capacity := gift.TotalQuantity
	if bucket != bucketTotal {
		capacity = gift.BucketCapacity(bucket)
	}
	insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&QuotaCounterModel{
		GiftID:   gift.ID,
		Bucket:   bucket,
		Capacity: capacity,
	})
	if insert.Error != nil {
		return nil, insert.Error
	}
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gift_id = ? AND bucket = ?", gift.ID, bucket).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Release 把一份预留退回池子。对已释放或未知的令牌是空操作，
// 以容忍崩溃恢复期间的重试。
func (l *GormQuotaLedger) Release(ctx context.Context, token port.ReservationToken) error {
	ctx, cancel := context.WithTimeout(ctx, reserveTimeout)
	defer cancel()

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reservation QuotaReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", token.ID).
			First(&reservation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if reservation.Released {
			return nil
		}

		if err := tx.Model(&QuotaCounterModel{}).
			Where("gift_id = ? AND bucket = ? AND reserved > 0", reservation.GiftID, reservation.Bucket).
			Update("reserved", gorm.Expr("reserved - 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&QuotaCounterModel{}).
			Where("gift_id = ? AND bucket = ? AND reserved > 0", reservation.GiftID, bucketTotal).
			Update("reserved", gorm.Expr("reserved - 1")).Error; err != nil {
			return err
		}

		return tx.Model(&QuotaReservationModel{}).
			Where("id = ?", reservation.ID).
			Update("released", true).Error
	})
}

// Rebuild 从 allocations（事实来源）重算并重写奖品的计数行。
// 奖品创建、配额调整和服务冷启动时调用。
func (l *GormQuotaLedger) Rebuild(ctx context.Context, gift *domain.Gift) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type row struct {
			Bucket string
			N      int
		}
		var rows []row
		err := tx.Model(&AllocationModel{}).
			Select("bucket, COUNT(*) AS n").
			Where("gift_id = ? AND status IN ?", gift.ID,
				[]string{string(domain.StatusPending), string(domain.StatusWon), string(domain.StatusRedeemed)}).
			Group("bucket").
			Scan(&rows).Error
		if err != nil {
			return err
		}

		reserved := make(map[string]int, len(rows))
		total := 0
		for _, r := range rows {
			reserved[r.Bucket] = r.N
			total += r.N
		}

		if err := tx.Where("gift_id = ?", gift.ID).Delete(&QuotaCounterModel{}).Error; err != nil {
			return err
		}

		counters := make([]QuotaCounterModel, 0, len(gift.ZoneQuota)+2)
		for _, bucket := range gift.Buckets() {
			counters = append(counters, QuotaCounterModel{
				GiftID:   gift.ID,
				Bucket:   bucket,
				Capacity: gift.BucketCapacity(bucket),
				Reserved: reserved[bucket],
			})
		}
		counters = append(counters, QuotaCounterModel{
			GiftID:   gift.ID,
			Bucket:   bucketTotal,
			Capacity: gift.TotalQuantity,
			Reserved: total,
		})
		return tx.Create(&counters).Error
	})
}

func (l *GormQuotaLedger) Reserved(ctx context.Context, giftID string) (map[string]int, error) {
	var rows []QuotaCounterModel
	err := l.db.WithContext(ctx).Where("gift_id = ? AND bucket <> ?", giftID, bucketTotal).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Bucket] = r.Reserved
	}
	return counts, nil
}
