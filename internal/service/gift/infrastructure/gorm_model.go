// internal/service/gift/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// ZoneModel 对应数据库中的 zones 表。
type ZoneModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Type      string `gorm:"size:16;not null"`
	Name      string `gorm:"size:128;not null"`
	ParentID  sql.NullString `gorm:"size:36;index"`
	Metadata  string `gorm:"type:text"` // JSON
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (ZoneModel) TableName() string { return "zones" }

// GiftModel 对应数据库中的 gifts 表。
// ZoneQuota 以 JSON 文本存储，出入库时经 mapper 转换为显式的值类型。
type GiftModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	Code            string `gorm:"size:32;uniqueIndex;not null"`
	Name            string `gorm:"size:128;not null"`
	Donor           string `gorm:"size:128"`
	ValidFrom       *time.Time
	ValidTo         *time.Time `gorm:"index"`
	RequiredLevel   string     `gorm:"size:16"`
	TotalQuantity   int        `gorm:"not null"`
	ZoneQuota       string     `gorm:"type:text"` // JSON: {zone_id: quantity}
	EligibilityRule string     `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (GiftModel) TableName() string { return "gifts" }

// PlayerModel 对应数据库中的 players 表。
// 该表由答题计分子系统写入，这里只读。
type PlayerModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Nickname     string `gorm:"size:64"`
	Points       int
	Level        string `gorm:"size:16;index"`
	ZoneID       sql.NullString `gorm:"size:36;index"`
	LastPlayedAt *time.Time
	CreatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (PlayerModel) TableName() string { return "players" }

// AllocationModel 对应数据库中的 allocations 表。
//
// Live 列是 "同一 (gift, player) 至多一条存活记录" 不变式的落地：
// 存活记录该列为 1，过期时置 NULL。MySQL 的唯一索引允许多个 NULL，
// 所以 (gift_id, player_id, live) 唯一索引恰好只约束存活记录。
type AllocationModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	GiftID        string `gorm:"size:36;not null;uniqueIndex:uniq_live_claim;index"`
	PlayerID      string `gorm:"size:36;not null;uniqueIndex:uniq_live_claim;index"`
	Live          *int8  `gorm:"uniqueIndex:uniq_live_claim"`
	Bucket        string `gorm:"size:36;not null"`
	ReservationID string `gorm:"size:36;not null"`
	Status        string `gorm:"size:16;not null;index"`
	AllocatedAt   time.Time
	RedeemedAt    *time.Time
	ExpiredAt     *time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"` // 仅用于 GDPR 式擦除
}

func (AllocationModel) TableName() string { return "allocations" }

// QuotaCounterModel 对应 quota_counters 表：每个 (gift, bucket) 一行
// 活计数。可随时从 allocations 重建，存在只是为了让预留变成一次
// 行锁内的比较自增。
type QuotaCounterModel struct {
	ID       uint   `gorm:"primaryKey"`
	GiftID   string `gorm:"size:36;not null;uniqueIndex:uniq_gift_bucket"`
	Bucket   string `gorm:"size:36;not null;uniqueIndex:uniq_gift_bucket"`
	Capacity int    `gorm:"not null"`
	Reserved int    `gorm:"not null;default:0"`
}

func (QuotaCounterModel) TableName() string { return "quota_counters" }

// QuotaReservationModel 对应 quota_reservations 表，记录每个预留令牌，
// 使 Release 可以做到幂等。
type QuotaReservationModel struct {
	ID        string `gorm:"primaryKey;size:36"` // 令牌 uuid
	GiftID    string `gorm:"size:36;not null;index"`
	Bucket    string `gorm:"size:36;not null"`
	Released  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (QuotaReservationModel) TableName() string { return "quota_reservations" }
