// internal/service/gift/infrastructure/mysql.go
package infrastructure

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB 打开 MySQL 连接并迁移发奖引擎的表结构。
func NewDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&ZoneModel{},
		&GiftModel{},
		&PlayerModel{},
		&AllocationModel{},
		&QuotaCounterModel{},
		&QuotaReservationModel{},
	); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}
	return db, nil
}
