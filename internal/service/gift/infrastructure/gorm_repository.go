// internal/service/gift/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"ecoquiz/internal/service/gift/domain"
)

const mysqlErrDuplicateEntry = 1062

// isDuplicateKey 识别 MySQL 唯一索引冲突。
func isDuplicateKey(err error) bool {
	var mysqlErr *gosqlmysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GormZoneRepository 是 domain.ZoneRepository 的 GORM 实现。
type GormZoneRepository struct {
	db *gorm.DB
}

func NewGormZoneRepository(db *gorm.DB) *GormZoneRepository {
	return &GormZoneRepository{db: db}
}

func (r *GormZoneRepository) FindAll(ctx context.Context) ([]domain.Zone, error) {
	var models []ZoneModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	zones := make([]domain.Zone, 0, len(models))
	for i := range models {
		zones = append(zones, *ToDomainZone(&models[i]))
	}
	return zones, nil
}

func (r *GormZoneRepository) FindByID(ctx context.Context, id string) (*domain.Zone, error) {
	var model ZoneModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrZoneNotFound
		}
		return nil, err
	}
	return ToDomainZone(&model), nil
}

func (r *GormZoneRepository) Create(ctx context.Context, zone *domain.Zone) error {
	model, err := FromDomainZone(zone)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormZoneRepository) Update(ctx context.Context, zone *domain.Zone) error {
	model, err := FromDomainZone(zone)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&ZoneModel{}).Where("id = ?", zone.ID).Updates(map[string]interface{}{
		"type":      model.Type,
		"name":      model.Name,
		"parent_id": model.ParentID,
		"metadata":  model.Metadata,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrZoneNotFound
	}
	return nil
}

// Delete 软删除区域并把直接子节点挂到根上（detach 策略）。
func (r *GormZoneRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&ZoneModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrZoneNotFound
		}
		return tx.Model(&ZoneModel{}).Where("parent_id = ?", id).Update("parent_id", nil).Error
	})
}

// GormGiftRepository 是 domain.GiftRepository 的 GORM 实现。
type GormGiftRepository struct {
	db *gorm.DB
}

func NewGormGiftRepository(db *gorm.DB) *GormGiftRepository {
	return &GormGiftRepository{db: db}
}

func (r *GormGiftRepository) FindAll(ctx context.Context) ([]domain.Gift, error) {
	var models []GiftModel
	if err := r.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	return r.toDomainList(models)
}

func (r *GormGiftRepository) FindActive(ctx context.Context, at time.Time) ([]domain.Gift, error) {
	var models []GiftModel
	err := r.db.WithContext(ctx).
		Where("(valid_from IS NULL OR valid_from <= ?) AND (valid_to IS NULL OR valid_to >= ?)", at, at).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.toDomainList(models)
}

func (r *GormGiftRepository) toDomainList(models []GiftModel) ([]domain.Gift, error) {
	gifts := make([]domain.Gift, 0, len(models))
	for i := range models {
		gift, err := ToDomainGift(&models[i])
		if err != nil {
			return nil, err
		}
		gifts = append(gifts, *gift)
	}
	return gifts, nil
}

func (r *GormGiftRepository) FindByID(ctx context.Context, id string) (*domain.Gift, error) {
	var model GiftModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGiftNotFound
		}
		return nil, err
	}
	return ToDomainGift(&model)
}

func (r *GormGiftRepository) FindByCode(ctx context.Context, code string) (*domain.Gift, error) {
	var model GiftModel
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGiftNotFound
		}
		return nil, err
	}
	return ToDomainGift(&model)
}

func (r *GormGiftRepository) Create(ctx context.Context, gift *domain.Gift) error {
	model, err := FromDomainGift(gift)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.NewValidationError("code", "gift code %q already exists", gift.Code)
		}
		return err
	}
	return nil
}

func (r *GormGiftRepository) Update(ctx context.Context, gift *domain.Gift) error {
	model, err := FromDomainGift(gift)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&GiftModel{}).Where("id = ?", gift.ID).Updates(map[string]interface{}{
		"code":             model.Code,
		"name":             model.Name,
		"donor":            model.Donor,
		"valid_from":       model.ValidFrom,
		"valid_to":         model.ValidTo,
		"required_level":   model.RequiredLevel,
		"total_quantity":   model.TotalQuantity,
		"zone_quota":       model.ZoneQuota,
		"eligibility_rule": model.EligibilityRule,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrGiftNotFound
	}
	return nil
}

func (r *GormGiftRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&GiftModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrGiftNotFound
	}
	return nil
}

// GormPlayerRepository 是 domain.PlayerRepository 的 GORM 实现（只读）。
type GormPlayerRepository struct {
	db *gorm.DB
}

func NewGormPlayerRepository(db *gorm.DB) *GormPlayerRepository {
	return &GormPlayerRepository{db: db}
}

func (r *GormPlayerRepository) FindByID(ctx context.Context, id string) (*domain.Player, error) {
	var model PlayerModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, err
	}
	return ToDomainPlayer(&model), nil
}

// GormAllocationRepository 是 domain.AllocationRepository 的 GORM 实现。
type GormAllocationRepository struct {
	db *gorm.DB
}

func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

func (r *GormAllocationRepository) Create(ctx context.Context, allocation *domain.Allocation) error {
	model := FromDomainAllocation(allocation)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrDuplicateAllocation
		}
		return err
	}
	return nil
}

func (r *GormAllocationRepository) FindByID(ctx context.Context, id string) (*domain.Allocation, error) {
	var model AllocationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAllocationNotFound
		}
		return nil, err
	}
	return ToDomainAllocation(&model), nil
}

func (r *GormAllocationRepository) FindLiveByGiftAndPlayer(ctx context.Context, giftID, playerID string) (*domain.Allocation, error) {
	var model AllocationModel
	err := r.db.WithContext(ctx).
		Where("gift_id = ? AND player_id = ? AND live = 1", giftID, playerID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAllocationNotFound
		}
		return nil, err
	}
	return ToDomainAllocation(&model), nil
}

// TransitionStatus 带前置条件地落库一次状态流转。
// WHERE 里的状态前置条件让并发的核销/过期竞争只有一方生效。
func (r *GormAllocationRepository) TransitionStatus(ctx context.Context, allocation *domain.Allocation, from []domain.AllocationStatus) (bool, error) {
	fromStatuses := make([]string, 0, len(from))
	for _, s := range from {
		fromStatuses = append(fromStatuses, string(s))
	}

	model := FromDomainAllocation(allocation)
	result := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Where("id = ? AND status IN ?", allocation.ID, fromStatuses).
		Updates(map[string]interface{}{
			"status":      model.Status,
			"live":        model.Live,
			"redeemed_at": model.RedeemedAt,
			"expired_at":  model.ExpiredAt,
			"updated_at":  model.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormAllocationRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Allocation, error) {
	var models []AllocationModel
	err := r.db.WithContext(ctx).
		Joins("JOIN gifts ON gifts.id = allocations.gift_id").
		Where("allocations.status IN ?", []string{string(domain.StatusPending), string(domain.StatusWon)}).
		Where("gifts.valid_to IS NOT NULL AND gifts.valid_to < ?", now).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	allocations := make([]domain.Allocation, 0, len(models))
	for i := range models {
		allocations = append(allocations, *ToDomainAllocation(&models[i]))
	}
	return allocations, nil
}

func (r *GormAllocationRepository) CountLiveByGiftAndBucket(ctx context.Context, giftID string) (map[string]int, error) {
	type row struct {
		Bucket string
		N      int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&AllocationModel{}).
		Select("bucket, COUNT(*) AS n").
		Where("gift_id = ? AND status IN ?", giftID,
			[]string{string(domain.StatusPending), string(domain.StatusWon), string(domain.StatusRedeemed)}).
		Group("bucket").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Bucket] = r.N
	}
	return counts, nil
}
