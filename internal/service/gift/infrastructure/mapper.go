// internal/service/gift/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"ecoquiz/internal/service/gift/domain"
)

// ToDomainZone 将数据库模型转换为领域模型。
func ToDomainZone(model *ZoneModel) *domain.Zone {
	if model == nil {
		return nil
	}
	zone := &domain.Zone{
		ID:        model.ID,
		Type:      domain.ZoneType(model.Type),
		Name:      model.Name,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if model.ParentID.Valid {
		zone.ParentID = model.ParentID.String
	}
	if model.Metadata != "" {
		// 元数据损坏时保留空 map，不让读路径失败
		_ = json.Unmarshal([]byte(model.Metadata), &zone.Metadata)
	}
	return zone
}

// FromDomainZone 将领域模型转换为数据库模型。
func FromDomainZone(zone *domain.Zone) (*ZoneModel, error) {
	model := &ZoneModel{
		ID:        zone.ID,
		Type:      string(zone.Type),
		Name:      zone.Name,
		CreatedAt: zone.CreatedAt,
		UpdatedAt: zone.UpdatedAt,
	}
	if zone.ParentID != "" {
		model.ParentID = sql.NullString{String: zone.ParentID, Valid: true}
	}
	if len(zone.Metadata) > 0 {
		data, err := json.Marshal(zone.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal zone metadata")
		}
		model.Metadata = string(data)
	}
	return model, nil
}

// ToDomainGift 将数据库模型转换为领域模型。
// JSON 的配额字段在这里、也只在这里被反序列化为显式值类型。
func ToDomainGift(model *GiftModel) (*domain.Gift, error) {
	if model == nil {
		return nil, nil
	}
	gift := &domain.Gift{
		ID:              model.ID,
		Code:            model.Code,
		Name:            model.Name,
		Donor:           model.Donor,
		ValidFrom:       model.ValidFrom,
		ValidTo:         model.ValidTo,
		RequiredLevel:   domain.Level(model.RequiredLevel),
		TotalQuantity:   model.TotalQuantity,
		EligibilityRule: model.EligibilityRule,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
	if model.ZoneQuota != "" {
		if err := json.Unmarshal([]byte(model.ZoneQuota), &gift.ZoneQuota); err != nil {
			return nil, errors.Wrapf(err, "corrupt zone_quota for gift %s", model.ID)
		}
	}
	return gift, nil
}

// FromDomainGift 将领域模型转换为数据库模型。
func FromDomainGift(gift *domain.Gift) (*GiftModel, error) {
	model := &GiftModel{
		ID:              gift.ID,
		Code:            gift.Code,
		Name:            gift.Name,
		Donor:           gift.Donor,
		ValidFrom:       gift.ValidFrom,
		ValidTo:         gift.ValidTo,
		RequiredLevel:   string(gift.RequiredLevel),
		TotalQuantity:   gift.TotalQuantity,
		EligibilityRule: gift.EligibilityRule,
		CreatedAt:       gift.CreatedAt,
		UpdatedAt:       gift.UpdatedAt,
	}
	if len(gift.ZoneQuota) > 0 {
		data, err := json.Marshal(gift.ZoneQuota)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal zone quota")
		}
		model.ZoneQuota = string(data)
	}
	return model, nil
}

// ToDomainPlayer 将数据库模型转换为领域模型。
func ToDomainPlayer(model *PlayerModel) *domain.Player {
	if model == nil {
		return nil
	}
	player := &domain.Player{
		ID:           model.ID,
		Nickname:     model.Nickname,
		Points:       model.Points,
		Level:        domain.Level(model.Level),
		LastPlayedAt: model.LastPlayedAt,
		CreatedAt:    model.CreatedAt,
	}
	if model.ZoneID.Valid {
		player.ZoneID = model.ZoneID.String
	}
	return player
}

// ToDomainAllocation 将数据库模型转换为领域模型。
func ToDomainAllocation(model *AllocationModel) *domain.Allocation {
	if model == nil {
		return nil
	}
	return &domain.Allocation{
		ID:            model.ID,
		GiftID:        model.GiftID,
		PlayerID:      model.PlayerID,
		Bucket:        model.Bucket,
		ReservationID: model.ReservationID,
		Status:        domain.AllocationStatus(model.Status),
		AllocatedAt:   model.AllocatedAt,
		RedeemedAt:    model.RedeemedAt,
		ExpiredAt:     model.ExpiredAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// FromDomainAllocation 将领域模型转换为数据库模型。
func FromDomainAllocation(allocation *domain.Allocation) *AllocationModel {
	model := &AllocationModel{
		ID:            allocation.ID,
		GiftID:        allocation.GiftID,
		PlayerID:      allocation.PlayerID,
		Bucket:        allocation.Bucket,
		ReservationID: allocation.ReservationID,
		Status:        string(allocation.Status),
		AllocatedAt:   allocation.AllocatedAt,
		RedeemedAt:    allocation.RedeemedAt,
		ExpiredAt:     allocation.ExpiredAt,
		UpdatedAt:     allocation.UpdatedAt,
	}
	if allocation.IsLive() {
		live := int8(1)
		model.Live = &live
	}
	return model
}
