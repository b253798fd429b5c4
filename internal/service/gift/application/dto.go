// internal/service/gift/application/dto.go
package application

import (
	"time"

	"ecoquiz/internal/service/gift/domain"
)

// ZoneQuotaEntry 是奖品请求里 metadata.zones 数组的一项。
type ZoneQuotaEntry struct {
	ZoneID   string `json:"zone_id"`
	Quantity int    `json:"quantity"`
}

// GiftRequest 是创建/更新奖品的请求体。
type GiftRequest struct {
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	Donor           string           `json:"donor,omitempty"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	RequiredLevel   string           `json:"required_level,omitempty"`
	TotalQuantity   int              `json:"total_quantity"`
	Zones           []ZoneQuotaEntry `json:"zones,omitempty"`
	EligibilityRule string           `json:"eligibility_rule,omitempty"`
}

// GiftResponse 是奖品的对外视图，带各配额桶的已预留数。
type GiftResponse struct {
	ID              string           `json:"id"`
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	Donor           string           `json:"donor,omitempty"`
	StartDate       *time.Time       `json:"start_date,omitempty"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	RequiredLevel   string           `json:"required_level,omitempty"`
	TotalQuantity   int              `json:"total_quantity"`
	Zones           []ZoneQuotaEntry `json:"zones,omitempty"`
	EligibilityRule string           `json:"eligibility_rule,omitempty"`
	Reserved        map[string]int   `json:"reserved,omitempty"`
}

// ZoneRequest 是创建/更新区域的请求体。
type ZoneRequest struct {
	Type         string            `json:"type"`
	Name         string            `json:"name"`
	ParentZoneID string            `json:"parent_zone_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ZoneResponse 是区域的对外视图。
type ZoneResponse struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Name         string            `json:"name"`
	ParentZoneID string            `json:"parent_zone_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AllocationResponse 是发奖记录的对外视图。
type AllocationResponse struct {
	ID          string     `json:"id"`
	GiftID      string     `json:"gift_id"`
	PlayerID    string     `json:"player_id"`
	Bucket      string     `json:"bucket"`
	Status      string     `json:"status"`
	AllocatedAt time.Time  `json:"allocated_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
}

// ClaimResult 是一次 claim 的结果。
// Created 为 false 表示命中了幂等逻辑，返回的是已有记录。
type ClaimResult struct {
	Allocation *domain.Allocation
	Created    bool
}

// LevelWinRate 是单个等级的中奖率。
type LevelWinRate struct {
	Level        string  `json:"level"`
	TotalPlayers int64   `json:"total_players"`
	Winners      int64   `json:"winners"`
	WinRate      float64 `json:"win_rate"`
}

// StatsResponse 是统计报表。
type StatsResponse struct {
	TotalPlayers        int64          `json:"total_players"`
	ActivePlayers       int64          `json:"active_players"`
	ParticipationRate   float64        `json:"participation_rate"`
	WinRateByLevel      []LevelWinRate `json:"win_rate_by_level"`
	AvgTimeToWinSeconds float64        `json:"avg_time_to_win_seconds"`
}

// NewGiftResponse 从领域模型构造对外视图。
func NewGiftResponse(gift *domain.Gift, reserved map[string]int) *GiftResponse {
	resp := &GiftResponse{
		ID:              gift.ID,
		Code:            gift.Code,
		Name:            gift.Name,
		Donor:           gift.Donor,
		StartDate:       gift.ValidFrom,
		EndDate:         gift.ValidTo,
		RequiredLevel:   string(gift.RequiredLevel),
		TotalQuantity:   gift.TotalQuantity,
		EligibilityRule: gift.EligibilityRule,
		Reserved:        reserved,
	}
	for zoneID, qty := range gift.ZoneQuota {
		resp.Zones = append(resp.Zones, ZoneQuotaEntry{ZoneID: zoneID, Quantity: qty})
	}
	return resp
}

// NewZoneResponse 从领域模型构造对外视图。
func NewZoneResponse(zone *domain.Zone) *ZoneResponse {
	return &ZoneResponse{
		ID:           zone.ID,
		Type:         string(zone.Type),
		Name:         zone.Name,
		ParentZoneID: zone.ParentID,
		Metadata:     zone.Metadata,
	}
}

// NewAllocationResponse 从领域模型构造对外视图。
func NewAllocationResponse(a *domain.Allocation) *AllocationResponse {
	return &AllocationResponse{
		ID:          a.ID,
		GiftID:      a.GiftID,
		PlayerID:    a.PlayerID,
		Bucket:      a.Bucket,
		Status:      string(a.Status),
		AllocatedAt: a.AllocatedAt,
		RedeemedAt:  a.RedeemedAt,
		ExpiredAt:   a.ExpiredAt,
	}
}
