// internal/service/gift/domain/eligibility_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateInactiveGift(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	gift := validGift()
	gift.ValidTo = &past
	player := &Player{ID: "p1", Level: LevelExpert}

	d := Evaluate(player, gift, nil, now)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonGiftInactive, d.Reason)
}

func TestEvaluateLevelGate(t *testing.T) {
	now := time.Now()
	gift := validGift()
	gift.RequiredLevel = LevelConnaisseur

	d := Evaluate(&Player{ID: "p1", Level: LevelDecouverte}, gift, nil, now)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonLevelTooLow, d.Reason)

	d = Evaluate(&Player{ID: "p1", Level: LevelExpert}, gift, nil, now)
	assert.True(t, d.Eligible, "higher level passes the gate")
}

func TestEvaluateNoZoneQuotaUsesGlobal(t *testing.T) {
	now := time.Now()
	gift := validGift()

	d := Evaluate(&Player{ID: "p1", Level: LevelDecouverte}, gift, []string{"city-paris", "region-idf"}, now)
	assert.True(t, d.Eligible)
	assert.Equal(t, BucketGlobal, d.Bucket)
}

func TestEvaluateZoneBucketSelection(t *testing.T) {
	now := time.Now()
	gift := validGift()
	gift.ZoneQuota = ZoneQuota{"dept-75": 3, "region-idf": 4}
	player := &Player{ID: "p1", Level: LevelDecouverte}

	// 祖先链中第一个命中的区域胜出, 最具体的区域优先
	d := Evaluate(player, gift, []string{"cp-75011", "city-paris", "dept-75", "region-idf"}, now)
	assert.True(t, d.Eligible)
	assert.Equal(t, "dept-75", d.Bucket)

	d = Evaluate(player, gift, []string{"region-idf"}, now)
	assert.True(t, d.Eligible)
	assert.Equal(t, "region-idf", d.Bucket)
}

func TestEvaluateResidualFallsToGlobal(t *testing.T) {
	now := time.Now()
	gift := validGift() // total 10
	gift.ZoneQuota = ZoneQuota{"region-idf": 4}
	player := &Player{ID: "p1", Level: LevelDecouverte}

	// 玩家不在任何配额区域, 但余量 (10-4) 落在 GLOBAL 桶
	d := Evaluate(player, gift, []string{"region-bzh"}, now)
	assert.True(t, d.Eligible)
	assert.Equal(t, BucketGlobal, d.Bucket)

	// 无区域玩家同样落在 GLOBAL 桶
	d = Evaluate(player, gift, nil, now)
	assert.True(t, d.Eligible)
	assert.Equal(t, BucketGlobal, d.Bucket)
}

func TestEvaluateNoResidualRefuses(t *testing.T) {
	now := time.Now()
	gift := validGift()
	gift.TotalQuantity = 7
	gift.ZoneQuota = ZoneQuota{"region-idf": 4, "region-bzh": 3} // sum == total

	d := Evaluate(&Player{ID: "p1", Level: LevelDecouverte}, gift, []string{"region-occ"}, now)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonNoZoneQuota, d.Reason)
}
