// internal/service/gift/domain/gift_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGift() *Gift {
	return &Gift{
		ID:            "gift-1",
		Code:          "VELO-2026",
		Name:          "Velo electrique",
		TotalQuantity: 10,
	}
}

func TestGiftValidate(t *testing.T) {
	require.NoError(t, validGift().Validate())

	t.Run("empty code", func(t *testing.T) {
		g := validGift()
		g.Code = ""
		var verr *ValidationError
		require.ErrorAs(t, g.Validate(), &verr)
		assert.Equal(t, "code", verr.Field)
	})

	t.Run("non positive quantity", func(t *testing.T) {
		g := validGift()
		g.TotalQuantity = 0
		assert.Error(t, g.Validate())
	})

	t.Run("unknown level", func(t *testing.T) {
		g := validGift()
		g.RequiredLevel = Level("MAITRE")
		assert.Error(t, g.Validate())
	})

	t.Run("window order", func(t *testing.T) {
		g := validGift()
		from := time.Now()
		to := from.Add(-time.Hour)
		g.ValidFrom = &from
		g.ValidTo = &to
		assert.Error(t, g.Validate())
	})

	t.Run("quota sum exceeds total", func(t *testing.T) {
		g := validGift()
		g.ZoneQuota = ZoneQuota{"zone-a": 6, "zone-b": 5}
		assert.Error(t, g.Validate())
	})

	t.Run("quota sum below total leaves residual", func(t *testing.T) {
		g := validGift()
		g.ZoneQuota = ZoneQuota{"zone-a": 4, "zone-b": 3}
		require.NoError(t, g.Validate())
		assert.Equal(t, 3, g.ResidualQuantity())
	})

	t.Run("zero zone quantity", func(t *testing.T) {
		g := validGift()
		g.ZoneQuota = ZoneQuota{"zone-a": 0}
		assert.Error(t, g.Validate())
	})
}

func TestGiftIsActiveAt(t *testing.T) {
	now := time.Now()
	from := now.Add(-time.Hour)
	to := now.Add(time.Hour)

	g := validGift()
	assert.True(t, g.IsActiveAt(now), "unbounded gift is always active")

	g.ValidFrom = &from
	g.ValidTo = &to
	assert.True(t, g.IsActiveAt(now))
	assert.False(t, g.IsActiveAt(from.Add(-time.Minute)))
	assert.False(t, g.IsActiveAt(to.Add(time.Minute)))
}

func TestGiftBucketCapacity(t *testing.T) {
	g := validGift()
	g.ZoneQuota = ZoneQuota{"zone-a": 4, "zone-b": 3}

	assert.Equal(t, 4, g.BucketCapacity("zone-a"))
	assert.Equal(t, 3, g.BucketCapacity("zone-b"))
	assert.Equal(t, 3, g.BucketCapacity(BucketGlobal), "residual goes to the global bucket")
	assert.Equal(t, 0, g.BucketCapacity("zone-unknown"))

	noQuota := validGift()
	assert.Equal(t, 10, noQuota.BucketCapacity(BucketGlobal))
}

func TestGiftBuckets(t *testing.T) {
	g := validGift()
	g.ZoneQuota = ZoneQuota{"zone-a": 4}
	assert.ElementsMatch(t, []string{"zone-a", BucketGlobal}, g.Buckets())
}

func TestLevelOrdering(t *testing.T) {
	assert.True(t, LevelExpert.AtLeast(LevelConnaisseur))
	assert.True(t, LevelConnaisseur.AtLeast(LevelConnaisseur))
	assert.False(t, LevelDecouverte.AtLeast(LevelConnaisseur))
	assert.False(t, Level("MAITRE").Valid())
}
