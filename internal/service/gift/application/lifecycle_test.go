// internal/service/gift/application/lifecycle_test.go
package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"ecoquiz/internal/service/gift/domain"
)

type lifecycleFixture struct {
	svc      *LifecycleService
	claims   *AllocationService
	allocs   *fakeAllocRepo
	ledger   *fakeLedger
	notifier *fakeNotifier
}

func newLifecycleFixture(t *testing.T, gift *domain.Gift) *lifecycleFixture {
	t.Helper()
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{testPlayer()})
	lf := &lifecycleFixture{
		claims:   f.svc,
		allocs:   f.allocs,
		ledger:   f.ledger,
		notifier: f.notifier,
	}
	lf.svc = NewLifecycleService(f.giftRepo, f.allocs, f.ledger, nil, f.notifier, otel.Tracer("test"))
	return lf
}

// claimOne 先走一遍正常的 claim, 返回拿到的记录。
func (f *lifecycleFixture) claimOne(t *testing.T) *domain.Allocation {
	t.Helper()
	result, err := f.claims.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	require.True(t, result.Created)
	return result.Allocation
}

func TestRedeem(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	allocation := f.claimOne(t)

	redeemed, err := f.svc.Redeem(context.Background(), allocation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRedeemed, redeemed.Status)
	assert.NotNil(t, redeemed.RedeemedAt)
	assert.Equal(t, domain.StatusRedeemed, f.allocs.statusOf(allocation.ID))
	assert.Contains(t, f.notifier.published(), domain.EventAllocationRedeemed)

	// 核销不退库存
	counts, err := f.ledger.Reserved(context.Background(), "gift-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.BucketGlobal])
}

func TestRedeemIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	allocation := f.claimOne(t)

	first, err := f.svc.Redeem(context.Background(), allocation.ID)
	require.NoError(t, err)

	second, err := f.svc.Redeem(context.Background(), allocation.ID)
	require.NoError(t, err)
	assert.Equal(t, first.RedeemedAt, second.RedeemedAt, "repeated redemption keeps the original timestamp")
}

func TestRedeemExpiredAllocation(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	allocation := f.claimOne(t)
	require.NoError(t, f.svc.Expire(context.Background(), allocation.ID))

	_, err := f.svc.Redeem(context.Background(), allocation.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRedeemUnknownAllocation(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	_, err := f.svc.Redeem(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrAllocationNotFound)
}

func TestExpireReleasesStock(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	allocation := f.claimOne(t)

	require.NoError(t, f.svc.Expire(context.Background(), allocation.ID))
	assert.Equal(t, domain.StatusExpired, f.allocs.statusOf(allocation.ID))
	assert.Contains(t, f.notifier.published(), domain.EventAllocationExpired)

	counts, err := f.ledger.Reserved(context.Background(), "gift-1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts[domain.BucketGlobal], "expiry returns the reservation to the pool")

	// 过期后同一玩家可以重新领取
	result, err := f.claims.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.NotEqual(t, allocation.ID, result.Allocation.ID)
}

func TestExpireIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	allocation := f.claimOne(t)

	require.NoError(t, f.svc.Expire(context.Background(), allocation.ID))
	require.NoError(t, f.svc.Expire(context.Background(), allocation.ID))

	assert.Len(t, f.ledger.releases, 1, "stock is only released once")
}

func TestExpireRedeemedAllocationFails(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	allocation := f.claimOne(t)
	_, err := f.svc.Redeem(context.Background(), allocation.ID)
	require.NoError(t, err)

	err = f.svc.Expire(context.Background(), allocation.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	counts, err := f.ledger.Reserved(context.Background(), "gift-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.BucketGlobal], "a redeemed gift keeps its stock")
}

func TestExpireOverdue(t *testing.T) {
	gift := testGift()
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{
		testPlayer(),
		{ID: "player-2", Level: domain.LevelConnaisseur},
		{ID: "player-3", Level: domain.LevelConnaisseur},
	})
	svc := NewLifecycleService(f.giftRepo, f.allocs, f.ledger, nil, f.notifier, otel.Tracer("test"))

	var ids []string
	for _, playerID := range []string{"player-1", "player-2", "player-3"} {
		result, err := f.svc.Claim(context.Background(), "gift-1", playerID)
		require.NoError(t, err)
		ids = append(ids, result.Allocation.ID)
	}
	// player-3 已核销, 不参与清扫
	_, err := svc.Redeem(context.Background(), ids[2])
	require.NoError(t, err)

	f.allocs.overdueIDs = ids[:2]

	released, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.Equal(t, domain.StatusExpired, f.allocs.statusOf(ids[0]))
	assert.Equal(t, domain.StatusExpired, f.allocs.statusOf(ids[1]))
	assert.Equal(t, domain.StatusRedeemed, f.allocs.statusOf(ids[2]))

	counts, err := f.ledger.Reserved(context.Background(), "gift-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.BucketGlobal], "only the redeemed allocation still holds stock")
}

func TestExpireOverdueSkipsConcurrentlyRedeemed(t *testing.T) {
	gift := testGift()
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{
		testPlayer(),
		{ID: "player-2", Level: domain.LevelConnaisseur},
	})
	svc := NewLifecycleService(f.giftRepo, f.allocs, f.ledger, nil, f.notifier, otel.Tracer("test"))

	var ids []string
	for _, playerID := range []string{"player-1", "player-2"} {
		result, err := f.svc.Claim(context.Background(), "gift-1", playerID)
		require.NoError(t, err)
		ids = append(ids, result.Allocation.ID)
	}
	f.allocs.overdueIDs = ids

	// 第二条记录在快照之后被核销, 清扫输给并发流转, 不得计入
	f.allocs.afterFindOverdue = func() {
		_, err := svc.Redeem(context.Background(), ids[1])
		require.NoError(t, err)
	}

	released, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, domain.StatusExpired, f.allocs.statusOf(ids[0]))
	assert.Equal(t, domain.StatusRedeemed, f.allocs.statusOf(ids[1]))

	counts, err := f.ledger.Reserved(context.Background(), "gift-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.BucketGlobal], "the redeemed allocation keeps its stock")
}

func TestExpireOverdueEmpty(t *testing.T) {
	f := newLifecycleFixture(t, testGift())
	released, err := f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)
}
