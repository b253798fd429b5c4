// internal/service/gift/application/service_test.go
package application

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
	"ecoquiz/internal/service/gift/infrastructure"
)

type claimFixture struct {
	svc      *AllocationService
	giftRepo *fakeGiftRepo
	allocs   *fakeAllocRepo
	ledger   *fakeLedger
	notifier *fakeNotifier
	rule     *fakeRuleEngine
}

func newClaimFixture(gifts []*domain.Gift, players []*domain.Player) *claimFixture {
	tree := domain.NewZoneTree([]domain.Zone{
		{ID: "region-idf", Type: domain.ZoneTypeRegion},
		{ID: "dept-75", Type: domain.ZoneTypeDept, ParentID: "region-idf"},
		{ID: "region-bzh", Type: domain.ZoneTypeRegion},
	})

	f := &claimFixture{
		giftRepo: newFakeGiftRepo(gifts...),
		allocs:   newFakeAllocRepo(),
		ledger:   newFakeLedger(infrastructure.NewMemoryQuotaLedger()),
		notifier: &fakeNotifier{},
		rule:     &fakeRuleEngine{pass: true},
	}
	f.svc = NewAllocationService(
		f.giftRepo,
		newFakePlayerRepo(players...),
		f.allocs,
		&staticTreeProvider{tree: tree},
		f.ledger,
		f.rule,
		nil,
		f.notifier,
		otel.Tracer("test"),
	)
	return f
}

func testGift() *domain.Gift {
	return &domain.Gift{
		ID:            "gift-1",
		Code:          "VELO-2026",
		Name:          "Velo electrique",
		TotalQuantity: 5,
	}
}

func testPlayer() *domain.Player {
	return &domain.Player{
		ID:     "player-1",
		Level:  domain.LevelConnaisseur,
		ZoneID: "dept-75",
	}
}

func TestClaimSuccess(t *testing.T) {
	f := newClaimFixture([]*domain.Gift{testGift()}, []*domain.Player{testPlayer()})

	result, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, domain.StatusWon, result.Allocation.Status)
	assert.Equal(t, domain.BucketGlobal, result.Allocation.Bucket)
	assert.Equal(t, domain.StatusWon, f.allocs.statusOf(result.Allocation.ID))
	assert.Equal(t, []string{domain.EventAllocationWon}, f.notifier.published())
}

func TestClaimPicksZoneBucket(t *testing.T) {
	gift := testGift()
	gift.ZoneQuota = domain.ZoneQuota{"region-idf": 2}
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{testPlayer()})

	result, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.Equal(t, "region-idf", result.Allocation.Bucket, "player zone resolves up the tree into the quota bucket")
}

func TestClaimIdempotent(t *testing.T) {
	f := newClaimFixture([]*domain.Gift{testGift()}, []*domain.Player{testPlayer()})

	first, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Allocation.ID, second.Allocation.ID)
	assert.Equal(t, 1, f.ledger.reserves, "a repeated claim never touches the ledger twice")
}

func TestClaimRefusalsDoNotTouchLedger(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(g *domain.Gift, p *domain.Player)
		reason domain.RefusalReason
	}{
		{
			name:   "inactive gift",
			mutate: func(g *domain.Gift, p *domain.Player) { g.ValidTo = &past },
			reason: domain.ReasonGiftInactive,
		},
		{
			name:   "level too low",
			mutate: func(g *domain.Gift, p *domain.Player) { g.RequiredLevel = domain.LevelExpert },
			reason: domain.ReasonLevelTooLow,
		},
		{
			name: "no zone quota",
			mutate: func(g *domain.Gift, p *domain.Player) {
				g.TotalQuantity = 2
				g.ZoneQuota = domain.ZoneQuota{"region-bzh": 2}
			},
			reason: domain.ReasonNoZoneQuota,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gift := testGift()
			player := testPlayer()
			tc.mutate(gift, player)
			f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{player})

			_, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
			var refused *domain.ClaimRefusedError
			require.ErrorAs(t, err, &refused)
			assert.Equal(t, tc.reason, refused.Reason)
			assert.Equal(t, 0, f.ledger.reserves)
			assert.Empty(t, f.notifier.published())
		})
	}
}

func TestClaimSoldOut(t *testing.T) {
	gift := testGift()
	gift.TotalQuantity = 1
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{
		testPlayer(),
		{ID: "player-2", Level: domain.LevelConnaisseur},
	})

	_, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), "gift-1", "player-2")
	var refused *domain.ClaimRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, domain.ReasonSoldOut, refused.Reason)
}

func TestClaimZoneBucketExhaustionIsFinal(t *testing.T) {
	// 区域桶耗尽就是售罄, 即便邻区还有份额也不跨桶借用
	gift := testGift()
	gift.TotalQuantity = 2
	gift.ZoneQuota = domain.ZoneQuota{"region-idf": 1, "region-bzh": 1}
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{
		testPlayer(),
		{ID: "player-2", Level: domain.LevelConnaisseur, ZoneID: "dept-75"},
		{ID: "player-3", Level: domain.LevelConnaisseur, ZoneID: "region-bzh"},
	})

	first, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.Equal(t, "region-idf", first.Allocation.Bucket)

	_, err = f.svc.Claim(context.Background(), "gift-1", "player-2")
	var refused *domain.ClaimRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, domain.ReasonSoldOut, refused.Reason)

	third, err := f.svc.Claim(context.Background(), "gift-1", "player-3")
	require.NoError(t, err)
	assert.Equal(t, "region-bzh", third.Allocation.Bucket)
}

func TestClaimRuleRejected(t *testing.T) {
	gift := testGift()
	gift.EligibilityRule = `player.points >= 500`
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{testPlayer()})
	f.rule.pass = false

	_, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	var refused *domain.ClaimRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, domain.ReasonRuleRejected, refused.Reason)
	assert.Equal(t, 0, f.ledger.reserves)
}

func TestClaimRuleEngineFailureLetsPlayerPass(t *testing.T) {
	gift := testGift()
	gift.EligibilityRule = `player.points >=` // 坏表达式
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{testPlayer()})
	f.rule.err = errors.New("compile error")

	result, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.True(t, result.Created)
}

func TestClaimReleasesQuotaWhenPersistenceFails(t *testing.T) {
	f := newClaimFixture([]*domain.Gift{testGift()}, []*domain.Player{testPlayer()})
	f.allocs.createErr = errors.New("connection reset")

	_, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.Error(t, err)
	require.Len(t, f.ledger.releases, 1, "reserved quota is compensated on persistence failure")

	counts, err := f.ledger.Reserved(context.Background(), "gift-1")
	require.NoError(t, err)
	assert.Equal(t, 0, counts[domain.BucketGlobal])
}

func TestClaimDuplicateRaceReturnsWinner(t *testing.T) {
	f := newClaimFixture([]*domain.Gift{testGift()}, []*domain.Player{testPlayer()})

	// 模拟对手请求在幂等检查之后、Create 之前插入了记录:
	// 第一次存活查询扑空, Create 撞唯一索引, 第二次查询看到对手
	winner := domain.NewAllocation("gift-1", "player-1", domain.BucketGlobal, "res-x")
	f.allocs.seed(winner)
	f.allocs.createErr = domain.ErrDuplicateAllocation
	f.allocs.missLiveLookups = 1

	result, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, winner.ID, result.Allocation.ID)
	require.Len(t, f.ledger.releases, 1, "the losing reservation is returned to the pool")
}

func TestClaimUnknownPlayerOrGift(t *testing.T) {
	f := newClaimFixture([]*domain.Gift{testGift()}, []*domain.Player{testPlayer()})

	_, err := f.svc.Claim(context.Background(), "gift-1", "ghost")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, err = f.svc.Claim(context.Background(), "ghost", "player-1")
	assert.ErrorIs(t, err, domain.ErrGiftNotFound)
}

func TestClaimPlayerWithUnknownZoneFallsBack(t *testing.T) {
	gift := testGift()
	gift.ZoneQuota = domain.ZoneQuota{"region-idf": 2} // residual 3 → GLOBAL
	player := testPlayer()
	player.ZoneID = "zone-deleted"
	f := newClaimFixture([]*domain.Gift{gift}, []*domain.Player{player})

	result, err := f.svc.Claim(context.Background(), "gift-1", "player-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BucketGlobal, result.Allocation.Bucket)
}

func TestHandleMilestoneReachedAutoClaims(t *testing.T) {
	matching := testGift()
	matching.RequiredLevel = domain.LevelConnaisseur

	other := testGift()
	other.ID = "gift-2"
	other.Code = "COMPOST-2026"
	other.RequiredLevel = domain.LevelExpert

	unlevelled := testGift()
	unlevelled.ID = "gift-3"
	unlevelled.Code = "GOURDE-2026"

	f := newClaimFixture([]*domain.Gift{matching, other, unlevelled}, []*domain.Player{testPlayer()})

	event := &domain.PlayerMilestoneReached{
		EventID:   "evt-1",
		PlayerID:  "player-1",
		Level:     domain.LevelConnaisseur,
		Points:    500,
		ReachedAt: time.Now(),
	}
	require.NoError(t, f.svc.HandleMilestoneReached(context.Background(), event))

	// 只有等级门槛恰好等于新等级的奖品被自动发放
	_, err := f.allocs.FindLiveByGiftAndPlayer(context.Background(), "gift-1", "player-1")
	assert.NoError(t, err)
	_, err = f.allocs.FindLiveByGiftAndPlayer(context.Background(), "gift-2", "player-1")
	assert.ErrorIs(t, err, domain.ErrAllocationNotFound)
	_, err = f.allocs.FindLiveByGiftAndPlayer(context.Background(), "gift-3", "player-1")
	assert.ErrorIs(t, err, domain.ErrAllocationNotFound)
}

var _ port.QuotaLedger = (*fakeLedger)(nil)
