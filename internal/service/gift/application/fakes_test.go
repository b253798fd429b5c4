// internal/service/gift/application/fakes_test.go
package application

import (
	"context"
	"sync"
	"time"

	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

type fakeGiftRepo struct {
	gifts map[string]*domain.Gift
}

func newFakeGiftRepo(gifts ...*domain.Gift) *fakeGiftRepo {
	r := &fakeGiftRepo{gifts: make(map[string]*domain.Gift)}
	for _, g := range gifts {
		r.gifts[g.ID] = g
	}
	return r
}

func (r *fakeGiftRepo) FindAll(ctx context.Context) ([]domain.Gift, error) {
	out := make([]domain.Gift, 0, len(r.gifts))
	for _, g := range r.gifts {
		out = append(out, *g)
	}
	return out, nil
}

func (r *fakeGiftRepo) FindActive(ctx context.Context, at time.Time) ([]domain.Gift, error) {
	out := make([]domain.Gift, 0, len(r.gifts))
	for _, g := range r.gifts {
		if g.IsActiveAt(at) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *fakeGiftRepo) FindByID(ctx context.Context, id string) (*domain.Gift, error) {
	g, ok := r.gifts[id]
	if !ok {
		return nil, domain.ErrGiftNotFound
	}
	copied := *g
	return &copied, nil
}

func (r *fakeGiftRepo) FindByCode(ctx context.Context, code string) (*domain.Gift, error) {
	for _, g := range r.gifts {
		if g.Code == code {
			copied := *g
			return &copied, nil
		}
	}
	return nil, domain.ErrGiftNotFound
}

func (r *fakeGiftRepo) Create(ctx context.Context, gift *domain.Gift) error {
	r.gifts[gift.ID] = gift
	return nil
}

func (r *fakeGiftRepo) Update(ctx context.Context, gift *domain.Gift) error {
	if _, ok := r.gifts[gift.ID]; !ok {
		return domain.ErrGiftNotFound
	}
	r.gifts[gift.ID] = gift
	return nil
}

func (r *fakeGiftRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.gifts[id]; !ok {
		return domain.ErrGiftNotFound
	}
	delete(r.gifts, id)
	return nil
}

type fakePlayerRepo struct {
	players map[string]*domain.Player
}

func newFakePlayerRepo(players ...*domain.Player) *fakePlayerRepo {
	r := &fakePlayerRepo{players: make(map[string]*domain.Player)}
	for _, p := range players {
		r.players[p.ID] = p
	}
	return r
}

func (r *fakePlayerRepo) FindByID(ctx context.Context, id string) (*domain.Player, error) {
	p, ok := r.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	copied := *p
	return &copied, nil
}

// fakeAllocRepo 在内存里模仿唯一索引和带前置条件的状态更新。
type fakeAllocRepo struct {
	mu          sync.Mutex
	allocations map[string]*domain.Allocation
	createErr   error // 注入 Create 的失败
	// missLiveLookups 让前 N 次存活记录查询返回未找到,
	// 用于模拟 "检查通过后对手才插入" 的并发窗口。
	missLiveLookups int
	// overdueIDs 标记哪些记录算作奖品有效期已过。
	overdueIDs []string
	// afterFindOverdue 在清扫快照返回前执行一次,
	// 用于模拟 "快照之后、过期之前" 的并发窗口。
	afterFindOverdue func()
}

func newFakeAllocRepo() *fakeAllocRepo {
	return &fakeAllocRepo{allocations: make(map[string]*domain.Allocation)}
}

func (r *fakeAllocRepo) Create(ctx context.Context, allocation *domain.Allocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, a := range r.allocations {
		if a.GiftID == allocation.GiftID && a.PlayerID == allocation.PlayerID && a.IsLive() {
			return domain.ErrDuplicateAllocation
		}
	}
	copied := *allocation
	r.allocations[allocation.ID] = &copied
	return nil
}

func (r *fakeAllocRepo) FindByID(ctx context.Context, id string) (*domain.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocations[id]
	if !ok {
		return nil, domain.ErrAllocationNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAllocRepo) FindLiveByGiftAndPlayer(ctx context.Context, giftID, playerID string) (*domain.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missLiveLookups > 0 {
		r.missLiveLookups--
		return nil, domain.ErrAllocationNotFound
	}
	for _, a := range r.allocations {
		if a.GiftID == giftID && a.PlayerID == playerID && a.IsLive() {
			copied := *a
			return &copied, nil
		}
	}
	return nil, domain.ErrAllocationNotFound
}

func (r *fakeAllocRepo) TransitionStatus(ctx context.Context, allocation *domain.Allocation, from []domain.AllocationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.allocations[allocation.ID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if stored.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	copied := *allocation
	r.allocations[allocation.ID] = &copied
	return true, nil
}

func (r *fakeAllocRepo) FindOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Allocation, error) {
	r.mu.Lock()
	out := make([]domain.Allocation, 0, len(r.overdueIDs))
	for _, id := range r.overdueIDs {
		if a, ok := r.allocations[id]; ok && a.IsLive() && a.Status != domain.StatusRedeemed {
			out = append(out, *a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	r.mu.Unlock()

	if r.afterFindOverdue != nil {
		hook := r.afterFindOverdue
		r.afterFindOverdue = nil
		hook()
	}
	return out, nil
}

func (r *fakeAllocRepo) CountLiveByGiftAndBucket(ctx context.Context, giftID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range r.allocations {
		if a.GiftID == giftID && a.IsLive() {
			counts[a.Bucket]++
		}
	}
	return counts, nil
}

// seed 绕过唯一性检查和注入的错误, 直接放入一条记录。
func (r *fakeAllocRepo) seed(allocation *domain.Allocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *allocation
	r.allocations[allocation.ID] = &copied
}

func (r *fakeAllocRepo) statusOf(id string) domain.AllocationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocations[id].Status
}

// staticTreeProvider 提供固定的区域树快照。
type staticTreeProvider struct {
	tree *domain.ZoneTree
}

func (p *staticTreeProvider) Tree(ctx context.Context) (*domain.ZoneTree, error) {
	return p.tree, nil
}

func (p *staticTreeProvider) Invalidate() {}

// fakeLedger 委托进程内的计数逻辑, 同时记录调用以便断言补偿行为。
type fakeLedger struct {
	inner      port.QuotaLedger
	reserveErr error

	mu       sync.Mutex
	reserves int
	releases []port.ReservationToken
}

func newFakeLedger(inner port.QuotaLedger) *fakeLedger {
	return &fakeLedger{inner: inner}
}

func (l *fakeLedger) TryReserve(ctx context.Context, gift *domain.Gift, bucket string) (port.ReservationToken, error) {
	if l.reserveErr != nil {
		return port.ReservationToken{}, l.reserveErr
	}
	token, err := l.inner.TryReserve(ctx, gift, bucket)
	if err == nil {
		l.mu.Lock()
		l.reserves++
		l.mu.Unlock()
	}
	return token, err
}

func (l *fakeLedger) Release(ctx context.Context, token port.ReservationToken) error {
	l.mu.Lock()
	l.releases = append(l.releases, token)
	l.mu.Unlock()
	return l.inner.Release(ctx, token)
}

func (l *fakeLedger) Rebuild(ctx context.Context, gift *domain.Gift) error {
	return l.inner.Rebuild(ctx, gift)
}

func (l *fakeLedger) Reserved(ctx context.Context, giftID string) (map[string]int, error) {
	return l.inner.Reserved(ctx, giftID)
}

// fakeRuleEngine 返回预设结果。
type fakeRuleEngine struct {
	pass bool
	err  error
}

func (e *fakeRuleEngine) Evaluate(rule string, fact port.Fact) (bool, error) {
	return e.pass, e.err
}

// fakeNotifier 记录发布的事件类型。
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) NotifyWon(ctx context.Context, a *domain.Allocation, g *domain.Gift) error {
	return n.record(domain.EventAllocationWon)
}

func (n *fakeNotifier) NotifyExpired(ctx context.Context, a *domain.Allocation, g *domain.Gift) error {
	return n.record(domain.EventAllocationExpired)
}

func (n *fakeNotifier) NotifyRedeemed(ctx context.Context, a *domain.Allocation, g *domain.Gift) error {
	return n.record(domain.EventAllocationRedeemed)
}

func (n *fakeNotifier) record(event string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) published() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}
