// internal/service/gift/infrastructure/zone_tree_cache.go
package infrastructure

import (
	"context"
	"sync"

	"ecoquiz/internal/service/gift/domain"
)

// ZoneTreeCache 是 port.ZoneTreeProvider 的实现：
// 从仓储懒加载区域层级，构建一次快照后复用，写操作后失效。
// 快照本身不可变，读路径无锁竞争。
type ZoneTreeCache struct {
	repo domain.ZoneRepository

	mu   sync.RWMutex
	tree *domain.ZoneTree
}

func NewZoneTreeCache(repo domain.ZoneRepository) *ZoneTreeCache {
	return &ZoneTreeCache{repo: repo}
}

func (c *ZoneTreeCache) Tree(ctx context.Context) (*domain.ZoneTree, error) {
	c.mu.RLock()
	tree := c.tree
	c.mu.RUnlock()
	if tree != nil {
		return tree, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree != nil {
		return c.tree, nil
	}

	zones, err := c.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	c.tree = domain.NewZoneTree(zones)
	return c.tree, nil
}

// Invalidate 丢弃当前快照，下一次读取时重建。
func (c *ZoneTreeCache) Invalidate() {
	c.mu.Lock()
	c.tree = nil
	c.mu.Unlock()
}
