// internal/service/gift/domain/port/zonetree.go
package port

import (
	"context"

	"ecoquiz/internal/service/gift/domain"
)

// ZoneTreeProvider 提供区域层级的缓存快照。
// 实现负责从仓储懒加载；任何区域写操作后必须调用 Invalidate。
type ZoneTreeProvider interface {
	Tree(ctx context.Context) (*domain.ZoneTree, error)
	Invalidate()
}
