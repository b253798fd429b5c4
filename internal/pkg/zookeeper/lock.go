// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/ecoquiz/locks" // 所有分布式锁的根节点

// ErrLockHeld 表示锁已被其他实例持有（仅 TryLock 返回）。
var ErrLockHeld = errors.New("lock is held by another instance")

// DistributedLock 基于临时顺序节点实现的分布式锁。
// 过期清扫任务用它保证同一时刻只有一个实例在执行。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁路径, 例如 /ecoquiz/locks/expiry-sweep
	lockNode string // 成功获取锁后自己创建的节点
}

// NewDistributedLock 创建一个针对指定资源的锁实例。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	if err := conn.EnsurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 尝试获取锁，不阻塞等待。
// 获取不到时删除自己的候选节点并返回 ErrLockHeld。
func (l *DistributedLock) TryLock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "failed to create sequential node")
	}
	l.lockNode = nodePath

	lowest, err := l.isLowestNode()
	if err != nil {
		_ = l.Unlock()
		return err
	}
	if !lowest {
		_ = l.Unlock()
		return ErrLockHeld
	}
	return nil
}

// Lock 获取锁，获取不到时阻塞等待前一个节点释放，直到超时。
func (l *DistributedLock) Lock(timeout time.Duration) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "failed to create sequential node")
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(timeout)
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "failed to get children nodes")
		}
		sort.Strings(children)

		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 监听排在自己前面的节点，避免惊群
		prevIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			return errors.New("own lock node not found among children")
		}
		prevNodePath := l.path + "/" + children[prevIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			if err == zk.ErrNoNode {
				continue
			}
			return errors.Wrap(err, "failed to watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(time.Until(deadline)):
			_ = l.Unlock()
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁。节点已不存在时不视为错误。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return nil
	}
	err := l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "failed to delete lock node")
	}
	return nil
}

func (l *DistributedLock) isLowestNode() (bool, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return false, errors.Wrap(err, "failed to get children nodes")
	}
	sort.Strings(children)
	return strings.TrimPrefix(l.lockNode, l.path+"/") == children[0], nil
}
