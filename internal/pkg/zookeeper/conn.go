// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// Conn 是对 zk.Conn 的一层薄封装，统一连接参数。
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接。
// addrs 格式为 "ip1:port1,ip2:port2"。
func Connect(addrs string, sessionTimeout time.Duration) (*Conn, error) {
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}
	conn, _, err := zk.Connect(strings.Split(addrs, ","), sessionTimeout,
		zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to zookeeper")
	}
	return &Conn{Conn: conn}, nil
}

// EnsurePath 逐级创建一个持久化路径，节点已存在不算错误。
func (c *Conn) EnsurePath(path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for _, p := range parts {
		current += "/" + p
		_, err := c.Create(current, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return errors.Wrapf(err, "failed to create path node %s", current)
		}
	}
	return nil
}
