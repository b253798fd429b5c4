// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient，并维护一个命名 Lua 脚本注册表。
// 脚本在加载时预先计算 SHA，执行时走 EVALSHA，未命中时自动回退 EVAL。
type Client struct {
	rdb goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 根据逗号分隔的地址列表创建客户端。
// 多个地址时按集群模式连接。
func NewClient(addrs string) (*Client, error) {
	addrList := strings.Split(addrs, ",")
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: addrList,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*goredis.Script),
	}, nil
}

// LoadScriptFromContent 注册一段 Lua 脚本内容，之后可以通过名字执行。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return errors.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行一个已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级操作的调用方使用。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.rdb
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
