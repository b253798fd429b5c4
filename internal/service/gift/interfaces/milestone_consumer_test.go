// internal/service/gift/interfaces/milestone_consumer_test.go
package interfaces

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// Stop 不依赖上下文取消: 关闭 reader 本身必须让消费循环退出。
func TestMilestoneConsumerStopUnblocksFetch(t *testing.T) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{"127.0.0.1:1"},
		GroupID: "gift-service-milestones-test",
		Topic:   "player-milestone-events",
	})
	consumer := NewMilestoneConsumerAdapter(reader, nil)
	consumer.Start(context.Background())

	done := make(chan struct{})
	go func() {
		consumer.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop after the reader was closed")
	}
}
