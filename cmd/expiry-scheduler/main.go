// cmd/expiry-scheduler/main.go
package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"ecoquiz/internal/pkg/bootstrap"
	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/pkg/mq"
	"ecoquiz/internal/pkg/zookeeper"
	"ecoquiz/internal/service/gift/application"
	"ecoquiz/internal/service/gift/infrastructure"
	"ecoquiz/internal/service/gift/infrastructure/adapter"
)

const (
	serviceName     = "expiry-scheduler"
	servicePort     = 8085
	allocationTopic = "gift-allocation-events"
	sweepResource   = "expiry-sweep"
	sweepInterval   = 1 * time.Minute
)

var sweepReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gift_expiry_sweep_released_total",
	Help: "Total number of allocations released by the expiry sweep.",
})

func main() {
	if err := bootstrap.Init(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := bootstrap.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)

	db, err := infrastructure.NewDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize database")
	}

	giftRepo := infrastructure.NewGormGiftRepository(db)
	allocRepo := infrastructure.NewGormAllocationRepository(db)
	ledger := infrastructure.NewGormQuotaLedger(db)

	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")
	notifier := adapter.NewNotificationKafkaAdapter(mq.NewKafkaWriter(brokers, allocationTopic))

	// 清扫不走 Redis 闸门: 它只处理已过有效期的奖品, 闸门计数无关紧要
	lifecycleSvc := application.NewLifecycleService(giftRepo, allocRepo, ledger, nil, notifier, tracer)

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Addrs, 10*time.Second)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
	}

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	go runSweepLoop(sweepCtx, zkConn, lifecycleSvc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancelSweep()
				zkConn.Close()
				if err := notifier.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("error closing kafka writer")
				}
			},
		},
	})
}

// runSweepLoop 周期性地扫描过期记录。
// 多实例部署时用 ZooKeeper 锁保证每轮只有一个实例真正执行,
// 抢不到锁的实例静默跳过本轮。
func runSweepLoop(ctx context.Context, zkConn *zookeeper.Conn, svc *application.LifecycleService) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runSweep(ctx, zkConn, svc)
		}
	}
}

func runSweep(ctx context.Context, zkConn *zookeeper.Conn, svc *application.LifecycleService) {
	lock, err := zookeeper.NewDistributedLock(zkConn, sweepResource)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to create sweep lock")
		return
	}
	if err := lock.TryLock(); err != nil {
		if err == zookeeper.ErrLockHeld {
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("failed to acquire sweep lock")
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	released, err := svc.ExpireOverdue(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if released > 0 {
		sweepReleasedTotal.Add(float64(released))
	}
}
