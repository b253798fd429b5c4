// cmd/gift-service/main.go
package main

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"

	"ecoquiz/internal/pkg/bootstrap"
	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/pkg/mq"
	"ecoquiz/internal/pkg/redis"
	"ecoquiz/internal/service/gift/application"
	"ecoquiz/internal/service/gift/domain/port"
	"ecoquiz/internal/service/gift/infrastructure"
	"ecoquiz/internal/service/gift/infrastructure/adapter"
	"ecoquiz/internal/service/gift/infrastructure/rule"
	"ecoquiz/internal/service/gift/interfaces"
)

const (
	serviceName      = "gift-service"
	servicePort      = 8084
	allocationTopic  = "gift-allocation-events"
	milestoneTopic   = "player-milestone-events"
	milestoneGroupID = "gift-service-milestones"
)

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

	zoneRepo := infrastructure.NewGormZoneRepository(db)
	giftRepo := infrastructure.NewGormGiftRepository(db)
	playerRepo := infrastructure.NewGormPlayerRepository(db)
	allocRepo := infrastructure.NewGormAllocationRepository(db)
	statsRepo := infrastructure.NewGormStatsRepository(db)
	zoneTree := infrastructure.NewZoneTreeCache(zoneRepo)
	ledger := infrastructure.NewGormQuotaLedger(db)

	ruleEngine, err := rule.NewCELRuleEngine()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize rule engine")
	}

	// Redis 快速路径是可选的, 关掉时 claim 直接走数据库台账
	var stockGate port.StockGate
	if cfg.App.FeatureFlags.EnableRedisFastPath {
		redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		gate, err := adapter.NewStockRedisAdapter(redisClient)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize stock gate")
		}
		stockGate = gate
	}

	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")
	notifier := adapter.NewNotificationKafkaAdapter(mq.NewKafkaWriter(brokers, allocationTopic))

	allocationSvc := application.NewAllocationService(
		giftRepo, playerRepo, allocRepo, zoneTree, ledger, ruleEngine, stockGate, notifier, tracer)
	lifecycleSvc := application.NewLifecycleService(
		giftRepo, allocRepo, ledger, stockGate, notifier, tracer)
	catalogSvc := application.NewCatalogService(giftRepo, zoneTree, ledger, stockGate, tracer)
	zoneSvc := application.NewZoneService(zoneRepo, zoneTree, tracer)
	statsSvc := application.NewStatsService(statsRepo, zoneTree, tracer)

	handler := interfaces.NewGiftHandler(allocationSvc, lifecycleSvc, catalogSvc, zoneSvc, statsSvc)
	interfaces.NewQuotaReservedCollector(giftRepo, ledger)

	if err := catalogSvc.WarmupStock(context.Background()); err != nil {
		logger.Logger.Error().Err(err).Msg("stock warmup failed, counters will rebuild lazily")
	}

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	var consumer *interfaces.MilestoneConsumerAdapter
	if cfg.App.FeatureFlags.EnableAutoClaim {
		consumer = interfaces.NewMilestoneConsumerAdapter(
			mq.NewKafkaReader(brokers, milestoneTopic, milestoneGroupID), allocationSvc)
		consumer.Start(consumerCtx)
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancelConsumer()
				if consumer != nil {
					consumer.Stop(ctx)
				}
				if err := notifier.Close(); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("error closing kafka writer")
				}
			},
		},
	})
}
