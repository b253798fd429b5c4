// internal/service/gift/interfaces/metrics.go
package interfaces

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/service/gift/domain"
	"ecoquiz/internal/service/gift/domain/port"
)

var (
	// claimsTotal 按结果统计 claim 请求。
	// outcome: won / idempotent / refused / error
	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gift_claims_total",
		Help: "Total number of gift claim requests by outcome.",
	}, []string{"outcome"})

	// claimRefusalsTotal 按拒绝原因细分被拒的 claim。
	claimRefusalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gift_claim_refusals_total",
		Help: "Total number of refused gift claims by reason.",
	}, []string{"reason"})

	// milestoneEventsTotal 统计消费到的玩家升级事件。
	milestoneEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gift_milestone_events_total",
		Help: "Total number of consumed player milestone events by result.",
	}, []string{"result"})
)

// QuotaReservedCollector 在每次抓取时从配额台账读取各桶的预留数，
// 暴露为 gift_quota_reserved gauge。只覆盖当前有效期内的奖品。
type QuotaReservedCollector struct {
	gifts  domain.GiftRepository
	ledger port.QuotaLedger
	desc   *prometheus.Desc
}

// NewQuotaReservedCollector 创建并注册采集器。
func NewQuotaReservedCollector(gifts domain.GiftRepository, ledger port.QuotaLedger) *QuotaReservedCollector {
	c := &QuotaReservedCollector{
		gifts:  gifts,
		ledger: ledger,
		desc: prometheus.NewDesc(
			"gift_quota_reserved",
			"Currently reserved stock per gift and quota bucket.",
			[]string{"gift", "bucket"}, nil),
	}
	prometheus.MustRegister(c)
	return c
}

func (c *QuotaReservedCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *QuotaReservedCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gifts, err := c.gifts.FindActive(ctx, time.Now())
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("quota collector: failed to list active gifts")
		return
	}
	for i := range gifts {
		reserved, err := c.ledger.Reserved(ctx, gifts[i].ID)
		if err != nil {
			continue
		}
		for bucket, count := range reserved {
			ch <- prometheus.MustNewConstMetric(
				c.desc, prometheus.GaugeValue, float64(count), gifts[i].Code, bucket)
		}
	}
}
