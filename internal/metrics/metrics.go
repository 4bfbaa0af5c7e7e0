package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "infrachain"

// Registry 服务自有的指标注册表
var Registry = prometheus.NewRegistry()

var (
	// InvestmentsSubmitted 提交的投资数
	InvestmentsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "investments_submitted_total",
		Help:      "Investments submitted with a transaction hash.",
	})

	// InvestmentsReconciled 按结果统计的投资对账数
	InvestmentsReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "investments_reconciled_total",
		Help:      "Investments moved out of pending, by outcome.",
	}, []string{"outcome"})

	// ChainEventsProcessed 按事件名和处理结果统计
	ChainEventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_events_processed_total",
		Help:      "On-chain events consumed by the event monitor.",
	}, []string{"event", "result"})

	OverclaimsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interest_overclaims_detected_total",
		Help:      "Interest claims that exceeded the tracked pending amount.",
	})

	FundsAuditDivergences = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "funds_audit_divergences_total",
		Help:      "Projects whose stored aggregates differ from confirmed investments.",
	})

	ChainReadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_read_errors_total",
		Help:      "Failed chain reads, by method.",
	}, []string{"method"})

	ChainReadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chain_read_duration_seconds",
		Help:      "Latency of chain reads, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		InvestmentsSubmitted,
		InvestmentsReconciled,
		ChainEventsProcessed,
		OverclaimsDetected,
		FundsAuditDivergences,
		ChainReadErrors,
		ChainReadDuration,
	)
}

// ObserveChainRead 记录一次链上读取的耗时和结果
func ObserveChainRead(method string, start time.Time, err error) {
	ChainReadDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		ChainReadErrors.WithLabelValues(method).Inc()
	}
}

// Handler 指标暴露接口
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
