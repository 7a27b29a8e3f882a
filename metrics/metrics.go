// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"

	"github.com/luxfi/metric"
	"github.com/luxfi/utils/wrappers"
)

const (
	opLabel   = "op"
	kindLabel = "kind"
)

var (
	_ Metrics = (*metricsImpl)(nil)

	opLabels   = []string{opLabel}
	kindLabels = []string{kindLabel}
)

type Metrics interface {
	metric.APIInterceptor

	// MarkAccepted counts one applied operation of the given kind.
	MarkAccepted(op string)
	// MarkRejected counts one operation refused during block processing.
	MarkRejected(op string)
	// MarkAlert counts one security alert of the given kind.
	MarkAlert(kind string)
	// MarkBlockProcessed counts one processed block.
	MarkBlockProcessed()

	ObserveTreasury(balance uint64)
	ObserveFeePool(pool uint64)
	ObserveOwners(count int)
	ObserveThreshold(threshold uint32)
	ObserveTransactions(count uint64)
	ObservePending(count uint64)
	ObserveEmergency(active bool)
	ObservePaused(paused bool)
}

type metricsImpl struct {
	numAccepted metric.CounterVec
	numRejected metric.CounterVec
	numAlerts   metric.CounterVec
	numBlocks   metric.Counter

	treasury   metric.Gauge
	feePool    metric.Gauge
	ownerCount metric.Gauge
	threshold  metric.Gauge
	txCount    metric.Gauge
	pendingTxs metric.Gauge
	emergency  metric.Gauge
	paused     metric.Gauge

	metric.APIInterceptor
}

func (m *metricsImpl) MarkAccepted(op string) {
	m.numAccepted.With(metric.Labels{
		opLabel: op,
	}).Inc()
}

func (m *metricsImpl) MarkRejected(op string) {
	m.numRejected.With(metric.Labels{
		opLabel: op,
	}).Inc()
}

func (m *metricsImpl) MarkAlert(kind string) {
	m.numAlerts.With(metric.Labels{
		kindLabel: kind,
	}).Inc()
}

func (m *metricsImpl) MarkBlockProcessed() {
	m.numBlocks.Inc()
}

func (m *metricsImpl) ObserveTreasury(balance uint64) {
	m.treasury.Set(float64(balance))
}

func (m *metricsImpl) ObserveFeePool(pool uint64) {
	m.feePool.Set(float64(pool))
}

func (m *metricsImpl) ObserveOwners(count int) {
	m.ownerCount.Set(float64(count))
}

func (m *metricsImpl) ObserveThreshold(threshold uint32) {
	m.threshold.Set(float64(threshold))
}

func (m *metricsImpl) ObserveTransactions(count uint64) {
	m.txCount.Set(float64(count))
}

func (m *metricsImpl) ObservePending(count uint64) {
	m.pendingTxs.Set(float64(count))
}

func (m *metricsImpl) ObserveEmergency(active bool) {
	m.emergency.Set(boolToFloat(active))
}

func (m *metricsImpl) ObservePaused(paused bool) {
	m.paused.Set(boolToFloat(paused))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func New(registerer metric.Registerer) (Metrics, error) {
	registry, ok := registerer.(metric.Registry)
	if !ok {
		return nil, errors.New("registerer must implement metric.Registry")
	}
	errs := wrappers.Errs{}

	m := &metricsImpl{}
	m.numAccepted = metric.NewCounterVec(
		metric.CounterOpts{
			Name: "operations_accepted",
			Help: "number of vault operations applied",
		},
		opLabels,
	)
	m.numRejected = metric.NewCounterVec(
		metric.CounterOpts{
			Name: "operations_rejected",
			Help: "number of vault operations refused",
		},
		opLabels,
	)
	m.numAlerts = metric.NewCounterVec(
		metric.CounterOpts{
			Name: "security_alerts",
			Help: "number of security alerts raised",
		},
		kindLabels,
	)
	m.numBlocks = metric.NewCounter(metric.CounterOpts{
		Name: "blocks_processed",
		Help: "number of blocks processed",
	})
	m.treasury = metric.NewGauge(metric.GaugeOpts{
		Name: "treasury_balance",
		Help: "treasury balance in base units, accrued fees included",
	})
	m.feePool = metric.NewGauge(metric.GaugeOpts{
		Name: "fee_pool",
		Help: "accrued execution fees awaiting collection",
	})
	m.ownerCount = metric.NewGauge(metric.GaugeOpts{
		Name: "owner_count",
		Help: "number of registered owners",
	})
	m.threshold = metric.NewGauge(metric.GaugeOpts{
		Name: "threshold",
		Help: "confirmations required to execute",
	})
	m.txCount = metric.NewGauge(metric.GaugeOpts{
		Name: "transaction_count",
		Help: "number of transactions ever proposed",
	})
	m.pendingTxs = metric.NewGauge(metric.GaugeOpts{
		Name: "pending_transactions",
		Help: "number of transactions awaiting execution",
	})
	m.emergency = metric.NewGauge(metric.GaugeOpts{
		Name: "emergency_mode",
		Help: "1 while emergency mode is active",
	})
	m.paused = metric.NewGauge(metric.GaugeOpts{
		Name: "paused",
		Help: "1 while the vault is paused",
	})

	apiRequestMetric, err := metric.NewAPIInterceptor(registry)
	m.APIInterceptor = apiRequestMetric
	errs.Add(err)
	// Metrics are self-registering when created with NewCounter etc.
	return m, errs.Err
}
