// Package leasecrawler exports the accounting crawler's per-cycle
// statistics as Prometheus metrics, the natural home for this codebase's
// Prometheus dependency once the network/API metrics it otherwise measures
// are out of scope.
package leasecrawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the crawler's Prometheus collectors. A nil *Metrics is safe
// to call methods on (all Record* methods no-op), so callers that disable
// metrics entirely do not need conditionals at every call site.
type Metrics struct {
	examinedShares     *prometheus.CounterVec
	examinedSharebytes *prometheus.CounterVec
	actualShares       *prometheus.CounterVec
	actualSharebytes   *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	orphansDiscovered  prometheus.Counter
	vanishedShares     prometheus.Counter
	cycleNumber        prometheus.Gauge
}

// New registers the crawler's collectors against reg and returns a Metrics
// to record through. Pass a fresh prometheus.Registry (or
// prometheus.DefaultRegisterer) from the daemon's composition root.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		examinedShares: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "leasecrawler_examined_shares_total",
			Help: "Shares examined during reconciliation, by sharetype.",
		}, []string{"sharetype"}),
		examinedSharebytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "leasecrawler_examined_sharebytes_total",
			Help: "Bytes examined during reconciliation, by sharetype.",
		}, []string{"sharetype"}),
		actualShares: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "leasecrawler_actual_shares_total",
			Help: "Shares actually reclaimed (vanished or expired), by sharetype.",
		}, []string{"sharetype"}),
		actualSharebytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "leasecrawler_actual_sharebytes_total",
			Help: "Bytes actually reclaimed, by sharetype.",
		}, []string{"sharetype"}),
		cycleDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "leasecrawler_cycle_duration_seconds",
			Help:    "Wall-clock duration of a completed crawler cycle.",
			Buckets: prometheus.ExponentialBuckets(60, 2, 12),
		}),
		orphansDiscovered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "leasecrawler_orphans_discovered_total",
			Help: "On-disk shares discovered with no LeaseDB record.",
		}),
		vanishedShares: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "leasecrawler_vanished_shares_total",
			Help: "LeaseDB share records with no on-disk file.",
		}),
		cycleNumber: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "leasecrawler_cycle_number",
			Help: "Current crawler cycle number.",
		}),
	}
}

func (m *Metrics) RecordExamined(sharetype string, shares, sharebytes int64) {
	if m == nil {
		return
	}
	m.examinedShares.WithLabelValues(sharetype).Add(float64(shares))
	m.examinedSharebytes.WithLabelValues(sharetype).Add(float64(sharebytes))
}

func (m *Metrics) RecordActual(sharetype string, shares, sharebytes int64) {
	if m == nil {
		return
	}
	m.actualShares.WithLabelValues(sharetype).Add(float64(shares))
	m.actualSharebytes.WithLabelValues(sharetype).Add(float64(sharebytes))
}

func (m *Metrics) RecordCycleDuration(seconds float64) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(seconds)
}

func (m *Metrics) RecordOrphanDiscovered() {
	if m == nil {
		return
	}
	m.orphansDiscovered.Inc()
}

func (m *Metrics) RecordVanishedShare() {
	if m == nil {
		return
	}
	m.vanishedShares.Inc()
}

func (m *Metrics) SetCycleNumber(cycle int64) {
	if m == nil {
		return
	}
	m.cycleNumber.Set(float64(cycle))
}
