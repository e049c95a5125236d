package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics holds the Prometheus instruments recorded by the sync
// orchestrator and the strategy fetcher.
type SyncMetrics struct {
	SyncAttemptsTotal  *prometheus.CounterVec
	SyncFailuresTotal  *prometheus.CounterVec
	SyncSkippedTotal   *prometheus.CounterVec
	SyncDuration       *prometheus.HistogramVec
	DownloadBytesTotal *prometheus.CounterVec
	StrategyFetchTotal *prometheus.CounterVec
}

// NewSyncMetrics creates and registers the sync metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production and a fresh
// registry in tests.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		SyncAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcsync_sync_attempts_total",
			Help: "Number of sync attempts per product.",
		}, []string{"product"}),
		SyncFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcsync_sync_failures_total",
			Help: "Number of failed sync attempts per product.",
		}, []string{"product"}),
		SyncSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcsync_sync_skipped_total",
			Help: "Number of sync attempts skipped because the date was stale.",
		}, []string{"product"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qcsync_sync_duration_seconds",
			Help:    "Duration of single product/date sync attempts.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"product"}),
		DownloadBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcsync_download_bytes_total",
			Help: "Bytes downloaded per product.",
		}, []string{"product"}),
		StrategyFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qcsync_strategy_fetch_total",
			Help: "Strategy result fetches by outcome code.",
		}, []string{"strategy", "code"}),
	}

	reg.MustRegister(
		m.SyncAttemptsTotal,
		m.SyncFailuresTotal,
		m.SyncSkippedTotal,
		m.SyncDuration,
		m.DownloadBytesTotal,
		m.StrategyFetchTotal,
	)

	return m
}
