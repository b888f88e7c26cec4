package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ManifestIngestTotal counts manifest ingestion outcomes.
	ManifestIngestTotal *prometheus.CounterVec
	// ManifestRowsTotal counts processed manifest rows by pricing outcome.
	ManifestRowsTotal *prometheus.CounterVec
	// RateLookupFailures counts per-row rate resolution failures that were
	// degraded to unpriced rows.
	RateLookupFailures prometheus.Counter
	// BillsSubmittedTotal counts bill submissions by result.
	BillsSubmittedTotal *prometheus.CounterVec
	// PolicyPropagationTotal counts global rate policy propagation runs.
	PolicyPropagationTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ManifestIngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_ingest_total",
			Help:      "Count of manifest ingestion outcomes.",
		}, []string{"result"})
		ManifestRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_rows_total",
			Help:      "Count of manifest rows by pricing outcome.",
		}, []string{"outcome"})
		RateLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_lookup_failures_total",
			Help:      "Rate resolutions that failed and were degraded to unpriced rows.",
		})
		BillsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_submitted_total",
			Help:      "Count of bill submissions by result.",
		}, []string{"result"})
		PolicyPropagationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_policy_propagation_total",
			Help:      "Count of global rate policy propagation runs by result.",
		}, []string{"result"})

		ManifestIngestTotal = registerOrExisting(reg, ManifestIngestTotal).(*prometheus.CounterVec)
		ManifestRowsTotal = registerOrExisting(reg, ManifestRowsTotal).(*prometheus.CounterVec)
		RateLookupFailures = registerOrExisting(reg, RateLookupFailures).(prometheus.Counter)
		BillsSubmittedTotal = registerOrExisting(reg, BillsSubmittedTotal).(*prometheus.CounterVec)
		PolicyPropagationTotal = registerOrExisting(reg, PolicyPropagationTotal).(*prometheus.CounterVec)
	})
}
