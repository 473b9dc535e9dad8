package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec

	// Consent lifecycle metrics
	ConsentsGranted   prometheus.Counter
	ConsentsRevoked   prometheus.Counter
	DuplicateGrants   prometheus.Counter
	LedgerRefsMinted  prometheus.Counter
	ConsentOpLatency  *prometheus.HistogramVec

	// Verification-log query metrics
	AuditQueries        prometheus.Counter
	AuditQueryLatency   prometheus.Histogram
	EnrichmentFailures  prometheus.Counter
	DocumentCacheHits   prometheus.Counter
	DocumentCacheMisses prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycore_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ConsentsGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_consents_granted_total",
			Help: "Total number of consent grant transitions",
		}),
		ConsentsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_consents_revoked_total",
			Help: "Total number of consent revocations",
		}),
		DuplicateGrants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_duplicate_grants_total",
			Help: "Total number of grant attempts rejected because consent was already granted",
		}),
		LedgerRefsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_ledger_refs_minted_total",
			Help: "Total number of ledger references minted on grant transitions",
		}),
		ConsentOpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycore_consent_op_latency_seconds",
			Help:    "Latency of consent state transitions in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		AuditQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_audit_queries_total",
			Help: "Total number of verification-log queries served",
		}),
		AuditQueryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycore_audit_query_latency_seconds",
			Help:    "Latency of verification-log queries in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		EnrichmentFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_enrichment_failures_total",
			Help: "Total number of document enrichment lookups that failed non-fatally",
		}),
		DocumentCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_document_cache_hits_total",
			Help: "Total number of document summary cache hits",
		}),
		DocumentCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycore_document_cache_misses_total",
			Help: "Total number of document summary cache misses",
		}),
	}
}

// ObserveEndpointLatency records the latency for a given endpoint
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// IncrementConsentsGranted increments the grants counter by 1
func (m *Metrics) IncrementConsentsGranted() {
	m.ConsentsGranted.Inc()
}

func (m *Metrics) IncrementConsentsRevoked() {
	m.ConsentsRevoked.Inc()
}

func (m *Metrics) IncrementDuplicateGrants() {
	m.DuplicateGrants.Inc()
}

func (m *Metrics) IncrementLedgerRefsMinted() {
	m.LedgerRefsMinted.Inc()
}

func (m *Metrics) ObserveConsentOpLatency(op string, durationSeconds float64) {
	m.ConsentOpLatency.WithLabelValues(op).Observe(durationSeconds)
}

func (m *Metrics) IncrementAuditQueries() {
	m.AuditQueries.Inc()
}

func (m *Metrics) ObserveAuditQueryLatency(durationSeconds float64) {
	m.AuditQueryLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementEnrichmentFailures() {
	m.EnrichmentFailures.Inc()
}

func (m *Metrics) IncrementDocumentCacheHits() {
	m.DocumentCacheHits.Inc()
}

func (m *Metrics) IncrementDocumentCacheMisses() {
	m.DocumentCacheMisses.Inc()
}
