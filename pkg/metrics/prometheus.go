package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Metrics set to a Prometheus registry.
type Collector struct {
	m *Metrics

	cacheHits         *prometheus.Desc
	cacheMisses       *prometheus.Desc
	signaturesCreated *prometheus.Desc
	signingFailures   *prometheus.Desc
	storageErrors     *prometheus.Desc
	retryAttempts     *prometheus.Desc
	retryExhaustions  *prometheus.Desc
	relayerCalls      *prometheus.Desc
	relayerErrors     *prometheus.Desc
	relayerLatency    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading from m. Metric names are prefixed
// with namespace when it is non-empty.
func NewCollector(m *Metrics, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}

	return &Collector{
		m:                 m,
		cacheHits:         desc("signature_cache_hits_total", "Decryption signature cache hits."),
		cacheMisses:       desc("signature_cache_misses_total", "Decryption signature cache misses."),
		signaturesCreated: desc("signatures_created_total", "Decryption signatures created by wallet signing."),
		signingFailures:   desc("signing_failures_total", "Wallet signing attempts that failed or were rejected."),
		storageErrors:     desc("storage_errors_total", "Storage failures swallowed by the signature cache."),
		retryAttempts:     desc("retry_attempts_total", "Retries scheduled by the retry engine."),
		retryExhaustions:  desc("retry_exhaustions_total", "Retried operations that ended in failure."),
		relayerCalls:      desc("relayer_calls_total", "Calls made to the relayer."),
		relayerErrors:     desc("relayer_errors_total", "Relayer calls that returned an error."),
		relayerLatency:    desc("relayer_latency_seconds_total", "Cumulative relayer call latency."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.signaturesCreated
	ch <- c.signingFailures
	ch <- c.storageErrors
	ch <- c.retryAttempts
	ch <- c.retryExhaustions
	ch <- c.relayerCalls
	ch <- c.relayerErrors
	ch <- c.relayerLatency
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()

	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	counter(c.cacheHits, float64(s.CacheHits))
	counter(c.cacheMisses, float64(s.CacheMisses))
	counter(c.signaturesCreated, float64(s.SignaturesCreated))
	counter(c.signingFailures, float64(s.SigningFailures))
	counter(c.storageErrors, float64(s.StorageErrors))
	counter(c.retryAttempts, float64(s.RetryAttempts))
	counter(c.retryExhaustions, float64(s.RetryExhaustions))
	counter(c.relayerCalls, float64(s.RelayerCalls))
	counter(c.relayerErrors, float64(s.RelayerErrors))
	counter(c.relayerLatency, float64(s.RelayerLatencyNanos)/1e9)
}
