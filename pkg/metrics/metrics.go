// Package metrics provides caller-owned counters for signature caching, retries,
// and relayer calls. There is no package-level instance: construct one with New
// and pass it to the components that should record into it.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds counters using atomics for thread safety.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Signature cache
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	// Signing
	signaturesCreated atomic.Int64
	signingFailures   atomic.Int64

	// Storage backend
	storageErrors atomic.Int64

	// Retry engine
	retryAttempts    atomic.Int64
	retryExhaustions atomic.Int64

	// Relayer
	relayerCalls        atomic.Int64
	relayerErrors       atomic.Int64
	relayerLatencyNanos atomic.Int64
}

// New returns an empty metrics set.
func New() *Metrics {
	return &Metrics{}
}

// RecordCacheHit records a signature cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a signature cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Add(1)
}

// RecordSigning records a wallet signing outcome.
func (m *Metrics) RecordSigning(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.signingFailures.Add(1)
		return
	}
	m.signaturesCreated.Add(1)
}

// RecordStorageError records a swallowed storage failure.
func (m *Metrics) RecordStorageError() {
	if m == nil {
		return
	}
	m.storageErrors.Add(1)
}

// RecordRetry records one backoff before a retry.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retryAttempts.Add(1)
}

// RecordRetryExhausted records a retried operation that ended in failure.
func (m *Metrics) RecordRetryExhausted() {
	if m == nil {
		return
	}
	m.retryExhaustions.Add(1)
}

// RecordRelayerCall records a relayer call with its duration and outcome.
func (m *Metrics) RecordRelayerCall(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.relayerCalls.Add(1)
	m.relayerLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.relayerErrors.Add(1)
	}
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	CacheHits           int64
	CacheMisses         int64
	SignaturesCreated   int64
	SigningFailures     int64
	StorageErrors       int64
	RetryAttempts       int64
	RetryExhaustions    int64
	RelayerCalls        int64
	RelayerErrors       int64
	RelayerLatencyNanos int64
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
		SignaturesCreated:   m.signaturesCreated.Load(),
		SigningFailures:     m.signingFailures.Load(),
		StorageErrors:       m.storageErrors.Load(),
		RetryAttempts:       m.retryAttempts.Load(),
		RetryExhaustions:    m.retryExhaustions.Load(),
		RelayerCalls:        m.relayerCalls.Load(),
		RelayerErrors:       m.relayerErrors.Load(),
		RelayerLatencyNanos: m.relayerLatencyNanos.Load(),
	}
}

// CacheHitRate returns the signature cache hit rate as a percentage (0-100).
// Returns 0 if no lookups have occurred.
func (m *Metrics) CacheHitRate() float64 {
	s := m.Snapshot()
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}

// RelayerLatencyAvgMs returns the average relayer latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) RelayerLatencyAvgMs() float64 {
	s := m.Snapshot()
	if s.RelayerCalls == 0 {
		return 0
	}
	return float64(s.RelayerLatencyNanos) / float64(s.RelayerCalls) / 1e6
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.signaturesCreated.Store(0)
	m.signingFailures.Store(0)
	m.storageErrors.Store(0)
	m.retryAttempts.Store(0)
	m.retryExhaustions.Store(0)
	m.relayerCalls.Store(0)
	m.relayerErrors.Store(0)
	m.relayerLatencyNanos.Store(0)
}
