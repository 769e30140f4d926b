// Package observability holds the explicitly constructed metrics context
// shared by the gateway's components. It is created once at process start,
// injected into each constructor, and snapshotted at shutdown; there is no
// ambient global registry.
package observability

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics counts the events the gateway cares about. All counters are
// atomic; Metrics is safe for concurrent use.
type Metrics struct {
	MessagesProcessed atomic.Int64
	Handoffs          atomic.Int64
	ContextHits       atomic.Int64
	ContextMisses     atomic.Int64
	ContextErrors     atomic.Int64
	ProviderErrors    atomic.Int64
	ProviderRetries   atomic.Int64
	QueueRejections   atomic.Int64
	SLABreaches       atomic.Int64
	TokensUsed        atomic.Int64

	processingNanos atomic.Int64
}

// NewMetrics returns a zeroed metrics context.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveProcessing records one end-to-end processing duration.
func (m *Metrics) ObserveProcessing(d time.Duration) {
	m.processingNanos.Add(int64(d))
	m.MessagesProcessed.Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	MessagesProcessed int64
	Handoffs          int64
	ContextHits       int64
	ContextMisses     int64
	ContextErrors     int64
	ProviderErrors    int64
	ProviderRetries   int64
	QueueRejections   int64
	SLABreaches       int64
	TokensUsed        int64
	AvgProcessing     time.Duration
}

// Snapshot reads every counter once.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		MessagesProcessed: m.MessagesProcessed.Load(),
		Handoffs:          m.Handoffs.Load(),
		ContextHits:       m.ContextHits.Load(),
		ContextMisses:     m.ContextMisses.Load(),
		ContextErrors:     m.ContextErrors.Load(),
		ProviderErrors:    m.ProviderErrors.Load(),
		ProviderRetries:   m.ProviderRetries.Load(),
		QueueRejections:   m.QueueRejections.Load(),
		SLABreaches:       m.SLABreaches.Load(),
		TokensUsed:        m.TokensUsed.Load(),
	}
	if s.MessagesProcessed > 0 {
		s.AvgProcessing = time.Duration(m.processingNanos.Load() / s.MessagesProcessed)
	}
	return s
}

// Log writes the snapshot through the given logger, used at shutdown.
func (m *Metrics) Log(logger *slog.Logger) {
	s := m.Snapshot()
	logger.Info("metrics snapshot",
		"messages_processed", s.MessagesProcessed,
		"handoffs", s.Handoffs,
		"context_hits", s.ContextHits,
		"context_misses", s.ContextMisses,
		"context_errors", s.ContextErrors,
		"provider_errors", s.ProviderErrors,
		"provider_retries", s.ProviderRetries,
		"queue_rejections", s.QueueRejections,
		"sla_breaches", s.SLABreaches,
		"tokens_used", s.TokensUsed,
		"avg_processing", s.AvgProcessing,
	)
}
