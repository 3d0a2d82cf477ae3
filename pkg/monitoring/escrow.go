package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/conduit-ucpi/webapp-sub000/pkg/cache"
	"github.com/conduit-ucpi/webapp-sub000/pkg/funding"
	"github.com/conduit-ucpi/webapp-sub000/pkg/unifiedauth"
)

// EscrowMetrics counts auth lifecycle events, funding progress and token
// cache behaviour.
type EscrowMetrics struct {
	AuthEvents         *prometheus.CounterVec
	FundingStages      *prometheus.CounterVec
	FundingFailures    *prometheus.CounterVec
	ConfirmationWait   *prometheus.HistogramVec
	TokenCacheLookups  *prometheus.CounterVec
	HotCacheOperations *prometheus.CounterVec
}

var _ funding.Observer = (*EscrowMetrics)(nil)

// NewEscrowMetrics registers the escrow metrics on mc.
func NewEscrowMetrics(mc *MetricsCollector) *EscrowMetrics {
	return &EscrowMetrics{
		AuthEvents: mc.NewCounter("auth_events_total",
			"Auth provider lifecycle events", []string{"type", "provider"}),
		FundingStages: mc.NewCounter("funding_stages_total",
			"Funding stages reached", []string{"stage"}),
		FundingFailures: mc.NewCounter("funding_failures_total",
			"Funding runs that failed, by the stage they failed in", []string{"stage"}),
		ConfirmationWait: mc.NewHistogram("confirmation_wait_seconds",
			"Time spent waiting for transaction receipts", []string{"stage", "outcome"}, confirmationBuckets),
		TokenCacheLookups: mc.NewCounter("token_cache_lookups_total",
			"Cached auth token lookups by result", []string{"result"}),
		HotCacheOperations: mc.NewCounter("hot_cache_operations_total",
			"In-process cache operations", []string{"cache", "op"}),
	}
}

// HandleAuthEvent is a unifiedauth.Listener.
func (m *EscrowMetrics) HandleAuthEvent(ev unifiedauth.Event) {
	provider := ev.Provider
	if provider == "" {
		provider = "none"
	}
	m.AuthEvents.WithLabelValues(string(ev.Type), provider).Inc()
}

func (m *EscrowMetrics) StageReached(stage funding.Stage) {
	m.FundingStages.WithLabelValues(string(stage)).Inc()
}

func (m *EscrowMetrics) StepFailed(stage funding.Stage) {
	m.FundingFailures.WithLabelValues(string(stage)).Inc()
}

func (m *EscrowMetrics) ConfirmationWaited(stage funding.Stage, elapsed time.Duration, confirmed bool) {
	outcome := "confirmed"
	if !confirmed {
		outcome = "failed"
	}
	m.ConfirmationWait.WithLabelValues(string(stage), outcome).Observe(elapsed.Seconds())
}

// TokenCacheLookup is a tokencache lookup hook.
func (m *EscrowMetrics) TokenCacheLookup(result string) {
	m.TokenCacheLookups.WithLabelValues(result).Inc()
}

// CacheHooks reports hot cache activity.
func (m *EscrowMetrics) CacheHooks() cache.MetricsHooks {
	count := func(op string) func(string) {
		return func(name string) { m.HotCacheOperations.WithLabelValues(name, op).Inc() }
	}
	return cache.MetricsHooks{
		OnHit:   count("hit"),
		OnMiss:  count("miss"),
		OnStore: count("store"),
		OnEvict: count("evict"),
	}
}
