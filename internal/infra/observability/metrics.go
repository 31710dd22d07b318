package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the broker.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	tokenExchanges  *prometheus.CounterVec
	tokenCacheHits  *prometheus.CounterVec
	tokenCacheMiss  *prometheus.CounterVec
	bankErrors      *prometheus.CounterVec
	chargesCreated  *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

// BankSnapshot is a JSON-friendly summary of bank-integration counters,
// served by GET /v1/metrics/bank.
type BankSnapshot struct {
	TokenExchanges     int64   `json:"tokenExchanges"`
	TokenExchangeFails int64   `json:"tokenExchangeFailures"`
	TokenCacheHitRate  float64 `json:"tokenCacheHitRate"`
	ChargesCreated     int64   `json:"chargesCreated"`
	WebhookPayments    int64   `json:"webhookPayments"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "broker_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		tokenExchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_token_exchanges_total",
				Help: "OAuth token exchanges against the bank, by outcome.",
			},
			[]string{"outcome"},
		),
		tokenCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_token_cache_hits_total",
				Help: "Token cache hits by tenant.",
			},
			[]string{"tenant"},
		),
		tokenCacheMiss: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_token_cache_misses_total",
				Help: "Token cache misses by tenant.",
			},
			[]string{"tenant"},
		),
		bankErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_bank_errors_total",
				Help: "Errors returned by the bank API, by operation.",
			},
			[]string{"operation"},
		),
		chargesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_charges_created_total",
				Help: "Charges created, by kind.",
			},
			[]string{"kind"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broker_webhook_events_total",
				Help: "Webhook payment notifications, by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTokenExchange counts one token exchange. Outcome is "success" or "failure".
func (m *Metrics) IncrTokenExchange(outcome string) {
	m.tokenExchanges.WithLabelValues(outcome).Inc()
}

// IncrTokenCacheHit counts a token served straight from the cache.
func (m *Metrics) IncrTokenCacheHit(tenantID string) {
	m.tokenCacheHits.WithLabelValues(tenantID).Inc()
}

// IncrTokenCacheMiss counts a token lookup that required an exchange.
func (m *Metrics) IncrTokenCacheMiss(tenantID string) {
	m.tokenCacheMiss.WithLabelValues(tenantID).Inc()
}

// IncrBankError counts a bank API error for the given operation.
func (m *Metrics) IncrBankError(operation string) {
	m.bankErrors.WithLabelValues(operation).Inc()
}

// IncrChargeCreated counts a successfully created charge.
func (m *Metrics) IncrChargeCreated(kind string) {
	m.chargesCreated.WithLabelValues(kind).Inc()
}

// IncrWebhookEvent counts one processed webhook pix entry.
// Result is "matched", "unmatched" or "error".
func (m *Metrics) IncrWebhookEvent(result string) {
	m.webhookEvents.WithLabelValues(result).Inc()
}

// GetBankSnapshot returns a snapshot of bank-integration metrics for the
// GET /v1/metrics/bank endpoint.
func (m *Metrics) GetBankSnapshot() *BankSnapshot {
	exchanges := sumCounterValues(m.tokenExchanges)
	failures := getCounterValue(m.tokenExchanges, "failure")
	hits := sumCounterValues(m.tokenCacheHits)
	misses := sumCounterValues(m.tokenCacheMiss)
	created := sumCounterValues(m.chargesCreated)
	matched := getCounterValue(m.webhookEvents, "matched")

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &BankSnapshot{
		TokenExchanges:     int64(exchanges),
		TokenExchangeFails: int64(failures),
		TokenCacheHitRate:  hitRate,
		ChargesCreated:     int64(created),
		WebhookPayments:    int64(matched),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterValues sums a CounterVec across all label values.
func sumCounterValues(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
