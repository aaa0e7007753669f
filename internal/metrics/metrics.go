// Package metrics defines the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Conversation metrics
	ActionsTotal          *prometheus.CounterVec
	ActionDurationSeconds *prometheus.HistogramVec
	MessageSplitsTotal    prometheus.Counter
	DeliveryFallbacks     *prometheus.CounterVec
	DroppedButtons        *prometheus.CounterVec

	// Store metrics
	StoreQueryDurationSeconds *prometheus.HistogramVec
	StoreErrorsTotal          *prometheus.CounterVec
	CatalogueSpecialties      prometheus.Gauge
	CatalogueUniversities     prometheus.Gauge

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
	RateLimiterUsers   prometheus.Gauge

	// Snapshot metrics
	SnapshotSyncTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_actions_total",
				Help: "Total number of handled user actions by transport, action and status",
			},
			[]string{"transport", "action", "status"}, // status: success, error, rate_limited
		),

		ActionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unibot_action_duration_seconds",
				Help:    "End-to-end handling time of a user action in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"transport", "action"},
		),

		MessageSplitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "unibot_message_splits_total",
				Help: "Total number of result messages split because they exceeded the size limit",
			},
		),

		DeliveryFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_delivery_fallbacks_total",
				Help: "Total number of rejected deliveries retried as a plain resend",
			},
			[]string{"transport"},
		),

		DroppedButtons: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_dropped_buttons_total",
				Help: "Total number of buttons left out because their callback data exceeded the platform limit",
			},
			[]string{"transport"},
		),

		StoreQueryDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unibot_store_query_duration_seconds",
				Help:    "Catalogue store query duration in seconds by operation",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"operation"},
		),

		StoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_store_errors_total",
				Help: "Total number of failed catalogue store queries by operation",
			},
			[]string{"operation"},
		),

		CatalogueSpecialties: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "unibot_catalogue_specialties",
				Help: "Number of distinct specialties in the loaded catalogue",
			},
		),

		CatalogueUniversities: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "unibot_catalogue_universities",
				Help: "Number of university records in the loaded catalogue",
			},
		),

		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_http_errors_total",
				Help: "Total HTTP errors by type",
			},
			[]string{"error_type"}, // error_type: invalid_signature, parse_error
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped or delayed by rate limiters",
			},
			[]string{"limiter"}, // limiter: user, global
		),

		RateLimiterUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "unibot_rate_limiter_active_users",
				Help: "Number of users with an active rate limiter bucket",
			},
		),

		SnapshotSyncTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unibot_snapshot_sync_total",
				Help: "Total number of catalogue snapshot sync attempts by status",
			},
			[]string{"status"}, // status: swapped, unchanged, missing, error
		),
	}
}

// RecordAction records one handled user action.
func (m *Metrics) RecordAction(transport, action, status string, durationSeconds float64) {
	m.ActionsTotal.WithLabelValues(transport, action, status).Inc()
	m.ActionDurationSeconds.WithLabelValues(transport, action).Observe(durationSeconds)
}

// RecordSplit records a result message that was split in two.
func (m *Metrics) RecordSplit() {
	m.MessageSplitsTotal.Inc()
}

// RecordDeliveryFallback records a rejected edit retried as a new message.
func (m *Metrics) RecordDeliveryFallback(transport string) {
	m.DeliveryFallbacks.WithLabelValues(transport).Inc()
}

// RecordDroppedButton records a button omitted for oversized callback data.
func (m *Metrics) RecordDroppedButton(transport string) {
	m.DroppedButtons.WithLabelValues(transport).Inc()
}

// RecordStoreQuery records the duration of a store query and counts failures.
func (m *Metrics) RecordStoreQuery(operation string, durationSeconds float64, err error) {
	m.StoreQueryDurationSeconds.WithLabelValues(operation).Observe(durationSeconds)
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// SetCatalogueSize updates the catalogue size gauges.
func (m *Metrics) SetCatalogueSize(specialties, universities int) {
	m.CatalogueSpecialties.Set(float64(specialties))
	m.CatalogueUniversities.Set(float64(universities))
}

// RecordHTTPError records an HTTP-level error.
func (m *Metrics) RecordHTTPError(errorType string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordRateLimiterDrop records a request dropped by a rate limiter.
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}

// SetRateLimiterUsers sets the number of tracked users.
func (m *Metrics) SetRateLimiterUsers(count int) {
	m.RateLimiterUsers.Set(float64(count))
}

// RecordSnapshotSync records the outcome of a snapshot sync attempt.
func (m *Metrics) RecordSnapshotSync(status string) {
	m.SnapshotSyncTotal.WithLabelValues(status).Inc()
}
