package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forecast pipeline metrics
var (
	// ForecastsTotal tracks forecast pipeline runs per SKU outcome
	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_forecasts_total",
			Help: "Total number of ensemble forecast runs",
		},
		[]string{"status"},
	)

	// ForecastDuration tracks how long one SKU's four-model run takes
	ForecastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "demandcast_forecast_duration_seconds",
			Help:    "Duration of a full ensemble forecast for one SKU",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ModelFallbacksTotal counts degraded model runs by model name
	ModelFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_model_fallbacks_total",
			Help: "Model runs that degraded to the fallback estimator",
		},
		[]string{"model"},
	)
)

// Optimizer metrics
var (
	// OptimizationsTotal tracks weight optimizer outcomes
	OptimizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_optimizations_total",
			Help: "Weight optimizer runs by outcome (persisted, skipped, kept)",
		},
		[]string{"outcome"},
	)

	// OptimizerMape records the validated MAPE of persisted weight sets
	OptimizerMape = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "demandcast_optimizer_mape",
			Help:    "Held-out MAPE of persisted weight sets",
			Buckets: []float64{5, 10, 15, 20, 30, 50, 75, 100},
		},
	)
)

// Detection metrics
var (
	// SpikesDetectedTotal counts spike detections by inferred cause
	SpikesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_spikes_detected_total",
			Help: "Spike detections by inferred cause",
		},
		[]string{"cause"},
	)

	// AnomaliesDetectedTotal counts anomaly events by type
	AnomaliesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_anomalies_detected_total",
			Help: "Anomaly events by type",
		},
		[]string{"type"},
	)

	// AdjustmentsAppliedTotal counts applied parameter adjustments
	AdjustmentsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demandcast_adjustments_applied_total",
			Help: "Parameter adjustments put into effect by the apply step",
		},
		[]string{"parameter"},
	)
)

// Ingest and scheduling metrics
var (
	// OrderEventsTotal counts consumed order feed events
	OrderEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "demandcast_order_events_total",
			Help: "Order events folded into the daily sales ledger",
		},
	)

	// CatalogScanDuration tracks full-catalog job durations
	CatalogScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demandcast_catalog_scan_duration_seconds",
			Help:    "Duration of full-catalog background jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "demandcast_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

// RecordStart stamps the application start time.
func RecordStart() {
	AppStartTime.Set(float64(time.Now().Unix()))
}
