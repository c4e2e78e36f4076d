package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics registry and rosca meters.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec

	EventsTotal        *prometheus.CounterVec
	ContributionVolume *prometheus.CounterVec
	DefaultsTotal      *prometheus.CounterVec
	ActiveRoscas       prometheus.Gauge
	ArchiveUploads     *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// NewMetrics creates a custom Prometheus registry with the rosca metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rosca_operation_duration_seconds",
		Help:    "Duration of operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_operation_total",
		Help: "Total number of operations.",
	}, []string{"operation", "status"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_errors_total",
		Help: "Total number of errors by kind.",
	}, []string{"operation", "type"})

	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_events_total",
		Help: "Committed rosca events by kind.",
	}, []string{"kind"})

	contributionVolume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_contribution_volume_total",
		Help: "Sum of contributed amounts in base units.",
	}, []string{"asset"})

	defaultsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_defaults_total",
		Help: "Missed contributions by settlement path.",
	}, []string{"covered"})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rosca_active",
		Help: "Roscas currently in the active phase.",
	})

	archiveUploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_archive_uploads_total",
		Help: "Completed rosca snapshots written to the archive.",
	}, []string{"status"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rosca_http_requests_total",
		Help: "HTTP API requests by route and status code.",
	}, []string{"route", "code"})

	reg.MustRegister(opDuration, opTotal, errorsTotal, eventsTotal,
		contributionVolume, defaultsTotal, active, archiveUploads, httpRequests)

	return &Metrics{
		Registry:           reg,
		OperationDuration:  opDuration,
		OperationTotal:     opTotal,
		ErrorsTotal:        errorsTotal,
		EventsTotal:        eventsTotal,
		ContributionVolume: contributionVolume,
		DefaultsTotal:      defaultsTotal,
		ActiveRoscas:       active,
		ArchiveUploads:     archiveUploads,
		HTTPRequests:       httpRequests,
	}
}
