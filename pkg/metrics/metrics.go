package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CollectDuration is how long a source's backend took to gather its
	// guest data for one cycle.
	CollectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "virtwho_collect_duration_seconds",
			Help:    "Time taken by a source to gather guest data in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// CheckinDuration is how long a destination's checkin with its
	// manager took, from hypervisorCheckIn through the terminal async
	// poll.
	CheckinDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "virtwho_checkin_duration_seconds",
			Help:    "Time taken for a destination checkin to reach a terminal state in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	// ReportsSentTotal counts reports a destination has submitted, by
	// outcome (finished, failed, canceled).
	ReportsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtwho_reports_sent_total",
			Help: "Total number of reports submitted to a destination by outcome",
		},
		[]string{"destination", "outcome"},
	)

	// ThrottleWaitSecondsTotal accumulates time spent waiting on a
	// ManagerThrottleError's retry_after, per destination.
	ThrottleWaitSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "virtwho_throttle_wait_seconds_total",
			Help: "Total seconds spent waiting on destination-imposed throttling",
		},
		[]string{"destination"},
	)

	// WorkersActive is the current count of live workers, by role
	// (source, destination).
	WorkersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "virtwho_workers_active",
			Help: "Current number of active workers by role",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(CollectDuration)
	prometheus.MustRegister(CheckinDuration)
	prometheus.MustRegister(ReportsSentTotal)
	prometheus.MustRegister(ThrottleWaitSecondsTotal)
	prometheus.MustRegister(WorkersActive)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	t.Duration()
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
