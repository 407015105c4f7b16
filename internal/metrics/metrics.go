package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"alert-autoconf/internal/clock"
	"alert-autoconf/internal/reconcile"
)

const namespace = "alert_autoconf"

// Recorder keeps run metrics in a private registry.
// Params: clock for run timestamps.
// Returns: recorder that can be dumped to a node-exporter textfile.
type Recorder struct {
	registry    *prometheus.Registry
	clock       clock.Clock
	actions     *prometheus.CounterVec
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRecorder registers run metrics.
// Params: time source; nil uses the system clock.
// Returns: recorder instance.
func NewRecorder(c clock.Clock) *Recorder {
	if c == nil {
		c = clock.RealClock{}
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		clock:    c,
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Reconciliation decisions by entity kind and action.",
			},
			[]string{"kind", "action"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run finished without error.",
		}),
	}
	r.registry.MustRegister(r.actions, r.lastRun, r.lastSuccess)
	return r
}

// Record adds report counters and stamps run outcome.
// Params: run report (partial on failure) and success flag.
func (r *Recorder) Record(report reconcile.Report, success bool) {
	report.Each(func(kind, action string, n int) {
		r.actions.WithLabelValues(kind, action).Add(float64(n))
	})
	r.lastRun.Set(float64(r.clock.Now().Unix()))
	if success {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
}

// Registry exposes gathered metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes metrics in text exposition format.
// Params: target path, usually inside the node-exporter textfile directory.
// Returns: gather or write error.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}
