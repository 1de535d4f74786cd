package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seleniumrun",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of background services that became ready.",
		}, []string{"name"},
	)
	serviceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seleniumrun",
			Subsystem: "service",
			Name:      "start_failures_total",
			Help:      "Number of background services that never became ready.",
		}, []string{"name"},
	)
	serviceReady = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "seleniumrun",
			Subsystem: "service",
			Name:      "ready_seconds",
			Help:      "Time from spawn until the readiness check passed.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 45},
		}, []string{"name"},
	)
	testsDiscovered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "seleniumrun",
			Subsystem: "test",
			Name:      "discovered",
			Help:      "Valid test definitions found in the tests directory.",
		},
	)
	testResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seleniumrun",
			Subsystem: "test",
			Name:      "results_total",
			Help:      "Executed tests by outcome.",
		}, []string{"result"},
	)
	testDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "seleniumrun",
			Subsystem: "test",
			Name:      "duration_seconds",
			Help:      "Wall time of one test execution.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seleniumrun",
			Subsystem: "harness",
			Name:      "state_transitions_total",
			Help:      "Number of harness state machine transitions.",
		}, []string{"from", "to"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceFailures, serviceReady, testsDiscovered, testResults, testDuration, stateTransitions}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// WriteTextfile writes everything g gathers to path in the Prometheus text
// format, suitable for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncServiceStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncServiceFailure(name string) {
	if regOK.Load() {
		serviceFailures.WithLabelValues(name).Inc()
	}
}

func ObserveReady(name string, seconds float64) {
	if regOK.Load() {
		serviceReady.WithLabelValues(name).Observe(seconds)
	}
}

func SetDiscovered(n int) {
	if regOK.Load() {
		testsDiscovered.Set(float64(n))
	}
}

func ObserveTest(result string, seconds float64) {
	if regOK.Load() {
		testResults.WithLabelValues(result).Inc()
		testDuration.Observe(seconds)
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}
