// Package metrics holds the Prometheus collectors for the bridge.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aguibridge"

// Metrics exposes Prometheus collectors that report execution and session
// activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	executionsActive  prometheus.Gauge
	executionsStarted prometheus.Counter
	executionDuration *prometheus.HistogramVec
	runErrors         *prometheus.CounterVec
	eventsEmitted     *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	sessionsRemoved   *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew constructs Metrics on reg. Collectors that are already registered
// are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		executionsActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "active",
			Help:      "Number of executions currently registered.",
		})),
		executionsStarted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "started_total",
			Help:      "Total number of executions started.",
		})),
		executionDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Wall-clock time from RUN_STARTED to the terminal event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"})),
		runErrors: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "run_errors_total",
			Help:      "RUN_ERROR events emitted, by code.",
		}, []string{"code"})),
		eventsEmitted: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "AG-UI events delivered to clients, by type.",
		}, []string{"type"})),
		sessionsActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of tracked sessions.",
		})),
		sessionsRemoved: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "removed_total",
			Help:      "Sessions removed, by reason.",
		}, []string{"reason"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ExecutionStarted marks an execution as registered.
func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.executionsStarted.Inc()
	m.executionsActive.Inc()
}

// ExecutionRemoved marks an execution as unregistered.
func (m *Metrics) ExecutionRemoved() {
	if m == nil {
		return
	}
	m.executionsActive.Dec()
}

// ObserveExecution records how long a run stream lasted and how it ended.
func (m *Metrics) ObserveExecution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.executionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RunError counts a RUN_ERROR with the given code.
func (m *Metrics) RunError(code string) {
	if m == nil {
		return
	}
	m.runErrors.WithLabelValues(code).Inc()
}

// EventEmitted counts an event delivered to a client.
func (m *Metrics) EventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

// SetSessions sets the tracked session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// SessionRemoved counts a removed session. Reasons are "expired",
// "evicted" and "deleted".
func (m *Metrics) SessionRemoved(reason string) {
	if m == nil {
		return
	}
	m.sessionsRemoved.WithLabelValues(reason).Inc()
}
