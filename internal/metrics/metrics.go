// Package metrics exposes Prometheus collectors that report controller activity.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the controller's Prometheus collectors.
// All methods are nil-safe so callers can run without metrics wired.
type Metrics struct {
	stepDuration prometheus.Histogram
	taskSteps    *prometheus.HistogramVec
	taskOutcomes *prometheus.CounterVec
	collisions   *prometheus.CounterVec
	tasksActive  prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the package-level metrics instance registered with the
// global Prometheus registry. Collectors are created only once to avoid
// duplicate registration panics when several controllers run in one process.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry in tests. Registration errors other than
// AlreadyRegistered panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	stepDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sma",
			Subsystem: "controller",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one simulation step round trip.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	taskSteps := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sma",
			Subsystem: "controller",
			Name:      "task_steps",
			Help:      "Simulation steps consumed per task.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		},
		[]string{"task"},
	)
	taskOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sma",
			Subsystem: "controller",
			Name:      "task_outcomes_total",
			Help:      "Task completions by task name and terminal status.",
		},
		[]string{"task", "status"},
	)
	collisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sma",
			Subsystem: "controller",
			Name:      "collisions_total",
			Help:      "Collisions observed by kind (object, environment, heavy).",
		},
		[]string{"kind"},
	)
	tasksActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sma",
			Subsystem: "controller",
			Name:      "tasks_active",
			Help:      "Number of task primitives currently driving the avatar.",
		},
	)

	collectors := []prometheus.Collector{stepDuration, taskSteps, taskOutcomes, collisions, tasksActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case stepDuration:
					stepDuration = already.ExistingCollector.(prometheus.Histogram)
				case taskSteps:
					taskSteps = already.ExistingCollector.(*prometheus.HistogramVec)
				case taskOutcomes:
					taskOutcomes = already.ExistingCollector.(*prometheus.CounterVec)
				case collisions:
					collisions = already.ExistingCollector.(*prometheus.CounterVec)
				case tasksActive:
					tasksActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		stepDuration: stepDuration,
		taskSteps:    taskSteps,
		taskOutcomes: taskOutcomes,
		collisions:   collisions,
		tasksActive:  tasksActive,
	}
}

// ObserveStepDuration records the wall time of one step round trip.
func (m *Metrics) ObserveStepDuration(d time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.Observe(d.Seconds())
}

// ObserveTaskSteps records the step count a finished task consumed.
func (m *Metrics) ObserveTaskSteps(task string, steps int) {
	if m == nil || m.taskSteps == nil {
		return
	}
	m.taskSteps.WithLabelValues(task).Observe(float64(steps))
}

// IncTaskOutcome counts one finished task by terminal status.
func (m *Metrics) IncTaskOutcome(task, status string) {
	if m == nil || m.taskOutcomes == nil {
		return
	}
	m.taskOutcomes.WithLabelValues(task, status).Inc()
}

// IncCollision counts one observed collision by kind.
func (m *Metrics) IncCollision(kind string) {
	if m == nil || m.collisions == nil {
		return
	}
	m.collisions.WithLabelValues(kind).Inc()
}

// IncActiveTasks marks a task as running.
func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

// DecActiveTasks marks a task as finished.
func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}
