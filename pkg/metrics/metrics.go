// Package metrics provides Prometheus instrumentation for greenpool components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for greenpool components.
type Registry struct {
	// Task Pool Metrics
	PoolSize       *prometheus.GaugeVec
	PoolFreeSlots  *prometheus.GaugeVec
	PoolRunning    *prometheus.GaugeVec
	JobsApplied    *prometheus.CounterVec
	JobsCompleted  *prometheus.CounterVec
	JobsFailed     *prometheus.CounterVec
	JobsTerminated *prometheus.CounterVec
	JobsTimedOut   *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	PoolResizes    *prometheus.CounterVec

	// Timer Metrics
	TimerEntered   *prometheus.CounterVec
	TimerFired     *prometheus.CounterVec
	TimerCancelled *prometheus.CounterVec
	TimerPending   *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by greenpool components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, DefaultNamespace)
}

// NewRegistryWithNamespace is NewRegistry with a custom metric namespace.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "size",
				Help:      "Configured number of execution slots",
			},
			[]string{"pool_name"},
		),

		PoolFreeSlots: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "free_slots",
				Help:      "Execution slots currently free (negative after shrinking below usage)",
			},
			[]string{"pool_name"},
		),

		PoolRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "running_units",
				Help:      "Units currently tracked by the pool",
			},
			[]string{"pool_name"},
		),

		JobsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "jobs_applied_total",
				Help:      "Total number of jobs applied to the pool",
			},
			[]string{"pool_name"},
		),

		JobsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs that returned without error",
			},
			[]string{"pool_name"},
		),

		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "jobs_failed_total",
				Help:      "Total number of jobs that returned an error",
			},
			[]string{"pool_name"},
		),

		JobsTerminated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "jobs_terminated_total",
				Help:      "Total number of jobs interrupted by a kill",
			},
			[]string{"pool_name"},
		),

		JobsTimedOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "jobs_timed_out_total",
				Help:      "Total number of jobs that exceeded their time limit",
			},
			[]string{"pool_name"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "job_duration_seconds",
				Help:      "Time spent executing jobs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		PoolResizes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "taskpool",
				Name:      "resizes_total",
				Help:      "Total number of grow and shrink operations",
			},
			[]string{"pool_name", "direction"},
		),

		TimerEntered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timer",
				Name:      "entries_total",
				Help:      "Total number of timer entries scheduled",
			},
			[]string{"timer_name"},
		),

		TimerFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timer",
				Name:      "fired_total",
				Help:      "Total number of timer entries that ran",
			},
			[]string{"timer_name"},
		),

		TimerCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timer",
				Name:      "cancelled_total",
				Help:      "Total number of timer entries cancelled before running",
			},
			[]string{"timer_name"},
		),

		TimerPending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "timer",
				Name:      "pending",
				Help:      "Timer entries waiting to run",
			},
			[]string{"timer_name"},
		),
	}
}
