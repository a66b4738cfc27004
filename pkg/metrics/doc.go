// Package metrics provides Prometheus instrumentation for greenpool components.
//
// Two families are exported:
//   - greenpool_taskpool_*: slot counts, running units, job outcomes
//     (completed, failed, terminated, timed out), job duration and resizes
//   - greenpool_timer_*: entries scheduled, fired, cancelled and pending
//
// Enable metrics through the metrics-aware constructors:
//
//	pool, _ := taskpool.NewWithMetrics(taskpool.Config{Concurrency: 8}, "default", metrics.DefaultConfig())
//
// Then expose them over HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// Use a dedicated prometheus.Registry in tests so collectors do not collide
// with the process-wide default registerer.
package metrics
