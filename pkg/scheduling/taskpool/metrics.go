package taskpool

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/greenpool/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry *metrics.Registry

	mu      sync.RWMutex
	enabled bool
}

var _ Pool = (*MetricsPool)(nil)
var _ metrics.Instrumentable = (*MetricsPool)(nil)

// NewWithMetrics creates a task pool whose metrics go to a private registry.
func NewWithMetrics(cfg Config) (*MetricsPool, error) {
	return NewWithConfigAndMetrics(cfg, metrics.Config{
		Enabled:  true,
		Registry: prometheus.NewRegistry(),
	})
}

// NewWithConfigAndMetrics creates a task pool instrumented per metricsConfig.
func NewWithConfigAndMetrics(cfg Config, metricsConfig metrics.Config) (*MetricsPool, error) {
	base, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return Instrument(base, base.name, metricsConfig.Build()), nil
}

// Instrument wraps pool with metrics labelled name. A nil registry leaves
// metrics disabled until EnableMetrics is called.
func Instrument(pool Pool, name string, reg *metrics.Registry) *MetricsPool {
	mp := &MetricsPool{pool: pool, name: name, registry: reg, enabled: reg != nil}
	mp.updateMetrics()
	return mp
}

func (mp *MetricsPool) active() (*metrics.Registry, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.registry, mp.enabled && mp.registry != nil
}

// updateMetrics refreshes the capacity gauges.
func (mp *MetricsPool) updateMetrics() {
	reg, ok := mp.active()
	if !ok {
		return
	}
	st := mp.pool.Stats()
	reg.PoolSize.WithLabelValues(mp.name).Set(float64(st.Size))
	reg.PoolFreeSlots.WithLabelValues(mp.name).Set(float64(st.Free))
	reg.PoolRunning.WithLabelValues(mp.name).Set(float64(st.Running))
}

// OnStart allocates the underlying pool.
func (mp *MetricsPool) OnStart() error {
	err := mp.pool.OnStart()
	mp.updateMetrics()
	return err
}

// OnStop stops the underlying pool.
func (mp *MetricsPool) OnStop(ctx context.Context) error {
	err := mp.pool.OnStop(ctx)
	mp.updateMetrics()
	return err
}

// OnApply wraps the request's callbacks to record outcomes and durations.
func (mp *MetricsPool) OnApply(ctx context.Context, req ApplyRequest) (*Job, error) {
	reg, ok := mp.active()
	if !ok {
		return mp.pool.OnApply(ctx, req)
	}

	var started time.Time
	var startMu sync.Mutex
	accept := req.AcceptCallback
	req.AcceptCallback = func(pid int, t time.Time) {
		startMu.Lock()
		started = t
		startMu.Unlock()
		if accept != nil {
			accept(pid, t)
		}
	}
	observe := func() {
		startMu.Lock()
		s := started
		startMu.Unlock()
		if !s.IsZero() {
			reg.JobDuration.WithLabelValues(mp.name).Observe(time.Since(s).Seconds())
		}
	}

	callback := req.Callback
	req.Callback = func(r Reply) {
		observe()
		switch {
		case !r.Completed && r.Err == nil:
			reg.JobsTerminated.WithLabelValues(mp.name).Inc()
		case r.Err != nil:
			reg.JobsFailed.WithLabelValues(mp.name).Inc()
		default:
			reg.JobsCompleted.WithLabelValues(mp.name).Inc()
		}
		if callback != nil {
			callback(r)
		}
		mp.updateMetrics()
	}

	timeoutCallback := req.TimeoutCallback
	req.TimeoutCallback = func(completed bool, timeout time.Duration) {
		observe()
		reg.JobsTimedOut.WithLabelValues(mp.name).Inc()
		if timeoutCallback != nil {
			timeoutCallback(completed, timeout)
		}
		mp.updateMetrics()
	}

	job, err := mp.pool.OnApply(ctx, req)
	if err == nil {
		reg.JobsApplied.WithLabelValues(mp.name).Inc()
	}
	mp.updateMetrics()
	return job, err
}

// Grow grows the underlying pool.
func (mp *MetricsPool) Grow(n int) error {
	err := mp.pool.Grow(n)
	if reg, ok := mp.active(); ok && err == nil {
		reg.PoolResizes.WithLabelValues(mp.name, "grow").Inc()
	}
	mp.updateMetrics()
	return err
}

// Shrink shrinks the underlying pool.
func (mp *MetricsPool) Shrink(n int) error {
	err := mp.pool.Shrink(n)
	if reg, ok := mp.active(); ok && err == nil {
		reg.PoolResizes.WithLabelValues(mp.name, "shrink").Inc()
	}
	mp.updateMetrics()
	return err
}

// NumProcesses returns the number of running units.
func (mp *MetricsPool) NumProcesses() int {
	n := mp.pool.NumProcesses()
	if reg, ok := mp.active(); ok {
		reg.PoolRunning.WithLabelValues(mp.name).Set(float64(n))
	}
	return n
}

// TerminateJob terminates a job in the underlying pool.
func (mp *MetricsPool) TerminateJob(jobID string, sig os.Signal) {
	mp.pool.TerminateJob(jobID, sig)
}

// Stats returns the underlying pool's stats.
func (mp *MetricsPool) Stats() Stats {
	return mp.pool.Stats()
}

// Jobs returns the underlying pool's job ids.
func (mp *MetricsPool) Jobs() []string {
	return mp.pool.Jobs()
}

// Registry returns the metrics registry in use, or nil.
func (mp *MetricsPool) Registry() *metrics.Registry {
	reg, _ := mp.active()
	return reg
}

// EnableMetrics enables metrics collection.
func (mp *MetricsPool) EnableMetrics(config metrics.Config) error {
	reg := config.Build()
	mp.mu.Lock()
	mp.enabled = config.Enabled
	if reg != nil {
		mp.registry = reg
	}
	mp.mu.Unlock()

	mp.updateMetrics()
	return nil
}

// DisableMetrics disables metrics collection.
func (mp *MetricsPool) DisableMetrics() {
	mp.mu.Lock()
	mp.enabled = false
	mp.mu.Unlock()
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mp *MetricsPool) MetricsEnabled() bool {
	_, ok := mp.active()
	return ok
}
