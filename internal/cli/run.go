package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/greenpool/pkg/config"
	"github.com/vnykmshr/greenpool/pkg/control"
	"github.com/vnykmshr/greenpool/pkg/metrics"
	"github.com/vnykmshr/greenpool/pkg/scheduling/taskpool"
	"github.com/vnykmshr/greenpool/pkg/scheduling/timer"
)

type runOptions struct {
	concurrency   int
	timeout       time.Duration
	metricsAddr   string
	noMetrics     bool
	redisAddr     string
	statsInterval time.Duration
	demoJobs      int
	demoDuration  time.Duration
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a task pool with metrics and a revoke listener",
		Long: `Starts a task pool sized from the config file, serves Prometheus
metrics, and listens for revokes on Redis when control.redis_addr is set.
The pool drains on SIGINT or SIGTERM, killing jobs still running after
pool.stop_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			ro.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, ro, opts.logger(cfg))
		},
	}

	cmd.Flags().IntVar(&ro.concurrency, "concurrency", 0, "Pool size (default from config)")
	cmd.Flags().DurationVar(&ro.timeout, "timeout", 0, "Default job timeout (default from config)")
	cmd.Flags().StringVar(&ro.metricsAddr, "metrics-addr", "", "Metrics listen address (default from config)")
	cmd.Flags().BoolVar(&ro.noMetrics, "no-metrics", false, "Disable the metrics endpoint")
	cmd.Flags().StringVar(&ro.redisAddr, "redis-addr", "", "Redis address for revokes (default from config)")
	cmd.Flags().DurationVar(&ro.statsInterval, "stats-interval", time.Minute, "How often to log pool stats")
	cmd.Flags().IntVar(&ro.demoJobs, "demo-jobs", 0, "Apply this many sleeping jobs named demo-N")
	cmd.Flags().DurationVar(&ro.demoDuration, "demo-duration", 10*time.Second, "How long each demo job sleeps")

	return cmd
}

// apply overlays flags the user set on cfg.
func (ro *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Pool.Concurrency = ro.concurrency
	}
	if flags.Changed("timeout") {
		cfg.Pool.Timeout = ro.timeout
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = ro.metricsAddr
	}
	if ro.noMetrics {
		cfg.Metrics.Enabled = false
	}
	if flags.Changed("redis-addr") {
		cfg.Control.RedisAddr = ro.redisAddr
	}
}

func serve(ctx context.Context, cfg config.Config, ro *runOptions, logger *slog.Logger) error {
	var reg *metrics.Registry
	var srv *http.Server
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg = metrics.NewRegistryWithNamespace(promReg, cfg.Metrics.Namespace)

		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", cfg.Metrics.Addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}))
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	poolCfg := cfg.TaskPool()
	poolCfg.Logger = logger
	base, err := taskpool.New(poolCfg)
	if err != nil {
		return err
	}
	pool := taskpool.Instrument(base, cfg.Pool.Name, reg)
	if err := pool.OnStart(); err != nil {
		return err
	}

	tm := timer.NewWithConfig(timer.Config{Name: cfg.Pool.Name, Logger: logger, Metrics: reg})
	if ro.statsInterval > 0 {
		if _, err := tm.CallRepeatedly(ro.statsInterval, func(ctx context.Context, args ...any) error {
			st := pool.Stats()
			logger.Info("pool stats", "size", st.Size, "free", st.Free, "running", st.Running, "jobs", st.Jobs)
			return nil
		}); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	if cfg.Control.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Control.RedisAddr,
			Password: cfg.Control.RedisPassword,
			DB:       cfg.Control.RedisDB,
		})
		defer rdb.Close()

		listener, err := control.NewListener(control.Config{
			Redis:      rdb,
			Channel:    cfg.Control.Channel,
			Terminator: pool,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil {
				logger.Error("revoke listener failed", "error", err)
			}
		}()
	}

	if ro.demoJobs > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applyDemoJobs(ctx, pool, ro.demoJobs, ro.demoDuration, logger)
		}()
	}

	logger.Info("greenpool running", "pool", cfg.Pool.Name, "concurrency", cfg.Pool.Concurrency, "timeout", cfg.Pool.Timeout)
	<-ctx.Done()
	logger.Info("shutting down")

	tm.Stop()
	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Pool.StopTimeout)
	defer cancel()
	stopErr := pool.OnStop(stopCtx)
	if stopErr != nil {
		logger.Warn("pool did not drain in time", "error", stopErr)
	}

	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}

func applyDemoJobs(ctx context.Context, pool taskpool.Pool, n int, d time.Duration, logger *slog.Logger) {
	sleep := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		select {
		case <-time.After(args[0].(time.Duration)):
			return "slept", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("demo-%d", i)
		_, err := pool.OnApply(ctx, taskpool.ApplyRequest{
			JobID:  id,
			Target: sleep,
			Args:   []any{d},
			Callback: func(r taskpool.Reply) {
				logger.Info("demo job replied", "job_id", id, "completed", r.Completed, "value", r.Value, "error", r.Err)
			},
			TimeoutCallback: func(_ bool, timeout time.Duration) {
				logger.Info("demo job timed out", "job_id", id, "timeout", timeout)
			},
		})
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("demo job not applied", "job_id", id, "error", err)
			}
			return
		}
	}
}
