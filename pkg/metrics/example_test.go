package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	registry.JobsApplied.WithLabelValues("default").Add(3)
	registry.JobsTerminated.WithLabelValues("default").Inc()

	fmt.Println(testutil.ToFloat64(registry.JobsApplied.WithLabelValues("default")))
	fmt.Println(testutil.ToFloat64(registry.JobsTerminated.WithLabelValues("default")))

	// Output:
	// 3
	// 1
}

// Example_disabled shows that a disabled config yields no registry.
func Example_disabled() {
	cfg := Config{Enabled: false}
	fmt.Println(cfg.Build() == nil)

	cfg = Config{Enabled: true, Registry: prometheus.NewRegistry(), Namespace: "custom"}
	fmt.Println(cfg.Build() != nil)

	// Output:
	// true
	// true
}
