// Package metrics exposes the small set of Prometheus counters and gauges
// that matter for a supervisor/fuse-server/publisher daemon: how many
// restart iterations have run, how many mounts are currently published, and
// how many read errors the synthetic filesystem has served back to callers.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the daemon's Prometheus metrics and an optional HTTP
// exposition server.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	Iterations     *prometheus.CounterVec
	Restarts       prometheus.Counter
	MountsActive   prometheus.Gauge
	ReadErrors     *prometheus.CounterVec
	CircuitOpens   prometheus.Counter

	server      *http.Server
	healthCheck func() (healthy bool, detail string)
}

// SetHealthCheck installs the function /health consults to decide its
// status code. fn should return whether the system is at least degraded
// (still serving) along with a short detail string for the body.
func (c *Collector) SetHealthCheck(fn func() (healthy bool, detail string)) {
	c.healthCheck = fn
}

// Config configures the metrics HTTP exposition endpoint.
type Config struct {
	Enabled bool
	Port    int
	Path    string
}

// DefaultConfig returns the default exposition settings.
func DefaultConfig() *Config {
	return &Config{Enabled: true, Port: 9090, Path: "/metrics"}
}

// NewCollector builds and registers the daemon's metrics against a fresh
// registry.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:   config,
		registry: registry,
		Iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fpatch",
			Name:      "supervisor_iterations_total",
			Help:      "Supervisor loop iterations, labeled by outcome.",
		}, []string{"outcome"}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fpatch",
			Name:      "supervisor_restarts_total",
			Help:      "Times the supervisor restarted the FuseServer/Publisher pair.",
		}),
		MountsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fpatch",
			Name:      "mounts_active",
			Help:      "Number of target paths currently carrying a published patch mount.",
		}),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fpatch",
			Name:      "read_errors_total",
			Help:      "Read errors served by the synthetic filesystem, labeled by error code.",
		}, []string{"code"}),
		CircuitOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fpatch",
			Name:      "circuit_opens_total",
			Help:      "Times the restart circuit breaker tripped open.",
		}),
	}

	collectors := []prometheus.Collector{c.Iterations, c.Restarts, c.MountsActive, c.ReadErrors, c.CircuitOpens}
	for _, col := range collectors {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return c, nil
}

// Start serves /metrics (and a trivial /health) on the configured port until
// ctx is canceled. It is a no-op if metrics are disabled.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if c.healthCheck == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		healthy, detail := c.healthCheck()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write([]byte(detail))
	})

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts down the exposition server, if running.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
