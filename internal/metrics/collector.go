// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes lifecycle metrics of the control plane in Prometheus format.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
)

const DefaultNamespace = "wlanhost"

type Collector struct {
	registry *prometheus.Registry
	server   *http.Server
	logger   *zerolog.Logger

	moduleState      *prometheus.GaugeVec
	adapters         prometheus.Gauge
	activeAdapters   prometheus.Gauge
	transactions     *prometheus.CounterVec
	gateWait         *prometheus.HistogramVec
	bringUps         *prometheus.CounterVec
	idleShutdowns    *prometheus.CounterVec
	forcedRecoveries prometheus.Counter
	referenceLeaks   prometheus.Counter
	destroys         *prometheus.HistogramVec
}

type Option func(*Collector)

func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCollector(namespace string, opts ...Option) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logx.As(),
		moduleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "module_state",
			Help:      "1 for the current module state, 0 otherwise",
		}, []string{"state"}),
		adapters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adapters",
			Help:      "Number of registered adapters",
		}),
		activeAdapters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adapters_active",
			Help:      "Number of adapters with an opened interface",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_transactions_total",
			Help:      "Admitted gate transactions",
		}, []string{"scope", "kind"}),
		gateWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for gate admission",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"scope", "kind"}),
		bringUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_bringups_total",
			Help:      "Module bring-up attempts by result and failed stage",
		}, []string{"result", "stage"}),
		idleShutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_shutdowns_total",
			Help:      "Idle timer expiries by outcome",
		}, []string{"outcome"}),
		forcedRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_recoveries_total",
			Help:      "Forced recovery escalations",
		}),
		referenceLeaks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_leaks_total",
			Help:      "Adapters retired with outstanding references",
		}),
		destroys: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vdev_destroy_seconds",
			Help:      "Duration of vdev destroy by result",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}

	for _, opt := range opts {
		opt(c)
	}

	for _, m := range []prometheus.Collector{
		c.moduleState, c.adapters, c.activeAdapters, c.transactions, c.gateWait,
		c.bringUps, c.idleShutdowns, c.forcedRecoveries, c.referenceLeaks, c.destroys,
	} {
		if err := c.registry.Register(m); err != nil {
			return nil, errorx.InternalError.Wrap(err, "failed to register metric")
		}
	}

	return c, nil
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes the metrics on address until ctx is done.
func (c *Collector) Serve(ctx context.Context, address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	c.server = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error().Err(err).Str("address", address).Msg("Metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(shutdownCtx)
	}()

	c.logger.Info().Str("address", address).Msg("Serving metrics")
}

func (c *Collector) SetModuleState(s core.ModuleState) {
	if c == nil {
		return
	}
	for _, st := range []core.ModuleState{core.StateUninitialized, core.StateClosed, core.StateEnabled} {
		v := 0.0
		if st == s {
			v = 1
		}
		c.moduleState.WithLabelValues(st.String()).Set(v)
	}
}

func (c *Collector) SetAdapters(total, active int) {
	if c == nil {
		return
	}
	c.adapters.Set(float64(total))
	c.activeAdapters.Set(float64(active))
}

func (c *Collector) ObserveTransaction(scope, kind string, waited time.Duration) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(scope, kind).Inc()
	c.gateWait.WithLabelValues(scope, kind).Observe(waited.Seconds())
}

// ObserveBringUp records a bring-up attempt. stage is empty on success.
func (c *Collector) ObserveBringUp(stage string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.bringUps.WithLabelValues(result, stage).Inc()
}

func (c *Collector) ObserveIdleShutdown(outcome string) {
	if c == nil {
		return
	}
	c.idleShutdowns.WithLabelValues(outcome).Inc()
}

func (c *Collector) IncForcedRecovery() {
	if c == nil {
		return
	}
	c.forcedRecoveries.Inc()
}

func (c *Collector) IncReferenceLeak() {
	if c == nil {
		return
	}
	c.referenceLeaks.Inc()
}

func (c *Collector) ObserveDestroy(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.destroys.WithLabelValues(result).Observe(d.Seconds())
}
