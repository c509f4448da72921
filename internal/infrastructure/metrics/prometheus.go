// Package metrics exports transition and recalculation metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"costledger/internal/core/apperror"
	"costledger/internal/core/entity"
	"costledger/internal/domain/documents"
	"costledger/internal/domain/registers/stock"
)

// Metric names.
const (
	MetricTransitionsTotal          = "costledger_transitions_total"
	MetricTransitionDurationSeconds = "costledger_transition_duration_seconds"
	MetricStockAnomaliesTotal       = "costledger_stock_anomalies_total"
	MetricRecalcGroupsDone          = "costledger_recalc_groups_done"
	MetricRecalcGroupsTotal         = "costledger_recalc_groups_total"
)

// Collector owns a private registry with the ledger metrics.
//
// Thread Safety: safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	transitions       *prometheus.CounterVec
	transitionSeconds *prometheus.HistogramVec
	anomalies         *prometheus.CounterVec
	recalcDone        prometheus.Gauge
	recalcTotal       prometheus.Gauge
}

var _ documents.Observer = (*Collector)(nil)

// NewCollector registers the metrics plus the Go and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTransitionsTotal,
			Help: "Document transitions by type, action and outcome.",
		}, []string{"doc_type", "action", "outcome"}),
		transitionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricTransitionDurationSeconds,
			Help:    "Duration of document transitions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"doc_type", "action"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStockAnomaliesTotal,
			Help: "Negative stock positions produced by approvals.",
		}, []string{"doc_type"}),
		recalcDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRecalcGroupsDone,
			Help: "Item groups written by the running recalculation.",
		}),
		recalcTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRecalcGroupsTotal,
			Help: "Item groups in the running recalculation.",
		}),
	}

	c.registry.MustRegister(
		c.transitions,
		c.transitionSeconds,
		c.anomalies,
		c.recalcDone,
		c.recalcTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// TransitionFinished implements documents.Observer.
func (c *Collector) TransitionFinished(docType entity.DocumentType, action entity.Action, elapsed time.Duration, err error) {
	c.transitions.WithLabelValues(string(docType), string(action), outcome(err)).Inc()
	c.transitionSeconds.WithLabelValues(string(docType), string(action)).Observe(elapsed.Seconds())
}

// AnomaliesRecorded implements documents.Observer.
func (c *Collector) AnomaliesRecorded(docType entity.DocumentType, count int) {
	if count > 0 {
		c.anomalies.WithLabelValues(string(docType)).Add(float64(count))
	}
}

// RecalcProgress returns a stock.ProgressFunc that drives the recalculation
// gauges and then calls next, which may be nil.
func (c *Collector) RecalcProgress(next stock.ProgressFunc) stock.ProgressFunc {
	return func(p stock.Progress) {
		c.recalcTotal.Set(float64(p.GroupsTotal))
		c.recalcDone.Set(float64(p.GroupsDone))
		if next != nil {
			next(p)
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return "error"
}
