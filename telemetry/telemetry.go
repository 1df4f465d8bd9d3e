package telemetry

import (
	"net/http"
	"strconv"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "mongoriver"

var registry *prometheus.Registry

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
	SetToCurrentTime()
}

// Vec types for labeled metrics
type CounterVec interface {
	With(labels ...string) Counter
}

type HistogramVec interface {
	With(labels ...string) Histogram
}

// NoopStat stands in for every metric while Prometheus is disabled.
type NoopStat struct{}

func (n NoopStat) Observe(float64)   {}
func (n NoopStat) Set(float64)       {}
func (n NoopStat) Inc()              {}
func (n NoopStat) Dec()              {}
func (n NoopStat) Add(float64)       {}
func (n NoopStat) Sub(float64)       {}
func (n NoopStat) SetToCurrentTime() {}

type noopCounterVec struct{}
type noopHistogramVec struct{}

func (noopCounterVec) With(...string) Counter     { return NoopStat{} }
func (noopHistogramVec) With(...string) Histogram { return NoopStat{} }

type counterVec struct{ vec *prometheus.CounterVec }

func (c counterVec) With(labelValues ...string) Counter {
	return c.vec.WithLabelValues(labelValues...)
}

type histogramVec struct{ vec *prometheus.HistogramVec }

func (h histogramVec) With(labelValues ...string) Histogram {
	return h.vec.WithLabelValues(labelValues...)
}

// opts carries the fields shared by every metric: namespace, node_id label
func opts(name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"node_id": strconv.FormatUint(cfg.Config.NodeID, 10)},
	}
}

func histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	o := opts(name, help)
	return prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Name:        o.Name,
		Help:        o.Help,
		ConstLabels: o.ConstLabels,
		Buckets:     buckets,
	}
}

func NewGauge(name string, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	ret := prometheus.NewGauge(prometheus.GaugeOpts(opts(name, help)))
	registry.MustRegister(ret)
	return ret
}

// NewHistogram uses the Prometheus default buckets.
func NewHistogram(name string, help string) Histogram {
	return NewHistogramWithBuckets(name, help, nil)
}

func NewHistogramWithBuckets(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	ret := prometheus.NewHistogram(histogramOpts(name, help, buckets))
	registry.MustRegister(ret)
	return ret
}

func NewCounterVec(name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	ret := prometheus.NewCounterVec(prometheus.CounterOpts(opts(name, help)), labels)
	registry.MustRegister(ret)
	return counterVec{vec: ret}
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) HistogramVec {
	if registry == nil {
		return noopHistogramVec{}
	}
	ret := prometheus.NewHistogramVec(histogramOpts(name, help, buckets), labels)
	registry.MustRegister(ret)
	return histogramVec{vec: ret}
}

// InitializeTelemetry creates the registry when Prometheus is enabled. It
// must run before InitMetrics.
func InitializeTelemetry() {
	if !cfg.Config.Prometheus.Enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	log.Info().Msg("Prometheus metrics enabled, served by the admin server at /metrics")
}

// Enabled reports whether a Prometheus registry is active.
func Enabled() bool {
	return registry != nil
}

// GetMetricsHandler returns nil when Prometheus is disabled.
func GetMetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
