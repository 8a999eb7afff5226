package observability

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the Prometheus collectors of the optimizer.
type Metrics struct {
	registry *prometheus.Registry

	admissionTotal     *prometheus.CounterVec
	configurationTotal *prometheus.CounterVec
	mergedModules      prometheus.Gauge
	passDuration       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on a private
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoist_concat_admission_total",
				Help: "Candidate admission attempts by outcome.",
			},
			[]string{"outcome"},
		),
		configurationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoist_concat_configurations_total",
				Help: "Concatenation configurations by result.",
			},
			[]string{"result"},
		),
		mergedModules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hoist_concat_merged_modules",
				Help: "Number of modules absorbed into merged modules in the last pass.",
			},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hoist_concat_pass_duration_seconds",
				Help:    "Time taken by an optimization pass.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	m.registry.MustRegister(
		m.admissionTotal,
		m.configurationTotal,
		m.mergedModules,
		m.passDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAdmission adds n admission attempts with the given outcome.
func (m *Metrics) ObserveAdmission(outcome string, n int) {
	if n <= 0 {
		return
	}
	m.admissionTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObservePass records the outcome of a pass.
func (m *Metrics) ObservePass(applied, empty, dropped, merged int, duration time.Duration) {
	m.configurationTotal.WithLabelValues("applied").Add(float64(applied))
	m.configurationTotal.WithLabelValues("empty").Add(float64(empty))
	m.configurationTotal.WithLabelValues("dropped").Add(float64(dropped))
	m.mergedModules.Set(float64(merged))
	m.passDuration.Observe(duration.Seconds())
}

// WriteText writes every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
