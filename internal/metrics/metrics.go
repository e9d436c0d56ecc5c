// Package metrics exposes capture activity as prometheus metrics.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "logrecorder"

// Metrics implements capture.Observer and capture.SessionObserver on a
// private registry.
type Metrics struct {
	registry       *prometheus.Registry
	RecordsPushed  prometheus.Counter
	BytesPushed    prometheus.Counter
	RecordsEvicted prometheus.Counter
	BufferedSize   prometheus.Gauge
	ActiveSessions prometheus.Gauge
}

func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RecordsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_pushed_total",
			Help:      "Records pushed into capture buffers",
		}),
		BytesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushed_size_total",
			Help:      "Summed size of pushed records, in buffer cost units",
		}),
		RecordsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_evicted_total",
			Help:      "Records evicted to keep buffers within their limit",
		}),
		BufferedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_size",
			Help:      "Size currently held by active capture buffers",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active capture sessions",
		}),
	}
	r.MustRegister(m.RecordsPushed, m.BytesPushed, m.RecordsEvicted, m.BufferedSize, m.ActiveSessions)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Pushed(size int64) {
	m.RecordsPushed.Inc()
	m.BytesPushed.Add(float64(size))
	m.BufferedSize.Add(float64(size))
}

func (m *Metrics) Evicted(n int, size int64) {
	m.RecordsEvicted.Add(float64(n))
	m.BufferedSize.Sub(float64(size))
}

func (m *Metrics) Discarded(_ int, size int64) {
	m.BufferedSize.Sub(float64(size))
}

func (m *Metrics) SessionStarted() { m.ActiveSessions.Inc() }
func (m *Metrics) SessionStopped() { m.ActiveSessions.Dec() }

// WriteText writes every metric in the prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
