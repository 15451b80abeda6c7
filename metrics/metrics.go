package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks scan results, reader exchange latency and reader state.
// A nil *Metrics records nothing.
type Metrics struct {
	Scans     *prometheus.CounterVec
	Exchange  prometheus.Histogram
	Connected prometheus.Gauge
}

// New registers the badgedesk metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badgedesk_scans_total",
			Help: "Scan requests by result",
		}, []string{"result"}),
		Exchange: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "badgedesk_reader_exchange_seconds",
			Help:    "Duration of one request/response exchange with the reader",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "badgedesk_reader_connected",
			Help: "1 while a reader session is open",
		}),
	}
}

// ScanResult counts one scan request.
func (m *Metrics) ScanResult(result string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(result).Inc()
}

// ExchangeDuration records the time spent talking to the reader.
func (m *Metrics) ExchangeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.Exchange.Observe(d.Seconds())
}

// SetReaderConnected sets the reader gauge.
func (m *Metrics) SetReaderConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}
