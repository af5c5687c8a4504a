// ABOUTME: Prometheus metrics for the decode pipeline
// ABOUTME: Counts decode steps, delivered frames and track outcomes, and tracks buffer fill
package stream

import (
	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	decodeCalls *prometheus.CounterVec
	frames      *prometheus.CounterVec
	tracks      *prometheus.CounterVec
	bufferFill  *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decodeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendspin_decode_calls_total",
				Help: "Total number of codec decode steps by result",
			},
			[]string{"result"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendspin_decode_frames_total",
				Help: "Total number of decoded frames by disposition",
			},
			[]string{"disposition"},
		),
		tracks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendspin_tracks_total",
				Help: "Total number of tracks by codec and outcome",
			},
			[]string{"codec", "outcome"},
		),
		bufferFill: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sendspin_buffer_fill_ratio",
				Help: "Fraction of ring buffer capacity in use",
			},
			[]string{"buffer"},
		),
	}
	m.collectors = []prometheus.Collector{m.decodeCalls, m.frames, m.tracks, m.bufferFill}

	if err := reg.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *Metrics) decodeStep(res decode.Result) {
	if m == nil {
		return
	}
	m.decodeCalls.WithLabelValues(res.String()).Inc()
}

func (m *Metrics) addStats(delta decode.Stats) {
	if m == nil {
		return
	}
	if delta.Frames > 0 {
		m.frames.WithLabelValues("delivered").Add(float64(delta.Frames))
	}
	if delta.Overflowed > 0 {
		m.frames.WithLabelValues("overflowed").Add(float64(delta.Overflowed))
	}
	if delta.Dropped > 0 {
		m.frames.WithLabelValues("dropped").Add(float64(delta.Dropped))
	}
	if delta.Truncated > 0 {
		m.frames.WithLabelValues("truncated").Add(float64(delta.Truncated))
	}
}

func (m *Metrics) track(codec, outcome string) {
	if m == nil {
		return
	}
	m.tracks.WithLabelValues(codec, outcome).Inc()
}

func (m *Metrics) fill(buffer string, used, capacity int) {
	if m == nil || capacity == 0 {
		return
	}
	m.bufferFill.WithLabelValues(buffer).Set(float64(used) / float64(capacity))
}
