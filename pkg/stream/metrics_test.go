// ABOUTME: Tests for the pipeline metrics
// ABOUTME: Checks counters against a decoded track and duplicate registration
package stream

import (
	"testing"

	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsFollowTrack(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	s, err := New(Config{Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	writeAll(t, s, pcm16(3000))
	s.SetConnState(decode.Disconnected)
	_, err = s.StartTrack("audio/pcm", decode.Hint{SampleSize: 16, Channels: 2}, false)
	require.NoError(t, err)
	stepUntilIdle(t, s)

	assert.Equal(t, 3000.0, testutil.ToFloat64(m.frames.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeCalls.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tracks.WithLabelValues("pcm", "started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tracks.WithLabelValues("pcm", "complete")))
	assert.InDelta(t, 3000.0/DefaultOutputFrames, testutil.ToFloat64(m.bufferFill.WithLabelValues("output")), 1e-9)
}

func TestMetricsCountFailures(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	s, err := New(Config{Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.StartTrack("application/octet-stream", decode.Hint{}, false)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tracks.WithLabelValues("unknown", "failed")))
}

func TestMetricsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.decodeStep(decode.Running)
		m.addStats(decode.Stats{Frames: 1})
		m.track("pcm", "started")
		m.fill("input", 1, 2)
	})
}
