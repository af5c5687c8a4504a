// ABOUTME: Tests for the HTTP transport
// ABOUTME: Uses httptest servers with a recording sink and a real decode stream
package fetch

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
	"github.com/Sendspin/sendspin-core/pkg/stream"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type startCall struct {
	contentType string
	hint        decode.Hint
	fadeIn      bool
}

// recordingSink stores everything written to it in an unbounded view of a
// small ring, draining the ring on every wake.
type recordingSink struct {
	mu       sync.Mutex
	in       *ring.Buffer[byte]
	data     []byte
	states   []decode.ConnState
	starts   []startCall
	flushes  int
	waits    int
	startErr error
}

func newRecordingSink(size int) *recordingSink {
	return &recordingSink{in: ring.NewBytes(size)}
}

func (s *recordingSink) Input() *ring.Buffer[byte] { return s.in }

func (s *recordingSink) SetConnState(c decode.ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, c)
}

func (s *recordingSink) StartTrack(contentType string, hint decode.Hint, fadeIn bool) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, startCall{contentType, hint, fadeIn})
	if s.startErr != nil {
		return uuid.Nil, s.startErr
	}
	return uuid.New(), nil
}

func (s *recordingSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	s.data = nil
	s.in.Lock()
	s.in.Flush()
	s.in.Unlock()
}

func (s *recordingSink) WaitTrackEnd(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits++
	return nil
}

func (s *recordingSink) Wake() {
	buf := make([]byte, s.in.Cap())
	n := s.in.Read(buf)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, buf[:n]...)
}

func (s *recordingSink) snapshot() ([]byte, []decode.ConnState, []startCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...), append([]decode.ConnState(nil), s.states...), append([]startCall(nil), s.starts...)
}

func TestHTTPFeedsBodyAsOneTrack(t *testing.T) {
	defer goleak.VerifyNone(t)

	body := make([]byte, 20000)
	for i := range body {
		body[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/L16; rate=44100; channels=2")
		w.Write(body)
	}))
	defer srv.Close()

	sink := newRecordingSink(1024)
	h := &HTTP{URL: srv.URL, FadeIn: true, Client: srv.Client(), PollInterval: time.Millisecond}
	require.NoError(t, h.Run(context.Background(), sink))

	data, states, starts := sink.snapshot()
	assert.Equal(t, body, data)
	assert.Equal(t, []decode.ConnState{decode.Connecting, decode.Streaming, decode.Disconnected}, states)
	require.Len(t, starts, 1)
	assert.Equal(t, decode.Hint{SampleSize: 16, SampleRate: 44100, Channels: 2, BigEndian: true}, starts[0].hint)
	assert.True(t, starts[0].fadeIn)
}

func TestHTTPRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sink := newRecordingSink(64)
	err := (&HTTP{URL: srv.URL, Client: srv.Client()}).Run(context.Background(), sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, states, starts := sink.snapshot()
	assert.Empty(t, starts)
	assert.Equal(t, decode.Disconnected, states[len(states)-1])
}

func TestHTTPReportsUnknownCodec(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer srv.Close()

	sink := newRecordingSink(64)
	sink.startErr = decode.ErrUnknownCodec
	err := (&HTTP{URL: srv.URL, Client: srv.Client()}).Run(context.Background(), sink)
	assert.ErrorIs(t, err, decode.ErrUnknownCodec)
}

func TestHTTPStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/flac")
		w.Write([]byte("fLaC"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	// A sink that never drains keeps the fetcher waiting for space.
	sink := &stuckSink{recordingSink: newRecordingSink(2)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&HTTP{URL: srv.URL, Client: srv.Client(), PollInterval: time.Millisecond}).Run(ctx, sink) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fetcher did not stop")
	}
}

type stuckSink struct{ *recordingSink }

func (s *stuckSink) Wake() {}

func TestHintFromContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		hint        decode.Hint
		want        decode.Hint
	}{
		{"l16 params", "audio/L16;rate=48000;channels=1", decode.Hint{}, decode.Hint{SampleSize: 16, BigEndian: true, SampleRate: 48000, Channels: 1}},
		{"explicit hint wins", "audio/L16;rate=48000", decode.Hint{SampleSize: 24, SampleRate: 96000}, decode.Hint{SampleSize: 24, SampleRate: 96000}},
		{"flac untouched", "audio/flac", decode.Hint{}, decode.Hint{}},
		{"malformed", ";;", decode.Hint{Channels: 2}, decode.Hint{Channels: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hintFromContentType(tt.contentType, tt.hint))
		})
	}
}

func TestHTTPIntoStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	const frames = 6000
	body := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		binary.BigEndian.PutUint16(body[i*4:], uint16(int16(i)))
		binary.BigEndian.PutUint16(body[i*4+2:], uint16(int16(-i)))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/L16; rate=48000; channels=2")
		w.Write(body)
	}))
	defer srv.Close()

	s, err := stream.New(stream.Config{PollInterval: time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	require.NoError(t, (&HTTP{URL: srv.URL, Client: srv.Client(), PollInterval: time.Millisecond}).Run(ctx, s))

	var started, completed int
	got := make([]audio.Frame, 0, frames)
	buf := make([]audio.Frame, 1024)
	require.Eventually(t, func() bool {
		for {
			n, _ := s.Output().Read(buf)
			if n == 0 {
				break
			}
			got = append(got, buf[:n]...)
		}
		s.Wake()
		for {
			select {
			case ev := <-s.Events():
				switch ev.(type) {
				case stream.TrackStarted:
					started++
				case stream.TrackComplete:
					completed++
				}
				continue
			default:
			}
			break
		}
		return completed == 1 && len(got) == frames
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, 1, started)
	assert.Equal(t, audio.Frame{5 << 8, -5 << 8}, got[5])
	assert.Equal(t, stream.Complete, s.State())

	cancel()
	require.NoError(t, <-runDone)
}
