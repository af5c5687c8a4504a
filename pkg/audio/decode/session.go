// ABOUTME: Decode session shared between transport, decoder and orchestrator
// ABOUTME: Holds the two ring buffers, connection state and the new-track flag
package decode

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

// ConnState is the transport's view of the current stream.
type ConnState int32

const (
	Stopped ConnState = iota
	Connecting
	Streaming
	Disconnected
)

func (c ConnState) String() string {
	switch c {
	case Stopped:
		return "stopped"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("conn(%d)", int32(c))
	}
}

// Session is the state a codec works against: the input byte buffer filled
// by the transport, the output frame buffer drained by the renderer, and the
// flags coordinating them.
type Session struct {
	In  *ring.Buffer[byte]
	Out *ring.Frames

	// Debug enables per-step trace logging.
	Debug bool

	conn atomic.Int32

	// Guarded by Out's lock.
	newStream bool
	fadeIn    bool

	onTrackStart func(audio.Format)
}

// NewSession allocates a session with the given buffer capacities.
func NewSession(inputBytes, outputFrames int) *Session {
	return &Session{
		In:  ring.NewBytes(inputBytes),
		Out: ring.NewFrames(outputFrames),
	}
}

// SetConnState records the transport state. Safe for concurrent use.
func (s *Session) SetConnState(c ConnState) {
	s.conn.Store(int32(c))
}

// ConnState returns the transport state.
func (s *Session) ConnState() ConnState {
	return ConnState(s.conn.Load())
}

// Streaming reports whether the transport may still deliver input.
func (s *Session) Streaming() bool {
	c := s.ConnState()
	return c == Streaming || c == Connecting
}

// Drained reports whether the transport is done and no input remains.
func (s *Session) Drained() bool {
	if s.Streaming() {
		return false
	}
	s.In.Lock()
	defer s.In.Unlock()
	return s.In.Used() == 0
}

// BeginTrack arms the track-start handshake. The next codec to produce audio
// records the output write position as the start of the track.
func (s *Session) BeginTrack(fadeIn bool) {
	s.Out.Lock()
	s.newStream = true
	s.fadeIn = fadeIn
	s.Out.Unlock()
}

// OnTrackStart registers a callback run after the track-start marker is placed.
// It must be set before decoding starts.
func (s *Session) OnTrackStart(fn func(audio.Format)) {
	s.onTrackStart = fn
}

// markTrackStart performs the handshake if armed. The caller must hold Out's
// lock; it reports whether the marker was placed so the caller can publish
// the start after unlocking.
func (s *Session) markTrackStart(format audio.Format) bool {
	if !s.newStream {
		return false
	}
	s.Out.MarkTrackStart(format, s.fadeIn)
	s.newStream = false
	return true
}

func (s *Session) trackStarted(format audio.Format) {
	log.Printf("Track started: %s", format)
	if s.onTrackStart != nil {
		s.onTrackStart(format)
	}
}

func (s *Session) debugf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf(format, args...)
	}
}
