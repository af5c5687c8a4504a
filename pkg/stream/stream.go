// ABOUTME: Stream orchestrator for the decode pipeline
// ABOUTME: Opens a codec per track, steps it when buffers allow and publishes track events
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/decode"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
	"github.com/google/uuid"
)

const (
	DefaultInputBytes   = 1 << 18
	DefaultOutputFrames = 1 << 15
	DefaultPollInterval = 5 * time.Millisecond

	eventBuffer = 16

	// A codec reporting Running without touching either buffer gets this
	// many consecutive steps before the loop waits.
	maxIdleSteps = 3
)

// ErrClosed is returned by operations on a closed stream.
var ErrClosed = errors.New("stream: closed")

// State is the decode loop state.
type State int32

const (
	Stopped State = iota
	Running
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds stream configuration. Zero fields take defaults.
type Config struct {
	InputBytes   int
	OutputFrames int
	Registry     *decode.Registry
	Metrics      *Metrics
	PollInterval time.Duration
	Debug        bool
}

// Stream owns the decode session and the codec of the current track.
type Stream struct {
	cfg      Config
	session  *decode.Session
	registry *decode.Registry
	metrics  *Metrics
	events   chan Event
	wake     chan struct{}
	done     chan struct{}

	mu     sync.Mutex
	state  State
	desc   decode.Descriptor
	codec  decode.Codec
	track  uuid.UUID
	stats  decode.Stats
	idle   int
	closed bool
}

// New creates a stream. The buffers must be large enough for every
// registered codec's minimum read and space requirements.
func New(cfg Config) (*Stream, error) {
	if cfg.InputBytes == 0 {
		cfg.InputBytes = DefaultInputBytes
	}
	if cfg.OutputFrames == 0 {
		cfg.OutputFrames = DefaultOutputFrames
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Registry == nil {
		cfg.Registry = decode.DefaultRegistry()
	}

	for _, d := range cfg.Registry.Descriptors() {
		if d.MinRead > cfg.InputBytes {
			return nil, fmt.Errorf("input buffer of %d bytes is below %s minimum read of %d", cfg.InputBytes, d.Name, d.MinRead)
		}
		if d.MinSpace > cfg.OutputFrames {
			return nil, fmt.Errorf("output buffer of %d frames is below %s minimum space of %d", cfg.OutputFrames, d.Name, d.MinSpace)
		}
	}

	s := &Stream{
		cfg:      cfg,
		session:  decode.NewSession(cfg.InputBytes, cfg.OutputFrames),
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		events:   make(chan Event, eventBuffer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.session.Debug = cfg.Debug
	s.session.OnTrackStart(s.trackStarted)
	return s, nil
}

// Input returns the buffer the transport writes compressed bytes to.
func (s *Stream) Input() *ring.Buffer[byte] { return s.session.In }

// Output returns the buffer the render stage reads frames from.
func (s *Stream) Output() *ring.Frames { return s.session.Out }

// Events returns the track event channel. It is closed by Close. Events are
// dropped when the channel is full.
func (s *Stream) Events() <-chan Event { return s.events }

// SetConnState records the transport state and wakes the loop.
func (s *Stream) SetConnState(c decode.ConnState) {
	s.session.SetConnState(c)
	s.Wake()
}

// ConnState returns the transport state.
func (s *Stream) ConnState() decode.ConnState { return s.session.ConnState() }

// State returns the loop state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wake prompts the loop to check the buffers again. Producers call it after
// writing input and consumers after draining output.
func (s *Stream) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// StartTrack opens the codec for contentType and starts a new track. A track
// still decoding is closed first and its unread input discarded. The returned ID identifies the track in
// events, including the TrackFailed event published when opening fails.
func (s *Stream) StartTrack(contentType string, hint decode.Hint, fadeIn bool) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return uuid.Nil, ErrClosed
	}
	if s.codec != nil {
		log.Printf("Replacing track %s", s.track)
		s.closeCodec()
		s.session.In.Lock()
		if n := s.session.In.Used(); n > 0 {
			log.Printf("Discarding %d unread bytes of track %s", n, s.track)
		}
		s.session.In.Flush()
		s.session.In.Unlock()
	}

	s.track = uuid.New()
	s.stats = decode.Stats{}
	s.idle = 0

	desc, err := s.registry.Lookup(contentType)
	if err != nil {
		s.desc = decode.Descriptor{Name: "unknown"}
		s.abort(err)
		return s.track, err
	}
	s.desc = desc

	codec := desc.New()
	s.session.BeginTrack(fadeIn)
	if err := codec.Open(s.session, hint); err != nil {
		err = fmt.Errorf("open %s: %w", desc.Name, err)
		s.abort(err)
		return s.track, err
	}

	s.codec = codec
	s.state = Running
	log.Printf("Track %s opened with %s codec", s.track, desc.Name)
	s.Wake()
	return s.track, nil
}

// WaitTrackEnd blocks until the current track has stopped decoding and the
// reader has reached its start marker. A transport that ended a track calls
// it before starting the next one so the new track neither replaces the
// marker nor inherits unread input.
func (s *Stream) WaitTrackEnd(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if s.trackEnded() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		case <-ticker.C:
		}
	}
}

func (s *Stream) trackEnded() bool {
	if s.State() == Running {
		return false
	}
	_, marked := s.session.Out.TrackStartMarker()
	return !marked
}

// Step performs at most one decode step. It reports whether another step may
// make progress right away; false means the loop should wait for input,
// output space or a new track.
func (s *Stream) Step() (decode.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != Running || !s.ready() {
		return decode.Running, false
	}

	inBefore, _ := s.session.In.Stats()
	outBefore, _ := s.session.Out.Stats()
	framesBefore := s.stats.Frames

	res := s.codec.Decode(s.session)
	s.metrics.decodeStep(res)
	s.collectStats()

	switch res {
	case decode.Complete:
		s.complete()
		return res, true
	case decode.Error:
		s.abort(s.codecErr())
		return res, true
	}

	inAfter, inCap := s.session.In.Stats()
	outAfter, outCap := s.session.Out.Stats()
	s.metrics.fill("input", inAfter, inCap)
	s.metrics.fill("output", outAfter, outCap)

	if inAfter != inBefore || outAfter != outBefore || s.stats.Frames != framesBefore {
		s.idle = 0
		return res, true
	}
	s.idle++
	return res, s.idle < maxIdleSteps
}

// Run steps the current track until ctx is cancelled or the stream is closed.
func (s *Stream) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		default:
		}

		if _, busy := s.Step(); busy {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// Flush stops the current track without an event, closes its codec and
// discards both buffers. The transport should be stopped first so no stale
// input arrives afterwards.
func (s *Stream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codec != nil {
		log.Printf("Flushing track %s", s.track)
		s.closeCodec()
	}
	s.state = Stopped

	s.session.In.Lock()
	s.session.In.Flush()
	s.session.In.Unlock()

	s.session.Out.Lock()
	s.session.Out.Flush()
	s.session.Out.Unlock()
}

// Close closes the current codec, stops Run and closes the event channel.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.codec != nil {
		s.closeCodec()
	}
	s.state = Stopped
	close(s.done)
	close(s.events)
}

// ready reports whether the codec's buffering thresholds are met. The
// minimum read is waived once the transport stops so the tail can drain.
func (s *Stream) ready() bool {
	used, _ := s.session.In.Stats()
	if used < s.desc.MinRead && s.session.Streaming() {
		return false
	}
	s.session.Out.Lock()
	space := s.session.Out.Space()
	s.session.Out.Unlock()
	return space >= s.desc.MinSpace
}

func (s *Stream) complete() {
	log.Printf("Track %s complete (%d frames)", s.track, s.stats.Frames)
	s.closeCodec()
	s.state = Complete
	s.metrics.track(s.desc.Name, "complete")
	s.emit(TrackComplete{ID: s.track})
}

func (s *Stream) abort(err error) {
	log.Printf("Track %s failed: %v", s.track, err)
	if s.codec != nil {
		s.closeCodec()
	}
	s.state = Error
	s.metrics.track(s.desc.Name, "failed")
	s.emit(TrackFailed{ID: s.track, Err: err})
}

func (s *Stream) closeCodec() {
	s.codec.Close()
	s.codec = nil
}

func (s *Stream) codecErr() error {
	if e, ok := s.codec.(interface{ Err() error }); ok && e.Err() != nil {
		return e.Err()
	}
	return fmt.Errorf("%s: decode failed", s.desc.Name)
}

// collectStats forwards the growth of the codec's counters to the metrics.
func (s *Stream) collectStats() {
	r, ok := s.codec.(decode.StatsReporter)
	if !ok {
		return
	}
	cur := r.Stats()
	s.metrics.addStats(decode.Stats{
		Frames:     cur.Frames - s.stats.Frames,
		Overflowed: cur.Overflowed - s.stats.Overflowed,
		Dropped:    cur.Dropped - s.stats.Dropped,
		Truncated:  cur.Truncated - s.stats.Truncated,
	})
	s.stats = cur
}

// trackStarted runs on the decode goroutine inside Step, with s.mu held.
func (s *Stream) trackStarted(format audio.Format) {
	s.metrics.track(s.desc.Name, "started")
	s.emit(TrackStarted{ID: s.track, Codec: s.desc.Name, Format: format})
}

func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("Event channel full, dropping %T for track %s", ev, s.track)
	}
}
