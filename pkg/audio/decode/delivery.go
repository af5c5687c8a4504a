// ABOUTME: Steady-state frame delivery into the output buffer
// ABOUTME: Writes decoded frames directly when they fit and retains overflow otherwise
package decode

import (
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

// Stats counts a codec's output for the current track.
type Stats struct {
	// Frames is the number of frames written to the output buffer.
	Frames int64
	// Overflowed is the number of frames that went through the overflow scratch.
	Overflowed int64
	// Dropped is the number of frames discarded at track start (pre-skip).
	Dropped int64
	// Truncated is the number of frames cut from packets that decoded to
	// more than the codec's packet limit.
	Truncated int64
}

// StatsReporter is implemented by codecs that count their output.
type StatsReporter interface {
	Stats() Stats
}

// delivery moves decoded frames into the output buffer. When the contiguous
// free region cannot hold a worst-case packet, frames are converted into the
// overflow scratch and the part that does not fit is kept for later calls.
//
// The decode goroutine is the only writer of the output buffer, so the
// writable region can be filled without holding the lock; only the cursor
// update is made under it.
type delivery struct {
	format    audio.Format
	maxFrames int
	overflow  []audio.Frame
	pending   []audio.Frame
	skip      int
	truncated bool // the current stream already reported a truncation
	stats     Stats
}

func newDelivery(maxFrames int) *delivery {
	return &delivery{
		maxFrames: maxFrames,
		overflow:  make([]audio.Frame, maxFrames),
	}
}

// reset prepares for a new stream with the given format, discarding the
// first skip frames it produces.
func (d *delivery) reset(format audio.Format, skip int) {
	d.format = format
	d.skip = skip
	d.pending = nil
	d.truncated = false
}

// handshake places the track-start marker if the session armed one.
func (d *delivery) handshake(s *Session) {
	s.Out.Lock()
	started := s.markTrackStart(d.format)
	s.Out.Unlock()

	if started {
		s.trackStarted(d.format)
	}
}

// flushPending writes retained overflow frames. It reports whether a
// remainder existed; the caller must not decode a new packet in that case.
func (d *delivery) flushPending(s *Session) bool {
	if len(d.pending) == 0 {
		return false
	}

	chunk := d.pending
	if len(chunk) > ring.MaxChunk {
		chunk = chunk[:ring.MaxChunk]
	}

	s.Out.Lock()
	n := copy(s.Out.WriteRegion(), chunk)
	s.Out.AdvanceWrite(n)
	s.Out.Unlock()

	d.pending = d.pending[n:]
	d.stats.Frames += int64(n)
	s.debugf("Flushed %d overflow frames, %d remaining", n, len(d.pending))
	return true
}

// deliver converts src into the output buffer.
func (d *delivery) deliver(s *Session, src native) {
	total := src.frames()
	if total > d.maxFrames {
		if !d.truncated {
			log.Printf("Decoder produced %d frames, limit %d; dropping the excess", total, d.maxFrames)
			d.truncated = true
		}
		d.stats.Truncated += int64(total - d.maxFrames)
		total = d.maxFrames
	}

	from := 0
	if d.skip > 0 {
		from = min(d.skip, total)
		d.skip -= from
		d.stats.Dropped += int64(from)
	}
	if from == total {
		return
	}
	count := total - from

	s.Out.Lock()
	region := s.Out.WriteRegion()
	s.Out.Unlock()

	if len(region) >= d.maxFrames {
		n := convert(region[:count], src, from)
		s.Out.Lock()
		s.Out.AdvanceWrite(n)
		s.Out.Unlock()
		d.stats.Frames += int64(n)
		return
	}

	n := convert(d.overflow[:count], src, from)
	d.pending = d.overflow[:n]
	d.stats.Overflowed += int64(n)
	d.flushPending(s)
}
