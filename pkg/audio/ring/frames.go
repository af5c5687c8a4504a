// ABOUTME: Frame-granular output buffer with a track-start marker
// ABOUTME: Lets the render stage apply a new track's format exactly at its first frame
package ring

import "github.com/Sendspin/sendspin-core/pkg/audio"

// TrackStart is delivered by Frames.Read together with the first frames of a
// new track.
type TrackStart struct {
	Format audio.Format
	FadeIn bool
}

// Frames is the output buffer: a Buffer of audio frames plus the marker
// recording where the current track's audio begins.
type Frames struct {
	Buffer[audio.Frame]

	marked   bool
	marker   int
	toMarker int // frames still queued ahead of the marker
	start    TrackStart
}

// NewFrames allocates an output buffer holding capacity frames.
func NewFrames(capacity int) *Frames {
	if capacity <= 0 {
		panic("ring: invalid frame capacity")
	}
	return &Frames{Buffer: Buffer[audio.Frame]{buf: make([]audio.Frame, capacity)}}
}

// MarkTrackStart records the write cursor as the start of a new track that
// plays with format. The caller must hold the lock. A marker the reader has
// not reached yet is replaced.
func (f *Frames) MarkTrackStart(format audio.Format, fadeIn bool) {
	f.marked = true
	f.marker = f.writep
	f.toMarker = f.used
	f.start = TrackStart{Format: format, FadeIn: fadeIn}
}

// TrackStartMarker returns the marker position and whether one is pending.
func (f *Frames) TrackStartMarker() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marker, f.marked
}

// Read copies up to MaxChunk frames into dst. A single call never crosses the
// marker: when the read cursor sits on it, the marker is cleared and the new
// track's format is returned with the frames that begin the track.
func (f *Frames) Read(dst []audio.Frame) (int, *TrackStart) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var start *TrackStart
	if f.marked && f.toMarker == 0 {
		ts := f.start
		start = &ts
		f.marked = false
	}

	limit := len(dst)
	if limit > MaxChunk {
		limit = MaxChunk
	}
	if f.marked && f.toMarker < limit {
		limit = f.toMarker
	}

	read := 0
	for read < limit {
		region := f.ReadRegion()
		if len(region) == 0 {
			break
		}
		n := copy(dst[read:limit], region)
		f.AdvanceRead(n)
		read += n
	}
	if f.marked {
		f.toMarker -= read
	}
	return read, start
}

// Flush discards queued frames and any pending marker. The caller must hold
// the lock.
func (f *Frames) Flush() {
	f.Buffer.Flush()
	f.marked = false
	f.toMarker = 0
}
