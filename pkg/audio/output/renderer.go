// ABOUTME: Render stage draining the output ring buffer into a playback backend
// ABOUTME: Reopens the backend at each track start and applies the optional fade-in
package output

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

const (
	DefaultFadeIn       = 50 * time.Millisecond
	DefaultPollInterval = 5 * time.Millisecond

	renderChunk = 1024
)

// Renderer is the sole reader of the output buffer.
type Renderer struct {
	// FadeIn is the ramp applied to tracks started with fade-in.
	FadeIn time.Duration
	// PollInterval is how long Run waits when the buffer is empty.
	PollInterval time.Duration

	out     Output
	frames  *ring.Frames
	onDrain func()

	buf      []audio.Frame
	format   audio.Format
	open     bool
	fadeLen  int
	fadeLeft int

	rendered atomic.Int64
	dropped  atomic.Int64
}

// NewRenderer creates a renderer playing frames on out. onDrain, if not nil,
// is called after each chunk is handed to the backend.
func NewRenderer(out Output, frames *ring.Frames, onDrain func()) *Renderer {
	return &Renderer{
		FadeIn:       DefaultFadeIn,
		PollInterval: DefaultPollInterval,
		out:          out,
		frames:       frames,
		onDrain:      onDrain,
		buf:          make([]audio.Frame, renderChunk),
	}
}

// Run plays frames until ctx is cancelled or the backend fails.
func (r *Renderer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, start := r.frames.Read(r.buf)
		if start != nil {
			if err := r.begin(*start); err != nil {
				return err
			}
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			continue
		}

		if !r.open {
			// Frames ahead of the first track start have no format.
			r.dropped.Add(int64(n))
			continue
		}

		r.fade(r.buf[:n])
		if err := r.out.Write(r.buf[:n]); err != nil {
			return fmt.Errorf("output write: %w", err)
		}
		r.rendered.Add(int64(n))
		if r.onDrain != nil {
			r.onDrain()
		}
	}
}

// Rendered returns the number of frames handed to the backend.
func (r *Renderer) Rendered() int64 { return r.rendered.Load() }

// Dropped returns the number of frames discarded before the first track start.
func (r *Renderer) Dropped() int64 { return r.dropped.Load() }

// begin opens the backend for a new track's format.
func (r *Renderer) begin(start ring.TrackStart) error {
	f := start.Format
	if err := r.out.Open(f.SampleRate, 2, containerBits(f.BitDepth)); err != nil {
		return fmt.Errorf("open output for %s: %w", f, err)
	}
	if f != r.format {
		log.Printf("Rendering %s", f)
	}
	r.format = f
	r.open = true

	r.fadeLeft = 0
	if start.FadeIn {
		r.fadeLen = int(int64(f.SampleRate) * int64(r.FadeIn) / int64(time.Second))
		r.fadeLeft = r.fadeLen
	}
	return nil
}

// fade applies a linear ramp to the first frames of a faded-in track.
func (r *Renderer) fade(frames []audio.Frame) {
	for i := 0; i < len(frames) && r.fadeLeft > 0; i++ {
		gain := float64(r.fadeLen-r.fadeLeft) / float64(r.fadeLen)
		frames[i] = audio.Frame{
			int32(float64(frames[i][0]) * gain),
			int32(float64(frames[i][1]) * gain),
		}
		r.fadeLeft--
	}
}
