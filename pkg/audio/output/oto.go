// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams 16-bit PCM with software volume control through a persistent oto player
package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// Oto output implementation using oto library
type Oto struct {
	volume

	ctx        context.Context
	cancel     context.CancelFunc
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	ready      bool

	scratch []audio.Frame
	bytes   []byte
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Oto{
		ctx:    ctx,
		cancel: cancel,
	}
	o.reset()
	return o
}

// Open initializes the output device. oto always plays 16-bit stereo.
func (o *Oto) Open(sampleRate, channels, bitDepth int) error {
	if channels != 2 {
		return fmt.Errorf("unsupported channel count: %d (frames are stereo)", channels)
	}

	// If already initialized with same format, reuse the existing context
	if o.otoCtx != nil && o.sampleRate == sampleRate {
		return nil
	}

	// oto allows one context per process
	if o.otoCtx != nil {
		log.Printf("Warning: sample rate change (%dHz -> %dHz) but oto doesn't support reinitialization. Continuing with existing context.",
			o.sampleRate, sampleRate)
		return nil
	}

	if bitDepth != 16 {
		log.Printf("oto plays 16-bit output, converting from %d-bit", bitDepth)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	select {
	case <-readyChan:
	case <-o.ctx.Done():
		return fmt.Errorf("output closed: %w", o.ctx.Err())
	}

	o.otoCtx = ctx
	o.sampleRate = sampleRate

	// Persistent player reading from a pipe
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()

	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels (oto)", sampleRate, channels)

	return nil
}

// Write outputs frames, blocking until the player has taken them.
func (o *Oto) Write(frames []audio.Frame) error {
	if !o.ready {
		return ErrNotOpen
	}

	if cap(o.scratch) < len(frames) {
		o.scratch = make([]audio.Frame, len(frames))
		o.bytes = make([]byte, len(frames)*4)
	}
	scaled := o.apply(o.scratch, frames)

	out := o.bytes[:len(scaled)*4]
	for i, f := range scaled {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(audio.SampleToInt16(f[0])))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(audio.SampleToInt16(f[1])))
	}

	if _, err := o.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.cancel()
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Printf("Warning: oto suspend error: %v", err)
		}
		o.ready = false
	}
	return nil
}
