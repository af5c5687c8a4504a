//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform audio output using a blocking PortAudio stream
package output

import (
	"fmt"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

const portAudioFrames = 1024

// PortAudio output implementation
type PortAudio struct {
	volume

	stream      *portaudio.Stream
	initialized bool
	sampleRate  int
	buffer      []int32
	scratch     []audio.Frame
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() *PortAudio {
	p := &PortAudio{}
	p.reset()
	return p
}

// Open initializes PortAudio. Samples are always sent as 32-bit.
func (p *PortAudio) Open(sampleRate, channels, bitDepth int) error {
	if channels != 2 {
		return fmt.Errorf("unsupported channel count: %d (frames are stereo)", channels)
	}
	if p.stream != nil && p.sampleRate == sampleRate {
		return nil
	}
	if p.stream != nil {
		log.Printf("Sample rate change (%dHz -> %dHz), reopening stream", p.sampleRate, sampleRate)
		if err := p.closeStream(); err != nil {
			return err
		}
	}

	if !p.initialized {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
		p.initialized = true
	}

	p.buffer = make([]int32, portAudioFrames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), portAudioFrames, &p.buffer)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	p.stream = stream
	p.sampleRate = sampleRate
	log.Printf("Audio output initialized: %dHz, %d channels, %d-bit source (portaudio)", sampleRate, channels, bitDepth)
	return nil
}

// Write outputs frames a buffer at a time, padding the last buffer with silence.
func (p *PortAudio) Write(frames []audio.Frame) error {
	if p.stream == nil {
		return ErrNotOpen
	}

	if cap(p.scratch) < len(frames) {
		p.scratch = make([]audio.Frame, len(frames))
	}
	rest := p.apply(p.scratch, frames)

	for len(rest) > 0 {
		n := min(len(rest), portAudioFrames)
		audio.Interleave(p.buffer, rest[:n])
		for i := range p.buffer[:n*2] {
			p.buffer[i] <<= 8
		}
		clear(p.buffer[n*2:])
		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("stream write failed: %w", err)
		}
		rest = rest[n:]
	}
	return nil
}

func (p *PortAudio) closeStream() error {
	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return err
	}
	err := p.stream.Close()
	p.stream = nil
	return err
}

// Close releases resources
func (p *PortAudio) Close() error {
	if err := p.closeStream(); err != nil {
		return err
	}
	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}
