//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"errors"

	"github.com/Sendspin/sendspin-core/pkg/audio"
)

var errNoPortAudio = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio output implementation (stub)
type PortAudio struct {
	volume
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() *PortAudio {
	p := &PortAudio{}
	p.reset()
	return p
}

// Open initializes PortAudio
func (p *PortAudio) Open(sampleRate, channels, bitDepth int) error {
	return errNoPortAudio
}

// Write outputs audio frames
func (p *PortAudio) Write(frames []audio.Frame) error {
	return errNoPortAudio
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
