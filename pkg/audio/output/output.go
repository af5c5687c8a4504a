// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for playback backends fed with stereo frames
package output

import "github.com/Sendspin/sendspin-core/pkg/audio"

// Output is an audio playback backend.
type Output interface {
	// Open prepares the device for the given format. Opening again with the
	// same format keeps the device; a different format reinitializes it.
	Open(sampleRate, channels, bitDepth int) error

	// Write plays frames, blocking until they are queued.
	Write(frames []audio.Frame) error

	// Close releases output resources
	Close() error
}

// Mixer is implemented by outputs with software volume.
type Mixer interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}
