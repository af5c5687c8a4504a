// ABOUTME: Malgo-based audio output implementation with 24-bit support
// ABOUTME: Uses miniaudio library via malgo, fed through a frame ring drained by the device callback
package output

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
	"github.com/gen2brain/malgo"
)

// ErrNotOpen is returned by Write before a successful Open.
var ErrNotOpen = errors.New("output not initialized")

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	volume

	ctx        context.Context
	cancel     context.CancelFunc
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	channels   int
	bitDepth   int
	ready      bool

	// Frames queued for the device callback
	queue   *ring.Buffer[audio.Frame]
	drained chan struct{}
	scratch []audio.Frame
	pending []audio.Frame // callback-only
	mu      sync.Mutex
}

// NewMalgo creates a new Malgo output
func NewMalgo() *Malgo {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Malgo{
		ctx:     ctx,
		cancel:  cancel,
		drained: make(chan struct{}, 1),
	}
	m.reset()
	return m
}

// Open initializes the output device with specified format
func (m *Malgo) Open(sampleRate, channels, bitDepth int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If already initialized with same format, reuse
	if m.device != nil && m.sampleRate == sampleRate && m.channels == channels && m.bitDepth == bitDepth {
		return nil
	}

	if channels != 2 {
		return fmt.Errorf("unsupported channel count: %d (frames are stereo)", channels)
	}

	// Map bit depth to malgo format
	format, err := malgoFormat(bitDepth)
	if err != nil {
		return err
	}

	// If format changed, reinitialize
	if m.device != nil {
		log.Printf("Format change detected (%dHz/%dbit -> %dHz/%dbit), reinitializing device",
			m.sampleRate, m.bitDepth, sampleRate, bitDepth)
		m.closeDevice()
	}

	// Create malgo context if needed
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	// Queue holds 500ms
	m.queue = ring.New[audio.Frame](sampleRate / 2)
	m.bitDepth = bitDepth

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.sampleRate = sampleRate
	m.channels = channels
	m.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels, %d-bit (malgo/%s)",
		sampleRate, channels, bitDepth, formatName(format))

	return nil
}

// Write queues frames for playback, waiting for the callback to make room.
func (m *Malgo) Write(frames []audio.Frame) error {
	m.mu.Lock()
	queue, ready := m.queue, m.ready
	m.mu.Unlock()
	if !ready {
		return ErrNotOpen
	}

	if cap(m.scratch) < len(frames) {
		m.scratch = make([]audio.Frame, len(frames))
	}
	rest := m.apply(m.scratch, frames)

	for len(rest) > 0 {
		n := queue.Write(rest)
		rest = rest[n:]
		if n == 0 {
			select {
			case <-m.drained:
			case <-m.ctx.Done():
				return fmt.Errorf("output closed: %w", m.ctx.Err())
			}
		}
	}
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	need := int(frameCount)
	if cap(m.pending) < need {
		m.pending = make([]audio.Frame, need)
	}
	frames := m.pending[:need]

	read := 0
	for read < need {
		n := m.queue.Read(frames[read:])
		if n == 0 {
			break
		}
		read += n
	}
	// Zero-fill on underrun
	for i := read; i < need; i++ {
		frames[i] = audio.Frame{}
	}

	switch m.bitDepth {
	case 16:
		write16Bit(pOutput, frames)
	case 24:
		write24Bit(pOutput, frames)
	case 32:
		write32Bit(pOutput, frames)
	}

	select {
	case m.drained <- struct{}{}:
	default:
	}
}

// write16Bit converts frames to 16-bit output
func write16Bit(output []byte, frames []audio.Frame) {
	for i, f := range frames {
		for c, sample := range f {
			s := audio.SampleToInt16(sample)
			o := (i*2 + c) * 2
			output[o] = byte(s)
			output[o+1] = byte(s >> 8)
		}
	}
}

// write24Bit converts frames to packed 24-bit output
func write24Bit(output []byte, frames []audio.Frame) {
	for i, f := range frames {
		for c, sample := range f {
			b := audio.SampleTo24Bit(sample)
			copy(output[(i*2+c)*3:], b[:])
		}
	}
}

// write32Bit converts frames to 32-bit output, the 24-bit value in the upper bits
func write32Bit(output []byte, frames []audio.Frame) {
	for i, f := range frames {
		for c, sample := range f {
			s := sample << 8
			o := (i*2 + c) * 4
			output[o] = byte(s)
			output[o+1] = byte(s >> 8)
			output[o+2] = byte(s >> 16)
			output[o+3] = byte(s >> 24)
		}
	}
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	if err := m.device.Stop(); err != nil {
		log.Printf("Warning: device stop error: %v", err)
	}
	m.device.Uninit()
	m.device = nil
	m.ready = false
}

func malgoFormat(bitDepth int) (malgo.FormatType, error) {
	switch bitDepth {
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", bitDepth)
	}
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
