// ABOUTME: Software volume shared by the output backends
// ABOUTME: Scales frames by a 0-100 volume with mute and 24-bit clipping
package output

import (
	"log"
	"sync"

	"github.com/Sendspin/sendspin-core/pkg/audio"
)

// volume implements Mixer for the backends that embed it.
type volume struct {
	mu    sync.Mutex
	level int
	muted bool
}

func (v *volume) reset() {
	v.mu.Lock()
	v.level = 100
	v.muted = false
	v.mu.Unlock()
}

// SetVolume sets the volume (0-100)
func (v *volume) SetVolume(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.mu.Lock()
	v.level = level
	v.mu.Unlock()
	log.Printf("Volume set to %d", level)
}

// SetMuted sets mute state
func (v *volume) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (v *volume) GetVolume() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

// IsMuted returns mute state
func (v *volume) IsMuted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

// apply writes src scaled by the current volume into dst, which must be at
// least as long as src.
func (v *volume) apply(dst, src []audio.Frame) []audio.Frame {
	v.mu.Lock()
	multiplier := getVolumeMultiplier(v.level, v.muted)
	v.mu.Unlock()
	return applyVolume(dst, src, multiplier)
}

// applyVolume scales samples with clipping protection
func applyVolume(dst, src []audio.Frame, multiplier float64) []audio.Frame {
	dst = dst[:len(src)]
	if multiplier == 1 {
		copy(dst, src)
		return dst
	}
	for i, f := range src {
		dst[i] = audio.Frame{scale(f[0], multiplier), scale(f[1], multiplier)}
	}
	return dst
}

func scale(sample int32, multiplier float64) int32 {
	scaled := int64(float64(sample) * multiplier)

	// Clamp to 24-bit range to prevent overflow
	if scaled > audio.Max24Bit {
		scaled = audio.Max24Bit
	} else if scaled < audio.Min24Bit {
		scaled = audio.Min24Bit
	}
	return int32(scaled)
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(level int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(level) / 100.0
}
