// ABOUTME: Audio output interface tests
// ABOUTME: Verifies Output implementations and software volume scaling
package output

import (
	"testing"

	"github.com/Sendspin/sendspin-core/pkg/audio"
)

func TestBackendsImplementOutput(t *testing.T) {
	var _ Output = (*Malgo)(nil)
	var _ Output = (*Oto)(nil)
	var _ Output = (*PortAudio)(nil)
	var _ Output = (*WAV)(nil)

	var _ Mixer = (*Malgo)(nil)
	var _ Mixer = (*WAV)(nil)
}

func TestNewPortAudio(t *testing.T) {
	out := NewPortAudio()
	if out == nil {
		t.Fatal("NewPortAudio returned nil")
	}
	if got := out.GetVolume(); got != 100 {
		t.Errorf("GetVolume() = %d, want 100", got)
	}
}

func TestApplyVolume(t *testing.T) {
	tests := []struct {
		name       string
		multiplier float64
		in         audio.Frame
		want       audio.Frame
	}{
		{"unity", 1.0, audio.Frame{1000, -1000}, audio.Frame{1000, -1000}},
		{"half", 0.5, audio.Frame{1000, -1000}, audio.Frame{500, -500}},
		{"muted", 0.0, audio.Frame{1000, -1000}, audio.Frame{0, 0}},
		{"clips high", 2.0, audio.Frame{audio.Max24Bit, 0}, audio.Frame{audio.Max24Bit, 0}},
		{"clips low", 2.0, audio.Frame{audio.Min24Bit, 0}, audio.Frame{audio.Min24Bit, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]audio.Frame, 1)
			got := applyVolume(dst, []audio.Frame{tt.in}, tt.multiplier)
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("applyVolume(%v, %v) = %v, want %v", tt.in, tt.multiplier, got, tt.want)
			}
		})
	}
}

func TestVolumeControls(t *testing.T) {
	w := NewWAV(t.TempDir() + "/out.wav")

	w.SetVolume(150)
	if got := w.GetVolume(); got != 100 {
		t.Errorf("SetVolume(150) clamped to %d, want 100", got)
	}
	w.SetVolume(-5)
	if got := w.GetVolume(); got != 0 {
		t.Errorf("SetVolume(-5) clamped to %d, want 0", got)
	}

	w.SetVolume(50)
	w.SetMuted(true)
	if !w.IsMuted() {
		t.Error("IsMuted() = false after SetMuted(true)")
	}
	got := w.apply(make([]audio.Frame, 1), []audio.Frame{{1000, 1000}})
	if got[0] != (audio.Frame{}) {
		t.Errorf("muted output = %v, want silence", got[0])
	}

	w.SetMuted(false)
	got = w.apply(make([]audio.Frame, 1), []audio.Frame{{1000, 1000}})
	if got[0] != (audio.Frame{500, 500}) {
		t.Errorf("half volume output = %v, want {500 500}", got[0])
	}
}

func TestContainerSample(t *testing.T) {
	tests := []struct {
		bitDepth int
		bits     int
		sample   int32
		want     int
	}{
		{8, 16, 0x123456, 0x1234},
		{16, 16, -256, -1},
		{24, 24, 0x123456, 0x123456},
		{32, 32, -1, -256},
	}

	for _, tt := range tests {
		bits := containerBits(tt.bitDepth)
		if bits != tt.bits {
			t.Errorf("containerBits(%d) = %d, want %d", tt.bitDepth, bits, tt.bits)
		}
		if got := containerSample(tt.sample, bits); got != tt.want {
			t.Errorf("containerSample(%#x, %d) = %#x, want %#x", tt.sample, bits, got, tt.want)
		}
	}
}
