// ABOUTME: Sample conversion from decoder-native layouts to output frames
// ABOUTME: Handles int16, float32 and 24-bit int32 sources with mono duplication
package decode

import "github.com/Sendspin/sendspin-core/pkg/audio"

// native is one decode call's output in the decoder's own layout.
// Exactly one of the sample slices is set; samples are interleaved.
type native struct {
	channels int
	i16      []int16
	f32      []float32
	i32      []int32 // already in the 24-bit range
}

// frames returns the number of frames held.
func (n native) frames() int {
	if n.channels <= 0 {
		return 0
	}
	switch {
	case n.i16 != nil:
		return len(n.i16) / n.channels
	case n.f32 != nil:
		return len(n.f32) / n.channels
	default:
		return len(n.i32) / n.channels
	}
}

// convert writes frames [from, from+len(dst)) of src into dst and returns
// how many were written. Mono samples are duplicated into both channels.
// Sources with more than two channels keep the first two.
func convert(dst []audio.Frame, src native, from int) int {
	n := src.frames() - from
	if n > len(dst) {
		n = len(dst)
	}
	if n <= 0 {
		return 0
	}

	ch := src.channels
	right := 1
	if ch == 1 {
		right = 0
	}

	switch {
	case src.i16 != nil:
		s := src.i16[from*ch:]
		for i := 0; i < n; i++ {
			dst[i] = audio.Frame{
				audio.SampleFromInt16(s[i*ch]),
				audio.SampleFromInt16(s[i*ch+right]),
			}
		}
	case src.f32 != nil:
		s := src.f32[from*ch:]
		for i := 0; i < n; i++ {
			dst[i] = audio.Frame{
				audio.SampleFromFloat32(s[i*ch]),
				audio.SampleFromFloat32(s[i*ch+right]),
			}
		}
	default:
		s := src.i32[from*ch:]
		for i := 0; i < n; i++ {
			dst[i] = audio.Frame{s[i*ch], s[i*ch+right]}
		}
	}
	return n
}

// scaleTo24 shifts a sample of the given bit depth into the 24-bit range.
func scaleTo24(sample int32, bits int) int32 {
	switch {
	case bits < 24:
		return sample << (24 - bits)
	case bits > 24:
		return sample >> (bits - 24)
	default:
		return sample
	}
}
