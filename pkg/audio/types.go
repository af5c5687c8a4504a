// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, output frames and sample conversions
package audio

import "fmt"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a decoded audio stream
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
	// OutputGain is the gain in Q7.8 dB carried by the container header.
	// It is reported for the output stage; the decode pipeline never applies it.
	OutputGain int16
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// Frame is one interleaved stereo output frame.
// Samples are int32 in the 24-bit range, matching SampleFromInt16.
type Frame [2]int32

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	// Left-shift to position 16-bit value in upper bits
	return int32(sample) << 8
}

// SampleFromFloat32 converts a float sample in [-1,1] to the 24-bit range, clipping.
func SampleFromFloat32(sample float32) int32 {
	v := float64(sample) * Max24Bit
	if v >= Max24Bit {
		return Max24Bit
	}
	if v <= Min24Bit {
		return Min24Bit
	}
	return int32(v)
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	// Take lower 24 bits, pack little-endian
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF // Set upper 8 bits to 1 for negative values
	}
	return val
}

// Interleave flattens frames into dst as L,R pairs and returns the number of samples written.
func Interleave(dst []int32, frames []Frame) int {
	n := len(frames)
	if len(dst)/2 < n {
		n = len(dst) / 2
	}
	for i := 0; i < n; i++ {
		dst[2*i] = frames[i][0]
		dst[2*i+1] = frames[i][1]
	}
	return n * 2
}
