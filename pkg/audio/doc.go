// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Frame and sample conversion functions
// Package audio provides fundamental audio types shared by the decode pipeline.
//
// This package defines the core types used throughout sendspin-core:
//   - Format: describes a decoded stream (codec, sample rate, channels, bit depth)
//   - Frame: one interleaved stereo output frame, int32 samples in 24-bit range
//
// It also provides utilities for converting between sample representations:
//   - 16-bit ↔ 24-bit conversions
//   - float32 → 24-bit with clipping
//   - int32 ↔ packed byte conversions
//
// Example:
//
//	frame := audio.Frame{audio.SampleFromInt16(l), audio.SampleFromInt16(r)}
package audio
