// ABOUTME: Ring buffer package for the decode pipeline
// ABOUTME: Provides the generic Buffer and the frame-oriented Frames output buffer
// Package ring provides fixed-capacity circular buffers shared between the
// fetch, decode and render goroutines.
//
// A Buffer never grows. Bulk access goes through the contiguous regions so
// that wraparound is handled explicitly:
//
//	in.Lock()
//	region := in.ReadRegion()
//	n := copy(dst, region)
//	in.AdvanceRead(n)
//	in.Unlock()
//
// The producer and consumer helpers Write and Read do the same while copying
// at most MaxChunk units per critical section.
package ring
