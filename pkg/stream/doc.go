// ABOUTME: Stream orchestrator package
// ABOUTME: Drives the decode pipeline between the transport and the render stage

// Package stream owns the decode session of a player: the input and output
// ring buffers, the codec of the current track and the loop that steps it.
//
// A transport writes compressed bytes to Input and reports its state with
// SetConnState. StartTrack selects a codec by content type. Run steps the
// codec whenever enough input and output space is available, and the render
// stage drains Output. Track outcomes are published on Events.
package stream
