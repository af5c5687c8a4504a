// ABOUTME: Audio output package for playing decoded frames
// ABOUTME: Provides the Output interface, malgo/oto/PortAudio/WAV backends and the Renderer
// Package output plays the frames produced by the decode pipeline.
//
// Backends implement Output: Malgo (miniaudio, 16/24/32-bit), Oto (16-bit),
// PortAudio (build with -tags portaudio) and WAV (file recording). The
// Renderer drains the pipeline's output buffer and reopens the backend at
// each track start so a format change takes effect on the track's first frame.
//
// Example:
//
//	out := output.NewMalgo()
//	r := output.NewRenderer(out, stream.Output(), stream.Wake)
//	err := r.Run(ctx)
package output
