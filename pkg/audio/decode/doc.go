// ABOUTME: Streaming decode package for the buffered playback pipeline
// ABOUTME: Provides the Codec interface, codec registry and Opus, Vorbis, MP3, FLAC and PCM codecs

// Package decode turns compressed bytes from the input ring buffer into
// stereo frames in the output ring buffer.
//
// Each codec is stepped by the caller through Decode, which does a bounded
// amount of work and never waits for data. All codecs write int32 samples in
// 24-bit range; mono sources are duplicated to both channels.
//
// Example:
//
//	s := decode.NewSession(1<<18, 1<<15)
//	desc, err := decode.DefaultRegistry().Lookup("audio/ogg; codecs=opus")
//	codec := desc.New()
//	err = codec.Open(s, decode.Hint{})
//	for codec.Decode(s) == decode.Running {
//		// wait for input or output space
//	}
//	codec.Close()
package decode
