// ABOUTME: Non-blocking io.Reader over the input buffer
// ABOUTME: Lets pull-style decoders read from the ring without waiting on the transport
package decode

import (
	"io"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

// ringReader reads from the input buffer. An empty buffer reads as io.EOF;
// the caller decides from the connection state whether that is the end.
type ringReader struct {
	in *ring.Buffer[byte]
}

func (r ringReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := r.in.Read(p)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// id3Size returns the total size of an ID3v2 tag starting at h, or 0 when h
// does not start one. h must hold at least 10 bytes.
func id3Size(h []byte) int {
	if len(h) < 10 || string(h[:3]) != "ID3" {
		return 0
	}
	size := int(h[6]&0x7f)<<21 | int(h[7]&0x7f)<<14 | int(h[8]&0x7f)<<7 | int(h[9]&0x7f)
	size += 10
	if h[5]&0x10 != 0 {
		size += 10 // footer
	}
	return size
}

// skipper discards a known number of input bytes, at most one chunk per call.
type skipper struct {
	left int
}

// step discards the next chunk of the skipped range. It reports busy until
// the range is consumed; while busy the caller returns res.
func (k *skipper) step(s *Session) (res Result, busy bool) {
	if k.left == 0 {
		return Running, false
	}
	n := s.In.Discard(min(k.left, ring.MaxChunk))
	k.left -= n
	if n == 0 && !s.Streaming() {
		log.Printf("Stream ended with %d bytes left to skip", k.left)
		return Complete, true
	}
	return Running, true
}
