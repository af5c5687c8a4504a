// ABOUTME: FLAC codec
// ABOUTME: Walks metadata blocks itself, then decodes frames to 24-bit samples via mewkiz/flac
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/mewkiz/flac"
)

const (
	flacStreamInfoSize = 34
	// flacMinRead exceeds the largest frame of a 4096-sample stereo 24-bit
	// block, so a frame never straddles the end of the buffered input.
	flacMinRead  = 32768
	flacMinSpace = 4608
)

var flacMagic = []byte("fLaC")

// FLACDescriptor registers the FLAC codec.
func FLACDescriptor() Descriptor {
	return Descriptor{
		ID:       'f',
		Name:     "flac",
		Types:    []string{"audio/flac", "audio/x-flac", "flac"},
		MinRead:  flacMinRead,
		MinSpace: flacMinSpace,
		New:      NewFLAC,
	}
}

type flacStage int

const (
	flacSignature flacStage = iota
	flacMetadata
	flacOpen
	flacFrames
)

// FLACCodec decodes native FLAC streams.
type FLACCodec struct {
	stage  flacStage
	block  skipper
	last   bool
	info   []byte
	stream *flac.Stream
	bits   int
	pcm    []int32
	out    *delivery
	err    error
}

// NewFLAC creates a FLAC codec.
func NewFLAC() Codec {
	return &FLACCodec{}
}

// Open implements Codec.
func (c *FLACCodec) Open(s *Session, _ Hint) error {
	c.stage = flacSignature
	return nil
}

// Close implements Codec.
func (c *FLACCodec) Close() {
	c.stream = nil
	c.pcm = nil
	c.out = nil
}

// Format implements Formatter.
func (c *FLACCodec) Format() (audio.Format, bool) {
	if c.stream == nil {
		return audio.Format{}, false
	}
	return c.out.format, true
}

// Err returns the error that made Decode return Error.
func (c *FLACCodec) Err() error { return c.err }

// Stats implements StatsReporter.
func (c *FLACCodec) Stats() Stats {
	if c.out == nil {
		return Stats{}
	}
	return c.out.stats
}

func (c *FLACCodec) fail(err error) Result {
	c.err = fmt.Errorf("flac: %w", err)
	log.Printf("Track aborted: %v", c.err)
	return Error
}

// starved handles missing input: a stall while streaming, the end otherwise.
func (c *FLACCodec) starved(s *Session) Result {
	if s.Streaming() {
		return Running
	}
	log.Printf("flac stream ended")
	return Complete
}

// Decode implements Codec.
func (c *FLACCodec) Decode(s *Session) Result {
	switch c.stage {
	case flacSignature:
		return c.signature(s)
	case flacMetadata:
		return c.metadata(s)
	case flacOpen:
		return c.open(s)
	}

	c.out.handshake(s)
	if c.out.flushPending(s) {
		return Running
	}

	s.In.Lock()
	buffered := s.In.Used()
	s.In.Unlock()
	if buffered < flacMinRead && s.Streaming() {
		return Running
	}

	frame, err := c.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return c.starved(s)
		}
		log.Printf("flac decode failed, ending track: %v", err)
		return Complete
	}

	ch := len(frame.Subframes)
	n := int(frame.BlockSize)
	if ch*n > len(c.pcm) {
		log.Printf("flac frame of %d samples exceeds stream maximum, ending track", n)
		return Complete
	}
	for i, sub := range frame.Subframes {
		for j := 0; j < n && j < len(sub.Samples); j++ {
			c.pcm[j*ch+i] = scaleTo24(sub.Samples[j], c.bits)
		}
	}
	c.out.deliver(s, native{channels: ch, i32: c.pcm[:n*ch]})
	return Running
}

func (c *FLACCodec) signature(s *Session) Result {
	if res, busy := c.block.step(s); busy {
		return res
	}

	var h [10]byte
	n := s.In.Peek(h[:])
	if n < len(h) && s.Streaming() {
		return Running
	}
	if size := id3Size(h[:n]); size > 0 {
		s.debugf("flac: skipping %d byte ID3v2 tag", size)
		c.block.left = size
		return Running
	}
	if n < len(flacMagic) {
		return c.starved(s)
	}
	if !bytes.Equal(h[:4], flacMagic) {
		return c.fail(fmt.Errorf("%w: %q", ErrBadMagic, h[:4]))
	}
	s.In.Discard(len(flacMagic))
	c.stage = flacMetadata
	return Running
}

// metadata consumes one metadata block, or one chunk of a skipped block.
func (c *FLACCodec) metadata(s *Session) Result {
	if res, busy := c.block.step(s); busy {
		return res
	}
	if c.last {
		c.stage = flacOpen
		return Running
	}

	var h [4 + flacStreamInfoSize]byte
	n := s.In.Peek(h[:4])
	if n < 4 {
		return c.starved(s)
	}
	last := h[0]&0x80 != 0
	kind := h[0] & 0x7f
	length := int(h[1])<<16 | int(h[2])<<8 | int(h[3])

	if kind != 0 {
		s.debugf("flac: skipping metadata block type %d (%d bytes)", kind, length)
		s.In.Discard(4)
		c.block.left = length
		c.last = last
		return Running
	}

	if length != flacStreamInfoSize {
		return c.fail(fmt.Errorf("%w: STREAMINFO is %d bytes", ErrHeaderTruncated, length))
	}
	if s.In.Peek(h[:]) < len(h) {
		return c.starved(s)
	}
	c.info = append(c.info[:0], h[4:]...)
	s.In.Discard(len(h))
	c.last = last
	return Running
}

// open hands the decoder a minimal header followed by the frame data.
func (c *FLACCodec) open(s *Session) Result {
	if c.info == nil {
		return c.fail(fmt.Errorf("%w: no STREAMINFO block", ErrHeaderTruncated))
	}

	header := make([]byte, 0, 8+flacStreamInfoSize)
	header = append(header, flacMagic...)
	header = binary.BigEndian.AppendUint32(header, 0x80<<24|flacStreamInfoSize)
	header = append(header, c.info...)

	stream, err := flac.New(io.MultiReader(bytes.NewReader(header), ringReader{in: s.In}))
	if err != nil {
		return c.fail(fmt.Errorf("failed to create flac decoder: %w", err))
	}

	ch := int(stream.Info.NChannels)
	if ch < 1 || ch > 2 {
		return c.fail(fmt.Errorf("%w: %d", ErrUnsupportedChannels, ch))
	}
	maxBlock := int(stream.Info.BlockSizeMax)
	if maxBlock == 0 {
		maxBlock = 65535
	}

	c.stream = stream
	c.bits = int(stream.Info.BitsPerSample)
	c.pcm = make([]int32, maxBlock*ch)
	c.out = newDelivery(maxBlock)
	c.out.reset(audio.Format{
		Codec:      "flac",
		SampleRate: int(stream.Info.SampleRate),
		Channels:   ch,
		BitDepth:   c.bits,
	}, 0)
	c.stage = flacFrames
	s.debugf("flac: negotiated %s", c.out.format)
	return Running
}
