// ABOUTME: PCM codec
// ABOUTME: Converts raw or WAV-wrapped 8/16/24/32-bit PCM to output frames using the open hints
package decode

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xfffe
)

// PCMDescriptor registers the PCM codec.
func PCMDescriptor() Descriptor {
	return Descriptor{
		ID:       'p',
		Name:     "pcm",
		Types:    []string{"audio/pcm", "audio/l16", "audio/wav", "audio/x-wav", "audio/wave", "pcm"},
		MinRead:  ring.MaxChunk,
		MinSpace: ring.MaxChunk,
		New:      NewPCM,
	}
}

type pcmStage int

const (
	pcmProbe pcmStage = iota
	pcmChunks
	pcmData
	pcmTrailer // after the WAVE data chunk
)

// PCMCodec decodes uncompressed PCM. Raw streams are described by the open
// hints; a RIFF/WAVE header, if present, overrides them.
type PCMCodec struct {
	bits      int
	channels  int
	rate      int
	bigEndian bool

	stage pcmStage
	chunk skipper
	left  int // unread bytes of the WAVE data chunk, -1 when unbounded
	buf   [ring.MaxChunk]byte
	pcm   []int32
	out   *delivery
	err   error
}

// NewPCM creates a PCM codec.
func NewPCM() Codec {
	return &PCMCodec{}
}

// Open implements Codec. Zero hints default to 16-bit stereo at 44.1kHz.
func (c *PCMCodec) Open(s *Session, hint Hint) error {
	c.bits = hint.SampleSize
	c.channels = hint.Channels
	c.rate = hint.SampleRate
	c.bigEndian = hint.BigEndian
	if c.bits == 0 {
		c.bits = 16
	}
	if c.channels == 0 {
		c.channels = 2
	}
	if c.rate == 0 {
		c.rate = 44100
	}
	if err := c.validate(); err != nil {
		return err
	}

	c.stage = pcmProbe
	c.left = -1
	c.pcm = make([]int32, ring.MaxChunk)
	c.out = newDelivery(ring.MaxChunk)
	c.reset()
	return nil
}

func (c *PCMCodec) validate() error {
	switch c.bits {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", c.bits)
	}
	if c.channels < 1 || c.channels > 2 {
		return fmt.Errorf("%w: %d", ErrUnsupportedChannels, c.channels)
	}
	return nil
}

func (c *PCMCodec) reset() {
	c.out.reset(audio.Format{
		Codec:      "pcm",
		SampleRate: c.rate,
		Channels:   c.channels,
		BitDepth:   c.bits,
	}, 0)
}

// Close implements Codec.
func (c *PCMCodec) Close() {
	c.pcm = nil
	c.out = nil
}

// Format implements Formatter.
func (c *PCMCodec) Format() (audio.Format, bool) {
	if c.out == nil || c.stage != pcmData {
		return audio.Format{}, false
	}
	return c.out.format, true
}

// Err returns the error that made Decode return Error.
func (c *PCMCodec) Err() error { return c.err }

// Stats implements StatsReporter.
func (c *PCMCodec) Stats() Stats {
	if c.out == nil {
		return Stats{}
	}
	return c.out.stats
}

func (c *PCMCodec) fail(err error) Result {
	c.err = fmt.Errorf("pcm: %w", err)
	log.Printf("Track aborted: %v", c.err)
	return Error
}

func (c *PCMCodec) starved(s *Session) Result {
	if s.Streaming() {
		return Running
	}
	log.Printf("pcm stream ended")
	return Complete
}

// Decode implements Codec.
func (c *PCMCodec) Decode(s *Session) Result {
	switch c.stage {
	case pcmProbe:
		return c.probe(s)
	case pcmChunks:
		return c.riffChunk(s)
	case pcmTrailer:
		if s.In.Discard(len(c.buf)) == 0 {
			return c.starved(s)
		}
		return Running
	}

	c.out.handshake(s)
	if c.out.flushPending(s) {
		return Running
	}

	frameBytes := c.bits / 8 * c.channels
	s.In.Lock()
	want := min(s.In.Used(), len(c.buf))
	s.In.Unlock()
	if c.left >= 0 {
		if c.left < frameBytes {
			s.debugf("pcm: WAVE data chunk done, ignoring the rest of the stream")
			c.stage = pcmTrailer
			return Running
		}
		want = min(want, c.left)
	}
	want -= want % frameBytes
	if want == 0 {
		return c.starved(s)
	}

	n := s.In.Read(c.buf[:want])
	if c.left >= 0 {
		c.left -= n
	}
	samples := c.samples(c.buf[:n])
	c.out.deliver(s, native{channels: c.channels, i32: c.pcm[:samples]})
	return Running
}

// samples converts raw bytes into 24-bit samples in c.pcm.
func (c *PCMCodec) samples(b []byte) int {
	width := c.bits / 8
	n := len(b) / width
	for i := 0; i < n; i++ {
		p := b[i*width : (i+1)*width]
		var v int32
		switch c.bits {
		case 8:
			v = (int32(p[0]) - 128) << 16
		case 16:
			if c.bigEndian {
				v = int32(int16(binary.BigEndian.Uint16(p)))
			} else {
				v = int32(int16(binary.LittleEndian.Uint16(p)))
			}
			v = scaleTo24(v, 16)
		case 24:
			if c.bigEndian {
				v = audio.SampleFrom24Bit([3]byte{p[2], p[1], p[0]})
			} else {
				v = audio.SampleFrom24Bit([3]byte{p[0], p[1], p[2]})
			}
		case 32:
			if c.bigEndian {
				v = int32(binary.BigEndian.Uint32(p))
			} else {
				v = int32(binary.LittleEndian.Uint32(p))
			}
			v = scaleTo24(v, 32)
		}
		c.pcm[i] = v
	}
	return n
}

// probe looks for a RIFF/WAVE header.
func (c *PCMCodec) probe(s *Session) Result {
	var h [12]byte
	n := s.In.Peek(h[:])
	if n < len(h) && s.Streaming() {
		return Running
	}
	if n == len(h) && string(h[:4]) == "RIFF" && string(h[8:]) == "WAVE" {
		s.In.Discard(len(h))
		c.stage = pcmChunks
		return Running
	}
	c.stage = pcmData
	return Running
}

// riffChunk handles one chunk header, or skips one piece of an ignored chunk.
func (c *PCMCodec) riffChunk(s *Session) Result {
	if res, busy := c.chunk.step(s); busy {
		return res
	}

	var h [8 + 16]byte
	if s.In.Peek(h[:8]) < 8 {
		return c.starved(s)
	}
	id := string(h[:4])
	size := int(binary.LittleEndian.Uint32(h[4:]))
	padded := size + size&1

	switch id {
	case "data":
		s.In.Discard(8)
		c.stage = pcmData
		// Streaming writers leave the size at 0 or the maximum.
		if size != 0 && uint32(size) != 0xffffffff {
			c.left = size
		}
		s.debugf("pcm: WAVE data, %s", c.out.format)
	case "fmt ":
		if size < 16 {
			return c.fail(fmt.Errorf("%w: fmt chunk is %d bytes", ErrHeaderTruncated, size))
		}
		if s.In.Peek(h[:]) < len(h) {
			return c.starved(s)
		}
		tag := binary.LittleEndian.Uint16(h[8:])
		if tag != wavFormatPCM && tag != wavFormatExtensible {
			return c.fail(fmt.Errorf("unsupported WAVE format tag %#x", tag))
		}
		c.channels = int(binary.LittleEndian.Uint16(h[10:]))
		c.rate = int(binary.LittleEndian.Uint32(h[12:]))
		c.bits = int(binary.LittleEndian.Uint16(h[22:]))
		c.bigEndian = false
		if err := c.validate(); err != nil {
			return c.fail(err)
		}
		c.reset()
		s.In.Discard(8)
		c.chunk.left = padded
	default:
		s.debugf("pcm: skipping WAVE chunk %q (%d bytes)", id, size)
		s.In.Discard(8)
		c.chunk.left = padded
	}
	return Running
}
