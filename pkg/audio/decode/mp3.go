// ABOUTME: MP3 codec
// ABOUTME: Skips ID3v2 tags and decodes MPEG audio frames to int16 via go-mp3
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// mp3FrameFrames is the output of one MPEG-1 Layer III frame.
	mp3FrameFrames = 1152
	mp3FrameBytes  = mp3FrameFrames * 4
	// mp3MinRead covers the largest Layer III frame with room to spare, so a
	// read never runs dry mid-frame while the transport is streaming.
	mp3MinRead = 4096
)

// MP3Descriptor registers the MP3 codec.
func MP3Descriptor() Descriptor {
	return Descriptor{
		ID:       'm',
		Name:     "mp3",
		Types:    []string{"audio/mpeg", "audio/mp3", "mp3"},
		MinRead:  mp3MinRead,
		MinSpace: mp3FrameFrames,
		New:      NewMP3,
	}
}

// MP3Codec decodes MPEG audio.
type MP3Codec struct {
	decoder *mp3.Decoder
	tagged  bool // ID3 check done
	tag     skipper
	buf     [mp3FrameBytes]byte
	pcm     []int16
	out     *delivery
	err     error
}

// NewMP3 creates an MP3 codec.
func NewMP3() Codec {
	return &MP3Codec{}
}

// Open implements Codec.
func (c *MP3Codec) Open(s *Session, _ Hint) error {
	c.pcm = make([]int16, mp3FrameFrames*2)
	c.out = newDelivery(mp3FrameFrames)
	return nil
}

// Close implements Codec.
func (c *MP3Codec) Close() {
	c.decoder = nil
	c.pcm = nil
	c.out = nil
}

// Format implements Formatter.
func (c *MP3Codec) Format() (audio.Format, bool) {
	if c.decoder == nil {
		return audio.Format{}, false
	}
	return c.out.format, true
}

// Err returns the error that made Decode return Error.
func (c *MP3Codec) Err() error { return c.err }

// Stats implements StatsReporter.
func (c *MP3Codec) Stats() Stats {
	if c.out == nil {
		return Stats{}
	}
	return c.out.stats
}

// Decode implements Codec.
func (c *MP3Codec) Decode(s *Session) Result {
	if !c.tagged {
		return c.checkTag(s)
	}
	if res, busy := c.tag.step(s); busy {
		return res
	}
	if c.decoder == nil {
		return c.open(s)
	}

	c.out.handshake(s)
	if c.out.flushPending(s) {
		return Running
	}

	n, err := c.decoder.Read(c.buf[:])
	if n > 0 {
		samples := n / 2
		for i := 0; i < samples; i++ {
			c.pcm[i] = int16(binary.LittleEndian.Uint16(c.buf[i*2:]))
		}
		c.out.deliver(s, native{channels: 2, i16: c.pcm[:samples&^1]})
		return Running
	}
	if err != nil && !errors.Is(err, io.EOF) {
		log.Printf("mp3 decode failed, ending track: %v", err)
		return Complete
	}
	return c.starved(s)
}

func (c *MP3Codec) starved(s *Session) Result {
	if s.Streaming() {
		return Running
	}
	log.Printf("mp3 stream ended")
	return Complete
}

func (c *MP3Codec) checkTag(s *Session) Result {
	var h [10]byte
	if n := s.In.Peek(h[:]); n < len(h) && s.Streaming() {
		return Running
	}
	c.tag.left = id3Size(h[:])
	if c.tag.left > 0 {
		s.debugf("mp3: skipping %d byte ID3v2 tag", c.tag.left)
	}
	c.tagged = true
	return Running
}

func (c *MP3Codec) open(s *Session) Result {
	if s.Drained() {
		return c.starved(s)
	}
	dec, err := mp3.NewDecoder(ringReader{in: s.In})
	if err != nil {
		if s.Drained() {
			return c.starved(s)
		}
		c.err = fmt.Errorf("mp3: failed to create mp3 decoder: %w", err)
		log.Printf("Track aborted: %v", c.err)
		return Error
	}
	c.decoder = dec
	c.out.reset(audio.Format{
		Codec:      "mp3",
		SampleRate: dec.SampleRate(),
		Channels:   2,
		BitDepth:   16,
	}, 0)
	s.debugf("mp3: negotiated %s", c.out.format)
	return Running
}
