// ABOUTME: Vorbis codec for Ogg-framed streams
// ABOUTME: Feeds the three Vorbis headers to a pure-Go decoder and decodes packets to float32
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/jfreymuth/vorbis"
)

const (
	vorbisIDSize = 30
	// vorbisMaxFrames is half the largest Vorbis block.
	vorbisMaxFrames = 4096
)

// emptyVorbisComment is a comment header with no vendor string and no
// comments. The decoder requires one; the stream's own is skipped unread.
var emptyVorbisComment = []byte{3, 'v', 'o', 'r', 'b', 'i', 's', 0, 0, 0, 0, 0, 0, 0, 0, 1}

// VorbisDescriptor registers the Ogg Vorbis codec.
func VorbisDescriptor() Descriptor {
	return Descriptor{
		ID:       'v',
		Name:     "vorbis",
		Types:    []string{"audio/ogg; codecs=vorbis", "audio/ogg", "audio/vorbis", "vorbis"},
		MinRead:  oggMinRead,
		MinSpace: vorbisMaxFrames,
		New:      NewVorbis,
	}
}

// NewVorbis creates an Ogg Vorbis codec.
func NewVorbis() Codec {
	return newOggEngine(&vorbisCodec{}, vorbisMaxFrames)
}

type vorbisCodec struct {
	decoder  *vorbis.Decoder
	id       []byte
	channels int
}

func (c *vorbisCodec) name() string   { return "vorbis" }
func (c *vorbisCodec) magic() []byte  { return []byte("\x01vorbis") }
func (c *vorbisCodec) hasSetup() bool { return true }

func (c *vorbisCodec) parseID(pkt []byte) (StreamParams, error) {
	if len(pkt) < vorbisIDSize {
		return StreamParams{}, fmt.Errorf("%w: vorbis identification header is %d bytes", ErrHeaderTruncated, len(pkt))
	}
	c.id = append(c.id[:0], pkt...)
	return StreamParams{
		Channels:   int(pkt[11]),
		SampleRate: int(binary.LittleEndian.Uint32(pkt[12:])),
	}, nil
}

func (c *vorbisCodec) newDecoder(p StreamParams) error {
	dec := &vorbis.Decoder{}
	if err := dec.ReadHeader(c.id); err != nil {
		return fmt.Errorf("vorbis identification header: %w", err)
	}
	if err := dec.ReadHeader(emptyVorbisComment); err != nil {
		return fmt.Errorf("vorbis comment header: %w", err)
	}
	c.decoder = dec
	c.channels = p.Channels
	return nil
}

func (c *vorbisCodec) setup(pkt []byte) error {
	return c.decoder.ReadHeader(pkt)
}

func (c *vorbisCodec) decode(pkt []byte) (native, error) {
	samples, err := c.decoder.Decode(pkt)
	if err != nil {
		return native{}, fmt.Errorf("vorbis decode failed: %w", err)
	}
	return native{channels: c.channels, f32: samples}, nil
}

func (c *vorbisCodec) format(p StreamParams) audio.Format {
	return audio.Format{
		Codec:      "vorbis",
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
		BitDepth:   24,
	}
}

func (c *vorbisCodec) close() {
	c.decoder = nil
}
