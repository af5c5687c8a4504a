// ABOUTME: Opus codec for Ogg-framed streams
// ABOUTME: Parses OpusHead and decodes packets to 48kHz int16 via libopus
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	// opusRate is the rate libopus always decodes at here.
	opusRate = 48000
	// opusMaxFrames is the longest Opus packet: 120ms at 48kHz.
	opusMaxFrames = 5760
	opusHeadSize  = 19
)

// OpusDescriptor registers the Ogg Opus codec.
func OpusDescriptor() Descriptor {
	return Descriptor{
		ID:       'o',
		Name:     "opus",
		Types:    []string{"audio/ogg; codecs=opus", "audio/opus", "opus"},
		MinRead:  oggMinRead,
		MinSpace: opusMaxFrames,
		New:      NewOpus,
	}
}

// NewOpus creates an Ogg Opus codec.
func NewOpus() Codec {
	return newOggEngine(&opusCodec{}, opusMaxFrames)
}

type opusCodec struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
}

func (c *opusCodec) name() string  { return "opus" }
func (c *opusCodec) magic() []byte { return []byte("OpusHead") }
func (c *opusCodec) hasSetup() bool {
	return false
}

func (c *opusCodec) parseID(pkt []byte) (StreamParams, error) {
	if len(pkt) < opusHeadSize {
		return StreamParams{}, fmt.Errorf("%w: OpusHead is %d bytes", ErrHeaderTruncated, len(pkt))
	}
	// Minor versions stay compatible.
	if version := pkt[8]; version>>4 != 0 {
		return StreamParams{}, fmt.Errorf("%w: OpusHead version %d", ErrUnsupportedVersion, version)
	}
	switch family := pkt[18]; family {
	case 0:
	case 1:
		if err := checkOpusMapping(pkt); err != nil {
			return StreamParams{}, err
		}
	default:
		return StreamParams{}, fmt.Errorf("%w: family %d", ErrUnsupportedMapping, family)
	}
	return StreamParams{
		Channels:   int(pkt[9]),
		PreSkip:    int(binary.LittleEndian.Uint16(pkt[10:])),
		SampleRate: int(binary.LittleEndian.Uint32(pkt[12:])),
		OutputGain: int16(binary.LittleEndian.Uint16(pkt[16:])),
	}, nil
}

// checkOpusMapping accepts a family 1 table only when it describes a single
// stream in natural channel order, which the plain decoder handles.
func checkOpusMapping(pkt []byte) error {
	channels := int(pkt[9])
	if len(pkt) < opusHeadSize+2+channels {
		return fmt.Errorf("%w: OpusHead mapping table is %d bytes", ErrHeaderTruncated, len(pkt)-opusHeadSize)
	}
	streams, coupled := int(pkt[19]), int(pkt[20])
	if streams != 1 || coupled != channels-1 {
		return fmt.Errorf("%w: %d streams, %d coupled", ErrUnsupportedMapping, streams, coupled)
	}
	for i, m := range pkt[21 : 21+channels] {
		if int(m) != i {
			return fmt.Errorf("%w: channel %d maps to %d", ErrUnsupportedMapping, i, m)
		}
	}
	return nil
}

func (c *opusCodec) newDecoder(p StreamParams) error {
	dec, err := opus.NewDecoder(opusRate, p.Channels)
	if err != nil {
		return fmt.Errorf("failed to create opus decoder: %w", err)
	}
	c.decoder = dec
	c.channels = p.Channels
	c.pcm = make([]int16, opusMaxFrames*p.Channels)
	return nil
}

func (c *opusCodec) setup([]byte) error { return nil }

func (c *opusCodec) decode(pkt []byte) (native, error) {
	n, err := c.decoder.Decode(pkt, c.pcm)
	if err != nil {
		return native{}, fmt.Errorf("opus decode failed: %w", err)
	}
	return native{channels: c.channels, i16: c.pcm[:n*c.channels]}, nil
}

// format reports the decode rate; the header's input rate is informational.
func (c *opusCodec) format(p StreamParams) audio.Format {
	return audio.Format{
		Codec:      "opus",
		SampleRate: opusRate,
		Channels:   p.Channels,
		BitDepth:   16,
		OutputGain: p.OutputGain,
	}
}

func (c *opusCodec) close() {
	c.decoder = nil
	c.pcm = nil
}
