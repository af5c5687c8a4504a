// ABOUTME: Tests for the FLAC codec
// ABOUTME: Tests signature checks, ID3 and metadata block skipping up to decoder creation
package decode

import (
	"encoding/binary"
	"testing"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamInfo builds a STREAMINFO block body.
func streamInfo(rate, channels, bits int) []byte {
	b := make([]byte, 0, flacStreamInfoSize)
	b = binary.BigEndian.AppendUint16(b, 4096) // min block
	b = binary.BigEndian.AppendUint16(b, 4096) // max block
	b = append(b, 0, 0, 0, 0, 0, 0)            // frame sizes unknown
	v := uint64(rate)<<44 | uint64(channels-1)<<41 | uint64(bits-1)<<36
	b = binary.BigEndian.AppendUint64(b, v)
	return append(b, make([]byte, 16)...) // MD5
}

func metaBlock(kind byte, last bool, body []byte) []byte {
	h := kind
	if last {
		h |= 0x80
	}
	n := len(body)
	return append([]byte{h, byte(n >> 16), byte(n >> 8), byte(n)}, body...)
}

func flacHeader(channels int) []byte {
	var b []byte
	b = append(b, "fLaC"...)
	b = append(b, metaBlock(0, false, streamInfo(44100, channels, 16))...)
	b = append(b, metaBlock(4, false, make([]byte, 5000))...) // vorbis comment
	b = append(b, metaBlock(1, true, make([]byte, 100))...)   // padding
	return b
}

// stepFLAC feeds data and steps until the decoder is open or the codec stops.
func stepFLAC(t *testing.T, data []byte) (*FLACCodec, *Session, Result) {
	t.Helper()

	c := NewFLAC().(*FLACCodec)
	s := NewSession(1<<16, 1<<14)
	require.NoError(t, c.Open(s, Hint{}))
	require.Equal(t, len(data), s.In.Write(data[:min(len(data), 4096)])+s.In.Write(data[min(len(data), 4096):]))
	s.SetConnState(Disconnected)

	res := Running
	for i := 0; i < 100 && res == Running && c.stage != flacFrames; i++ {
		res = c.Decode(s)
	}
	return c, s, res
}

func TestFLACSkipsMetadataAndOpens(t *testing.T) {
	c, s, res := stepFLAC(t, flacHeader(2))
	defer c.Close()

	require.Equal(t, Running, res)
	format, ok := c.Format()
	require.True(t, ok)
	assert.Equal(t, audio.Format{Codec: "flac", SampleRate: 44100, Channels: 2, BitDepth: 16}, format)

	// No frames follow, so the track ends.
	assert.Equal(t, Complete, c.Decode(s))
}

func TestFLACSkipsID3(t *testing.T) {
	tag := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 10}
	tag = append(tag, make([]byte, 10)...)

	c, _, res := stepFLAC(t, append(tag, flacHeader(1)...))
	defer c.Close()

	require.Equal(t, Running, res)
	format, ok := c.Format()
	require.True(t, ok)
	assert.Equal(t, 1, format.Channels)
}

func TestFLACBadSignature(t *testing.T) {
	c, _, res := stepFLAC(t, []byte("OggS\x00\x02 not flac"))
	defer c.Close()

	assert.Equal(t, Error, res)
	assert.ErrorIs(t, c.Err(), ErrBadMagic)
}

func TestFLACRejectsSurround(t *testing.T) {
	c, _, res := stepFLAC(t, flacHeader(6))
	defer c.Close()

	assert.Equal(t, Error, res)
	assert.ErrorIs(t, c.Err(), ErrUnsupportedChannels)
}

func TestFLACWithoutStreamInfo(t *testing.T) {
	data := append([]byte("fLaC"), metaBlock(1, true, make([]byte, 8))...)

	c, _, res := stepFLAC(t, data)
	defer c.Close()

	assert.Equal(t, Error, res)
	assert.ErrorIs(t, c.Err(), ErrHeaderTruncated)
}
