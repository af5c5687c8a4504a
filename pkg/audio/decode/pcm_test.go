// ABOUTME: Tests for the PCM codec
// ABOUTME: Tests raw PCM layouts from open hints and WAVE header parsing
package decode

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMRawLayouts(t *testing.T) {
	tests := []struct {
		name  string
		hint  Hint
		input []byte
		want  []audio.Frame
	}{
		{
			name:  "16-bit stereo little-endian",
			hint:  Hint{SampleSize: 16, Channels: 2, SampleRate: 48000},
			input: []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01, 0x00, 0x00},
			want:  []audio.Frame{{1 << 8, -1 << 8}, {256 << 8, 0}},
		},
		{
			name:  "16-bit mono big-endian",
			hint:  Hint{SampleSize: 16, Channels: 1, BigEndian: true},
			input: []byte{0x01, 0x00},
			want:  []audio.Frame{{256 << 8, 256 << 8}},
		},
		{
			name:  "24-bit mono big-endian",
			hint:  Hint{SampleSize: 24, Channels: 1, BigEndian: true},
			input: []byte{0x12, 0x34, 0x56, 0xff, 0xff, 0xfe},
			want:  []audio.Frame{{0x123456, 0x123456}, {-2, -2}},
		},
		{
			name:  "8-bit unsigned stereo",
			hint:  Hint{SampleSize: 8, Channels: 2},
			input: []byte{0x80, 0xff, 0x00, 0x80},
			want:  []audio.Frame{{0, 127 << 16}, {-128 << 16, 0}},
		},
		{
			name:  "32-bit stereo drops trailing partial frame",
			hint:  Hint{SampleSize: 32, Channels: 2},
			input: []byte{0, 0, 0, 0x40, 0, 0, 0, 0xc0, 1, 2},
			want:  []audio.Frame{{0x400000, -0x400000}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCodecWithHint(t, NewPCM(), tt.hint, tt.input, len(tt.input), 4096, 8192, 8192)

			assert.Equal(t, Complete, res.result)
			assert.Equal(t, tt.want, res.frames)
		})
	}
}

func TestPCMOpenRejectsBadHints(t *testing.T) {
	s := NewSession(16, 16)

	err := NewPCM().Open(s, Hint{SampleSize: 12})
	require.Error(t, err)
	assert.Equal(t, "unsupported bit depth: 12 (supported: 8, 16, 24, 32)", err.Error())

	err = NewPCM().Open(s, Hint{Channels: 3})
	assert.ErrorIs(t, err, ErrUnsupportedChannels)
}

func TestPCMChunkSizeIndependent(t *testing.T) {
	input := make([]byte, 3*10007)
	for i := range input {
		input[i] = byte(i * 7)
	}
	hint := Hint{SampleSize: 24, Channels: 1}

	whole := runCodecWithHint(t, NewPCM(), hint, input, len(input), 1<<16, 1<<16, 1<<16)
	require.Len(t, whole.frames, 10007)

	for _, chunk := range []int{1, 5, 333, 4096} {
		got := runCodecWithHint(t, NewPCM(), hint, input, chunk, 4096, 5000, 999)
		assert.Equal(t, whole.frames, got.frames, "chunk %d", chunk)
	}
}

func wavFile(t *testing.T, rate, bits, channels int, samples []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bits, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: bits,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestPCMWaveHeaderOverridesHints(t *testing.T) {
	data := wavFile(t, 22050, 16, 1, []int{100, -100, 32767})

	// Splice an unknown odd-sized chunk in front of fmt to exercise skipping.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 5)
	list = append(list, 'a', 'b', 'c', 'd', 'e', 0)
	data = append(append(append([]byte{}, data[:12]...), list...), data[12:]...)

	res := runCodecWithHint(t, NewPCM(), Hint{SampleSize: 24, Channels: 2, BigEndian: true}, data, 7, 4096, 8192, 8192)

	assert.Equal(t, Complete, res.result)
	assert.Equal(t, []audio.Frame{{100 << 8, 100 << 8}, {-100 << 8, -100 << 8}, {32767 << 8, 32767 << 8}}, res.frames)
	require.Len(t, res.starts, 1)
	assert.Equal(t, audio.Format{Codec: "pcm", SampleRate: 22050, Channels: 1, BitDepth: 16}, res.starts[0].Format)
}

func TestPCMWaveFloatRejected(t *testing.T) {
	data := wavFile(t, 48000, 16, 2, []int{1, 2})
	// Patch the format tag to IEEE float.
	i := bytes.Index(data, []byte("fmt "))
	require.GreaterOrEqual(t, i, 0)
	binary.LittleEndian.PutUint16(data[i+8:], 3)

	codec := NewPCM()
	res := runCodec(t, codec, data, len(data), 4096, 8192, 8192)

	assert.Equal(t, Error, res.result)
	assert.Contains(t, codec.(*PCMCodec).Err().Error(), "unsupported WAVE format tag 0x3")
}

func TestPCMWaveStopsAtDataChunkEnd(t *testing.T) {
	data := wavFile(t, 48000, 16, 2, []int{1, -1, 2, -2})

	// Metadata after the samples must not play as audio.
	trailer := []byte("LIST")
	trailer = binary.LittleEndian.AppendUint32(trailer, 12)
	trailer = append(trailer, "INFOISFT\x00\x00\x00\x00"...)
	trailer = append(trailer, bytes.Repeat([]byte{0x7f}, 5000)...)
	data = append(data, trailer...)

	for _, chunk := range []int{3, len(data)} {
		res := runCodec(t, NewPCM(), data, chunk, 4096, 8192, 8192)

		assert.Equal(t, Complete, res.result, "chunk %d", chunk)
		assert.Equal(t, []audio.Frame{{1 << 8, -1 << 8}, {2 << 8, -2 << 8}}, res.frames, "chunk %d", chunk)
	}
}

func TestPCMWaveUnknownLengthPlaysToEnd(t *testing.T) {
	data := wavFile(t, 48000, 16, 1, []int{5, 6})
	i := bytes.Index(data, []byte("data"))
	require.GreaterOrEqual(t, i, 0)
	binary.LittleEndian.PutUint32(data[i+4:], 0xffffffff)
	data = append(data, 7, 0)

	res := runCodec(t, NewPCM(), data, len(data), 4096, 8192, 8192)

	assert.Equal(t, []audio.Frame{{5 << 8, 5 << 8}, {6 << 8, 6 << 8}, {7 << 8, 7 << 8}}, res.frames)
}
