// ABOUTME: Tests for the WAV file output
// ABOUTME: Writes frames and reads them back with the go-audio decoder
package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	require.True(t, d.IsValidFile())
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return d, buf.Data
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w := NewWAV(path)

	require.NoError(t, w.Open(44100, 2, 24))
	require.NoError(t, w.Write([]audio.Frame{{1, -1}, {0x123456, -0x123456}}))
	require.NoError(t, w.Write([]audio.Frame{{7, 8}}))
	require.NoError(t, w.Close())

	d, data := readWAV(t, path)
	assert.Equal(t, uint32(44100), d.SampleRate)
	assert.Equal(t, uint16(24), d.BitDepth)
	assert.Equal(t, uint16(2), d.NumChans)
	assert.Equal(t, []int{1, -1, 0x123456, -0x123456, 7, 8}, data)
}

func TestWAVFormatChangeStartsNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w := NewWAV(path)

	require.NoError(t, w.Open(48000, 2, 16))
	require.NoError(t, w.Write([]audio.Frame{{256, 512}}))
	require.NoError(t, w.Open(48000, 2, 16), "same format keeps the file")
	require.NoError(t, w.Write([]audio.Frame{{768, 1024}}))
	require.NoError(t, w.Open(44100, 2, 16))
	require.NoError(t, w.Write([]audio.Frame{{-256, 0}}))
	require.NoError(t, w.Close())

	paths := w.Paths()
	require.Equal(t, []string{path, filepath.Join(filepath.Dir(path), "out-2.wav")}, paths)

	_, first := readWAV(t, paths[0])
	assert.Equal(t, []int{1, 2, 3, 4}, first)
	d, second := readWAV(t, paths[1])
	assert.Equal(t, uint32(44100), d.SampleRate)
	assert.Equal(t, []int{-1, 0}, second)
}

func TestWAVRejectsWriteBeforeOpen(t *testing.T) {
	w := NewWAV(filepath.Join(t.TempDir(), "out.wav"))
	assert.ErrorIs(t, w.Write([]audio.Frame{{1, 1}}), ErrNotOpen)
	assert.Error(t, w.Open(48000, 1, 16))
	assert.NoError(t, w.Close())
}
