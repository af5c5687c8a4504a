// ABOUTME: WAV file output implementation
// ABOUTME: Records rendered frames to WAV files via go-audio/wav, one file per output format
package output

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV writes frames to a file instead of a device. A format change closes the
// current file and starts the next one, numbered after the first.
type WAV struct {
	volume

	path       string
	file       *os.File
	enc        *wav.Encoder
	sampleRate int
	bitDepth   int
	paths      []string

	scratch []audio.Frame
	buf     *goaudio.IntBuffer
}

// NewWAV creates a WAV output writing to path.
func NewWAV(path string) *WAV {
	w := &WAV{path: path}
	w.reset()
	return w
}

// Open starts a file for the format. Bit depths other than 16, 24 and 32 are
// widened to the next of those.
func (w *WAV) Open(sampleRate, channels, bitDepth int) error {
	if channels != 2 {
		return fmt.Errorf("unsupported channel count: %d (frames are stereo)", channels)
	}
	bits := containerBits(bitDepth)
	if w.enc != nil && w.sampleRate == sampleRate && w.bitDepth == bits {
		return nil
	}
	if err := w.finish(); err != nil {
		return err
	}

	path := w.nextPath()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	w.file = f
	w.enc = wav.NewEncoder(f, sampleRate, bits, channels, 1)
	w.sampleRate = sampleRate
	w.bitDepth = bits
	w.paths = append(w.paths, path)
	w.buf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: bits,
	}

	log.Printf("Audio output initialized: %dHz, %d channels, %d-bit (wav %s)", sampleRate, channels, bits, path)
	return nil
}

// Write appends frames to the current file.
func (w *WAV) Write(frames []audio.Frame) error {
	if w.enc == nil {
		return ErrNotOpen
	}

	if cap(w.scratch) < len(frames) {
		w.scratch = make([]audio.Frame, len(frames))
	}
	scaled := w.apply(w.scratch, frames)

	data := w.buf.Data[:0]
	for _, f := range scaled {
		data = append(data, containerSample(f[0], w.bitDepth), containerSample(f[1], w.bitDepth))
	}
	w.buf.Data = data

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}
	return nil
}

// Close finalizes the current file.
func (w *WAV) Close() error {
	return w.finish()
}

// Paths returns the files written so far.
func (w *WAV) Paths() []string {
	return append([]string(nil), w.paths...)
}

func (w *WAV) finish() error {
	if w.enc == nil {
		return nil
	}
	err := w.enc.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.enc = nil
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}

func (w *WAV) nextPath() string {
	if len(w.paths) == 0 {
		return w.path
	}
	ext := filepath.Ext(w.path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(w.path, ext), len(w.paths)+1, ext)
}

func containerBits(bitDepth int) int {
	switch {
	case bitDepth <= 16:
		return 16
	case bitDepth <= 24:
		return 24
	default:
		return 32
	}
}

// containerSample converts a 24-bit range sample to the container width.
func containerSample(sample int32, bits int) int {
	switch bits {
	case 16:
		return int(audio.SampleToInt16(sample))
	case 32:
		return int(sample) << 8
	default:
		return int(sample)
	}
}
