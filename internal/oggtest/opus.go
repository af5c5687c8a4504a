// ABOUTME: Opus packet encoding for tests
// ABOUTME: Encodes generated tones with libopus so decode tests run on real packets
package oggtest

import (
	"fmt"
	"math"

	"gopkg.in/hraban/opus.v2"
)

// OpusFrameSize is 20ms at 48kHz.
const OpusFrameSize = 960

// Tone returns frames of an interleaved 16-bit sine wave.
func Tone(frames, channels int, freq float64) []int16 {
	pcm := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/48000) * 16000)
		for c := 0; c < channels; c++ {
			pcm[i*channels+c] = v
		}
	}
	return pcm
}

// EncodeOpus encodes pcm into 20ms Opus packets. A trailing partial frame is dropped.
func EncodeOpus(pcm []int16, channels int) ([][]byte, error) {
	enc, err := opus.NewEncoder(48000, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	step := OpusFrameSize * channels
	var packets [][]byte
	for off := 0; off+step <= len(pcm); off += step {
		data := make([]byte, 4000)
		n, err := enc.Encode(pcm[off:off+step], data)
		if err != nil {
			return nil, fmt.Errorf("opus encode error: %w", err)
		}
		packets = append(packets, data[:n])
	}
	return packets, nil
}
