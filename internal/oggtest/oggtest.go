// ABOUTME: Test helpers that build Ogg streams in memory
// ABOUTME: Packs packets into pages and builds Opus and Vorbis header packets
package oggtest

import (
	"encoding/binary"

	"github.com/Sendspin/sendspin-core/pkg/audio/ogg"
)

// Writer packs packets into Ogg pages.
type Writer struct {
	serial  uint32
	seq     uint32
	out     []byte
	segs    []byte
	body    []byte
	granule int64
	cont    bool
	bos     bool
}

// NewWriter returns a writer for one logical stream.
func NewWriter(serial uint32) *Writer {
	return &Writer{serial: serial, granule: -1, bos: true}
}

// Packet appends a packet, starting new pages whenever the segment table fills.
func (w *Writer) Packet(p []byte, granule int64) {
	rest := p
	started := false
	for {
		if len(w.segs) == 255 {
			w.emit(0)
			w.cont = started
		}
		started = true
		l := len(rest)
		if l > 255 {
			l = 255
		}
		w.segs = append(w.segs, byte(l))
		w.body = append(w.body, rest[:l]...)
		rest = rest[l:]
		if l < 255 {
			w.granule = granule
			return
		}
	}
}

// FlushPage ends the current page even if its segment table has room.
func (w *Writer) FlushPage() {
	if len(w.segs) > 0 {
		w.emit(0)
	}
}

// Bytes flushes any pending page, marking it end-of-stream, and returns the stream.
func (w *Writer) Bytes() []byte {
	w.emit(ogg.FlagEOS)
	return w.out
}

func (w *Writer) emit(extra byte) {
	flags := extra
	if w.bos {
		flags |= ogg.FlagBOS
		w.bos = false
	}
	if w.cont {
		flags |= ogg.FlagContinued
		w.cont = false
	}
	w.out = ogg.AppendPage(w.out, flags, w.granule, w.serial, w.seq, w.segs, w.body)
	w.seq++
	w.segs = w.segs[:0]
	w.body = w.body[:0]
	w.granule = -1
}

// Stream builds a complete single-page-per-packet-group stream: every
// perPage packets share a page, headers get pages of their own.
func Stream(serial uint32, headers [][]byte, packets [][]byte, perPage int) []byte {
	w := NewWriter(serial)
	for _, h := range headers {
		w.Packet(h, 0)
		w.FlushPage()
	}
	var granule int64
	for i, p := range packets {
		granule += 960
		w.Packet(p, granule)
		if perPage > 0 && (i+1)%perPage == 0 {
			w.FlushPage()
		}
	}
	return w.Bytes()
}

// OpusHead builds an Opus identification header.
func OpusHead(channels byte, preSkip uint16, inputRate uint32, gain int16) []byte {
	h := make([]byte, 19)
	copy(h, "OpusHead")
	h[8] = 1
	h[9] = channels
	binary.LittleEndian.PutUint16(h[10:], preSkip)
	binary.LittleEndian.PutUint32(h[12:], inputRate)
	binary.LittleEndian.PutUint16(h[16:], uint16(gain))
	return h
}

// OpusTags builds an Opus comment header with the given vendor and no comments.
func OpusTags(vendor string) []byte {
	h := make([]byte, 0, 16+len(vendor))
	h = append(h, "OpusTags"...)
	h = binary.LittleEndian.AppendUint32(h, uint32(len(vendor)))
	h = append(h, vendor...)
	return binary.LittleEndian.AppendUint32(h, 0)
}

// VorbisID builds a Vorbis identification header.
func VorbisID(channels byte, rate uint32) []byte {
	h := make([]byte, 30)
	h[0] = 1
	copy(h[1:], "vorbis")
	h[11] = channels
	binary.LittleEndian.PutUint32(h[12:], rate)
	h[28] = 0xb8 // blocksizes 256/2048
	h[29] = 1
	return h
}

// Pages splits a well-formed stream into its pages.
func Pages(data []byte) [][]byte {
	var pages [][]byte
	for len(data) >= 27 {
		n := 27 + int(data[26])
		for _, l := range data[27:n] {
			n += int(l)
		}
		pages = append(pages, data[:n])
		data = data[n:]
	}
	return pages
}
