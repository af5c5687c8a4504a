// ABOUTME: Incremental Ogg page synchronisation
// ABOUTME: Accepts bytes in arbitrary chunks and yields CRC-verified pages
package ogg

import (
	"bytes"
	"encoding/binary"
)

// SyncBufferSize holds one maximum-size page plus a read chunk.
const SyncBufferSize = MaxPageSize + 8192

// Sync recovers page boundaries from a raw byte stream. It owns a fixed
// buffer; callers feed it with Write as space allows and drain it with PageOut.
type Sync struct {
	buf     [SyncBufferSize]byte
	start   int
	end     int
	skipped int64
}

// Reset drops all buffered bytes.
func (s *Sync) Reset() {
	s.start, s.end = 0, 0
}

// Buffered returns the number of bytes waiting to be parsed.
func (s *Sync) Buffered() int { return s.end - s.start }

// Space returns how many bytes Write would accept.
func (s *Sync) Space() int { return len(s.buf) - s.Buffered() }

// Skipped returns the total number of bytes discarded while searching for pages.
func (s *Sync) Skipped() int64 { return s.skipped }

// Write copies as much of p as fits and returns the count. Pages returned by
// earlier PageOut calls are invalidated.
func (s *Sync) Write(p []byte) int {
	if s.end+len(p) > len(s.buf) && s.start > 0 {
		n := copy(s.buf[:], s.buf[s.start:s.end])
		s.start, s.end = 0, n
	}
	n := copy(s.buf[s.end:], p)
	s.end += n
	return n
}

// PageOut extracts the next complete page into p. It returns false when more
// bytes are needed. Bytes that cannot start a valid page are skipped.
func (s *Sync) PageOut(p *Page) bool {
	for {
		data := s.buf[s.start:s.end]
		if len(data) < HeaderSize {
			return false
		}

		if !bytes.HasPrefix(data, []byte(capturePattern)) {
			s.skip(data)
			continue
		}

		nseg := int(data[26])
		headerLen := HeaderSize + nseg
		if len(data) < headerLen {
			return false
		}
		bodyLen := 0
		for _, l := range data[HeaderSize:headerLen] {
			bodyLen += int(l)
		}
		if len(data) < headerLen+bodyLen {
			return false
		}

		header := data[:headerLen]
		body := data[headerLen : headerLen+bodyLen]
		if data[4] != 0 || binary.LittleEndian.Uint32(header[22:]) != pageChecksum(header, body) {
			// Not a real page: resume the search one byte further on.
			s.start++
			s.skipped++
			continue
		}

		p.Version = data[4]
		p.Flags = data[5]
		p.GranulePos = int64(binary.LittleEndian.Uint64(data[6:]))
		p.Serial = binary.LittleEndian.Uint32(data[14:])
		p.Sequence = binary.LittleEndian.Uint32(data[18:])
		p.Segments = data[HeaderSize:headerLen]
		p.Body = body

		s.start += headerLen + bodyLen
		return true
	}
}

// skip advances to the next possible capture pattern in data.
func (s *Sync) skip(data []byte) {
	next := bytes.IndexByte(data[1:], capturePattern[0])
	if next < 0 {
		s.skipped += int64(len(data))
		s.start = s.end
		return
	}
	s.skipped += int64(next + 1)
	s.start += next + 1
}
