// ABOUTME: Ogg page layout and checksum
// ABOUTME: Parses page headers and computes the Ogg CRC-32
package ogg

import "encoding/binary"

const (
	// HeaderSize is the fixed part of a page header, before the segment table.
	HeaderSize = 27
	// MaxPageSize is the largest possible page: header, 255 lacing values and 255*255 body bytes.
	MaxPageSize = HeaderSize + 255 + 255*255

	capturePattern = "OggS"
)

// Header type flags
const (
	FlagContinued = 0x01
	FlagBOS       = 0x02
	FlagEOS       = 0x04
)

// Page is one parsed Ogg page. Segments and Body alias the Sync buffer and
// are only valid until the next call into the Sync.
type Page struct {
	Version    byte
	Flags      byte
	GranulePos int64
	Serial     uint32
	Sequence   uint32
	Segments   []byte
	Body       []byte
}

// Continued reports whether the first packet continues one from the previous page.
func (p *Page) Continued() bool { return p.Flags&FlagContinued != 0 }

// BOS reports whether this is the first page of a logical stream.
func (p *Page) BOS() bool { return p.Flags&FlagBOS != 0 }

// EOS reports whether this is the last page of a logical stream.
func (p *Page) EOS() bool { return p.Flags&FlagEOS != 0 }

var crcTable = func() (t [256]uint32) {
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

// crcUpdate folds p into crc using the Ogg polynomial (unreflected, zero init).
func crcUpdate(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// pageChecksum computes the checksum of a page with its CRC field treated as zero.
func pageChecksum(header, body []byte) uint32 {
	var zero [4]byte
	crc := crcUpdate(0, header[:22])
	crc = crcUpdate(crc, zero[:])
	crc = crcUpdate(crc, header[26:])
	return crcUpdate(crc, body)
}

// AppendPage encodes a page with the given fields and body segmentation and
// appends it to dst. segments must describe exactly len(body) bytes.
func AppendPage(dst []byte, flags byte, granule int64, serial, sequence uint32, segments, body []byte) []byte {
	header := make([]byte, HeaderSize+len(segments))
	copy(header, capturePattern)
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:], uint64(granule))
	binary.LittleEndian.PutUint32(header[14:], serial)
	binary.LittleEndian.PutUint32(header[18:], sequence)
	header[26] = byte(len(segments))
	copy(header[HeaderSize:], segments)
	binary.LittleEndian.PutUint32(header[22:], pageChecksum(header, body))

	dst = append(dst, header...)
	return append(dst, body...)
}
