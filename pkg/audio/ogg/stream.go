// ABOUTME: Ogg logical stream packet reassembly
// ABOUTME: Splits pages into packets, joining packets that span pages
package ogg

import (
	"errors"
	"fmt"
)

// MaxPacketSize bounds a reassembled packet. Larger packets are reported
// with Truncated set and no data.
const MaxPacketSize = 1 << 17

var (
	// ErrSerialMismatch is returned when a page belongs to another logical stream.
	ErrSerialMismatch = errors.New("ogg: page serial does not match stream")
	// ErrPagePending is returned when PageIn is called before the previous page's packets were drained.
	ErrPagePending = errors.New("ogg: previous page not fully consumed")
	// ErrPacketTooLarge describes a packet dropped for exceeding MaxPacketSize.
	ErrPacketTooLarge = errors.New("ogg: packet exceeds maximum size")
)

// Packet is one reassembled packet. Data is only valid until the next
// PacketOut or PageIn.
type Packet struct {
	Data []byte
	// Truncated marks a packet that exceeded MaxPacketSize; Data is empty.
	Truncated bool
	// BOS and EOS mirror the flags of the page the packet completed on.
	BOS bool
	EOS bool
	// GranulePos is set on the last packet completed on a page, -1 otherwise.
	GranulePos int64
}

// Stream reassembles the packets of a single logical stream. It keeps a copy
// of the current page so that the Sync buffer can be refilled between packets.
type Stream struct {
	serial  uint32
	nextSeq uint32
	started bool

	body    [255 * 255]byte
	lacing  [255]byte
	nseg    int
	seg     int
	off     int
	flags   byte
	granule int64

	packet    []byte
	oversize  bool
	partial   bool // a packet is being continued across pages
	skipFirst bool // drop the continued head of a page we joined mid-packet
	consumed  bool // last returned packet must be cleared on the next call
	lost      int
}

// NewStream returns a stream ready to accept pages of the given serial.
func NewStream(serial uint32) *Stream {
	s := &Stream{packet: make([]byte, 0, MaxPacketSize)}
	s.Reset(serial)
	return s
}

// Reset forgets all state and binds the stream to serial.
func (s *Stream) Reset(serial uint32) {
	s.serial = serial
	s.started = false
	s.nseg, s.seg, s.off = 0, 0, 0
	s.packet = s.packet[:0]
	s.oversize = false
	s.partial = false
	s.skipFirst = false
	s.consumed = false
}

// Serial returns the serial number the stream is bound to.
func (s *Stream) Serial() uint32 { return s.serial }

// Lost returns how many partial packets were dropped because of sequence gaps.
func (s *Stream) Lost() int { return s.lost }

// Pending reports whether the current page still holds unread segments.
func (s *Stream) Pending() bool { return s.seg < s.nseg }

// PageIn loads a page. All packets of the previous page must have been taken.
func (s *Stream) PageIn(p *Page) error {
	if p.Serial != s.serial {
		return fmt.Errorf("%w: got %d, want %d", ErrSerialMismatch, p.Serial, s.serial)
	}
	if s.Pending() {
		return ErrPagePending
	}

	if s.consumed {
		s.dropPartial()
		s.consumed = false
	}

	switch {
	case !s.started:
		s.skipFirst = p.Continued()
	case p.Sequence != s.nextSeq || p.Continued() != s.partial:
		// Pages went missing or the continuation chain broke: whatever
		// was being continued is incomplete.
		if s.partial {
			s.lost++
		}
		s.dropPartial()
		s.skipFirst = p.Continued()
	}
	s.started = true
	s.nextSeq = p.Sequence + 1

	s.nseg = copy(s.lacing[:], p.Segments)
	copy(s.body[:], p.Body)
	s.seg, s.off = 0, 0
	s.flags = p.Flags
	s.granule = p.GranulePos
	return nil
}

func (s *Stream) dropPartial() {
	s.packet = s.packet[:0]
	s.oversize = false
	s.partial = false
}

// PacketOut returns the next complete packet from the loaded pages.
func (s *Stream) PacketOut() (Packet, bool) {
	if s.consumed {
		s.dropPartial()
		s.consumed = false
	}

	for s.seg < s.nseg {
		l := int(s.lacing[s.seg])
		chunk := s.body[s.off : s.off+l]
		s.seg++
		s.off += l

		if s.skipFirst {
			if l < 255 {
				s.skipFirst = false
			}
			continue
		}

		if len(s.packet)+l > cap(s.packet) {
			s.oversize = true
		}
		if !s.oversize {
			s.packet = append(s.packet, chunk...)
		}
		s.partial = true

		if l < 255 {
			pkt := Packet{
				Data:       s.packet,
				Truncated:  s.oversize,
				BOS:        s.flags&FlagBOS != 0,
				EOS:        s.flags&FlagEOS != 0 && s.lastPacketOnPage(),
				GranulePos: -1,
			}
			if pkt.Truncated {
				pkt.Data = nil
			}
			if s.lastPacketOnPage() {
				pkt.GranulePos = s.granule
			}
			s.consumed = true
			return pkt, true
		}
	}
	return Packet{}, false
}

// lastPacketOnPage reports whether no further packet completes on the current page.
func (s *Stream) lastPacketOnPage() bool {
	for i := s.seg; i < s.nseg; i++ {
		if s.lacing[i] < 255 {
			return false
		}
	}
	return true
}
