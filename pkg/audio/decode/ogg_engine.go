// ABOUTME: Decode engine for Ogg-framed codecs
// ABOUTME: Negotiates identification, comment and setup headers, then decodes one packet per step
package decode

import (
	"bytes"
	"fmt"
	"log"

	"github.com/Sendspin/sendspin-core/pkg/audio"
	"github.com/Sendspin/sendspin-core/pkg/audio/ogg"
	"github.com/Sendspin/sendspin-core/pkg/audio/ring"
)

// oggMinRead is the input the orchestrator waits for before stepping an Ogg
// codec while the transport is streaming.
const oggMinRead = 4096

// StreamParams are the values negotiated from an identification header.
type StreamParams struct {
	Channels   int
	SampleRate int
	PreSkip    int
	OutputGain int16
}

// oggCodec is the codec-specific part of an Ogg-framed format.
type oggCodec interface {
	name() string
	magic() []byte
	parseID(pkt []byte) (StreamParams, error)
	newDecoder(p StreamParams) error
	// hasSetup reports whether a setup header follows the comment header.
	hasSetup() bool
	setup(pkt []byte) error
	decode(pkt []byte) (native, error)
	format(p StreamParams) audio.Format
	close()
}

type oggState int

const (
	stateSync oggState = iota
	stateIDHeader
	stateCommentHeader
	stateSetupHeader
	stateSteady
)

func (st oggState) String() string {
	switch st {
	case stateSync:
		return "sync"
	case stateIDHeader:
		return "id-header"
	case stateCommentHeader:
		return "comment-header"
	case stateSetupHeader:
		return "setup-header"
	case stateSteady:
		return "steady"
	default:
		return fmt.Sprintf("state(%d)", int(st))
	}
}

// pull outcomes
type pullResult int

const (
	pullStarved pullResult = iota // no complete page in the input
	pullPage                      // a page was consumed but completed no packet
	pullPacket
)

// oggEngine drives an oggCodec through header negotiation and steady decode.
type oggEngine struct {
	codec oggCodec

	state  oggState
	sync   ogg.Sync
	stream *ogg.Stream
	page   ogg.Page

	params  StreamParams
	decoder bool // codec holds a live decoder
	opened  bool
	out     *delivery
	err     error
}

func newOggEngine(c oggCodec, maxFrames int) *oggEngine {
	return &oggEngine{
		codec: c,
		out:   newDelivery(maxFrames),
	}
}

// Open resets the engine to search for the first page.
func (e *oggEngine) Open(s *Session, _ Hint) error {
	e.state = stateSync
	e.sync.Reset()
	e.opened = false
	e.err = nil
	e.out.reset(audio.Format{}, 0)
	return nil
}

// Close releases the decoder. Safe to call once per Open.
func (e *oggEngine) Close() {
	if e.decoder {
		e.codec.close()
		e.decoder = false
	}
	e.opened = false
	e.out.pending = nil
}

// Format returns the negotiated format once the identification header was read.
func (e *oggEngine) Format() (audio.Format, bool) {
	if e.state <= stateIDHeader {
		return audio.Format{}, false
	}
	return e.out.format, true
}

// Err returns the error that made Decode return Error.
func (e *oggEngine) Err() error { return e.err }

// Stats returns the delivery counters.
func (e *oggEngine) Stats() Stats { return e.out.stats }

// Decode runs one step: a header packet, an overflow flush, or one audio packet.
func (e *oggEngine) Decode(s *Session) Result {
	if e.state == stateSteady {
		e.out.handshake(s)
		if e.out.flushPending(s) {
			return Running
		}
	}

	pkt, res := e.pull(s)
	switch res {
	case pullStarved:
		return e.idle(s)
	case pullPage:
		return Running
	}

	if pkt.Truncated {
		s.debugf("%s: skipping packet: %v", e.codec.name(), ogg.ErrPacketTooLarge)
		return Running
	}
	if e.state != stateSteady {
		return e.header(s, pkt.Data)
	}
	if len(pkt.Data) == 0 {
		return Running
	}

	src, err := e.codec.decode(pkt.Data)
	if err != nil {
		log.Printf("%s decode failed, ending track: %v", e.codec.name(), err)
		return Complete
	}
	e.out.deliver(s, src)
	return Running
}

// idle decides what an empty input means.
func (e *oggEngine) idle(s *Session) Result {
	if !s.Drained() {
		return Running
	}
	log.Printf("%s stream ended in state %s", e.codec.name(), e.state)
	return Complete
}

func (e *oggEngine) fail(err error) Result {
	e.err = fmt.Errorf("%s: %w", e.codec.name(), err)
	log.Printf("Track aborted: %v", e.err)
	return Error
}

// header handles one packet during negotiation.
func (e *oggEngine) header(s *Session, pkt []byte) Result {
	switch e.state {
	case stateIDHeader:
		magic := e.codec.magic()
		if !bytes.HasPrefix(pkt, magic) {
			return e.fail(fmt.Errorf("%w: %q", ErrBadMagic, pkt[:min(len(pkt), len(magic))]))
		}
		params, err := e.codec.parseID(pkt)
		if err != nil {
			return e.fail(err)
		}
		if params.Channels < 1 || params.Channels > 2 {
			return e.fail(fmt.Errorf("%w: %d", ErrUnsupportedChannels, params.Channels))
		}
		if err := e.codec.newDecoder(params); err != nil {
			return e.fail(fmt.Errorf("create decoder: %w", err))
		}
		e.decoder = true
		e.params = params
		e.out.reset(e.codec.format(params), params.PreSkip)
		s.debugf("%s: negotiated %+v", e.codec.name(), params)
		e.state = stateCommentHeader

	case stateCommentHeader:
		if e.codec.hasSetup() {
			e.state = stateSetupHeader
			return Running
		}
		e.opened = true
		e.state = stateSteady

	case stateSetupHeader:
		if err := e.codec.setup(pkt); err != nil {
			return e.fail(fmt.Errorf("setup header: %w", err))
		}
		e.opened = true
		e.state = stateSteady
	}
	return Running
}

// pull extracts the next packet, loading at most one page. A page that is
// ignored still counts as a step.
func (e *oggEngine) pull(s *Session) (ogg.Packet, pullResult) {
	for {
		if e.stream != nil && e.state != stateSync {
			if pkt, ok := e.stream.PacketOut(); ok {
				return pkt, pullPacket
			}
		}

		if e.sync.PageOut(&e.page) {
			if !e.acceptPage(s) {
				return ogg.Packet{}, pullPage
			}
			if pkt, ok := e.stream.PacketOut(); ok {
				return pkt, pullPacket
			}
			return ogg.Packet{}, pullPage
		}

		if e.fill(s) == 0 {
			return ogg.Packet{}, pullStarved
		}
	}
}

// acceptPage routes a page into the packet stream. A stream is bound only by
// its first page. Pages of other logical streams are ignored unless they
// begin a chained stream.
func (e *oggEngine) acceptPage(s *Session) bool {
	switch {
	case e.state == stateSync:
		if !e.page.BOS() {
			s.debugf("%s: skipping page of stream %d before a stream start", e.codec.name(), e.page.Serial)
			return false
		}
		if e.stream == nil {
			e.stream = ogg.NewStream(e.page.Serial)
		} else {
			e.stream.Reset(e.page.Serial)
		}
		e.state = stateIDHeader

	case e.page.Serial != e.stream.Serial():
		if !e.page.BOS() {
			return false
		}
		e.chain(s)
	}

	if err := e.stream.PageIn(&e.page); err != nil {
		s.debugf("%s: dropping page: %v", e.codec.name(), err)
		return false
	}
	return true
}

// chain restarts negotiation for a new logical stream that follows the
// current one. The new stream's first frames get their own track-start marker.
func (e *oggEngine) chain(s *Session) {
	log.Printf("%s: chained stream %d follows %d", e.codec.name(), e.page.Serial, e.stream.Serial())
	if e.decoder {
		e.codec.close()
		e.decoder = false
	}
	e.stream.Reset(e.page.Serial)
	e.state = stateIDHeader
	e.opened = false

	s.Out.Lock()
	s.newStream = true
	s.fadeIn = false
	s.Out.Unlock()
}

// fill moves one bounded chunk from the input buffer into the page sync.
func (e *oggEngine) fill(s *Session) int {
	s.In.Lock()
	defer s.In.Unlock()

	n := min(s.In.ContiguousReadable(), e.sync.Space(), ring.MaxChunk)
	if n == 0 {
		return 0
	}
	e.sync.Write(s.In.ReadRegion()[:n])
	s.In.AdvanceRead(n)
	return n
}
