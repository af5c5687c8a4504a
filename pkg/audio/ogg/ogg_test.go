// ABOUTME: Tests for Ogg page sync and packet reassembly
// ABOUTME: Verifies chunk-size independence, resync, spanning packets and loss handling
package ogg_test

import (
	"bytes"
	"testing"

	"github.com/Sendspin/sendspin-core/internal/oggtest"
	"github.com/Sendspin/sendspin-core/pkg/audio/ogg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackets() [][]byte {
	sizes := []int{1, 200, 255, 256, 510, 1000, 0, 70000, 3}
	packets := make([][]byte, len(sizes))
	for i, n := range sizes {
		p := make([]byte, n)
		for j := range p {
			p[j] = byte(i*31 + j)
		}
		packets[i] = p
	}
	return packets
}

// demux feeds data in chunks of the given size and collects every packet.
func demux(t *testing.T, data []byte, chunk int) [][]byte {
	t.Helper()

	var sync ogg.Sync
	var stream *ogg.Stream
	var page ogg.Page
	var out [][]byte

	drain := func() {
		for {
			pkt, ok := stream.PacketOut()
			if !ok {
				return
			}
			require.False(t, pkt.Truncated)
			out = append(out, bytes.Clone(pkt.Data))
		}
	}

	for len(data) > 0 || sync.Buffered() > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if n > sync.Space() {
			n = sync.Space()
		}
		sync.Write(data[:n])
		data = data[n:]

		for sync.PageOut(&page) {
			if stream == nil {
				stream = ogg.NewStream(page.Serial)
			}
			require.NoError(t, stream.PageIn(&page))
			drain()
		}
		if n == 0 {
			break
		}
	}
	return out
}

func TestReassemblyIsChunkSizeIndependent(t *testing.T) {
	packets := testPackets()
	data := oggtest.Stream(0x1234, nil, packets, 3)

	want := demux(t, data, len(data))
	require.Equal(t, packets, want)

	for _, chunk := range []int{1, 7, 27, 100, 4096, 65536} {
		got := demux(t, data, chunk)
		assert.Equal(t, want, got, "chunk size %d", chunk)
	}
}

func TestSyncSkipsGarbageAndCorruptPages(t *testing.T) {
	packets := [][]byte{[]byte("first"), []byte("second")}
	good := oggtest.Stream(7, nil, packets, 1)

	corrupt := bytes.Clone(good)
	corrupt[30] ^= 0xff // damage the first page body

	var data []byte
	data = append(data, []byte("garbage OggS not a page")...)
	data = append(data, corrupt...)
	data = append(data, good...)

	got := demux(t, data, 13)
	require.GreaterOrEqual(t, len(got), 2)
	// The damaged page is dropped; the intact copy follows.
	assert.Equal(t, []byte("second"), got[0])
	assert.Equal(t, packets, got[len(got)-2:])
}

func TestSyncRecordsSkippedBytes(t *testing.T) {
	var s ogg.Sync
	var p ogg.Page

	s.Write(bytes.Repeat([]byte{'x'}, 37))
	assert.False(t, s.PageOut(&p))
	assert.Equal(t, int64(37), s.Skipped())
	assert.Equal(t, 0, s.Buffered())
}

func TestPacketSpanningPages(t *testing.T) {
	big := bytes.Repeat([]byte{0xab}, 255*255+100)
	w := oggtest.NewWriter(9)
	w.Packet(big, 1)
	w.Packet([]byte("tail"), 2)
	data := w.Bytes()

	got := demux(t, data, 4096)
	require.Len(t, got, 2)
	assert.Equal(t, big, got[0])
	assert.Equal(t, []byte("tail"), got[1])
}

func TestSequenceGapDropsPartialPacket(t *testing.T) {
	big := bytes.Repeat([]byte{1}, 255*255+10)
	w := oggtest.NewWriter(3)
	w.Packet([]byte("a"), 1)
	w.FlushPage()
	w.Packet(big, 2)
	w.Packet([]byte("b"), 3)
	data := w.Bytes()

	// Locate the pages and drop the first page of the spanning packet.
	var sync ogg.Sync
	var page ogg.Page
	sync.Write(data[:min(len(data), sync.Space())])
	stream := ogg.NewStream(3)

	var got [][]byte
	pageIndex := 0
	for sync.PageOut(&page) {
		if pageIndex != 1 {
			require.NoError(t, stream.PageIn(&page))
			for {
				pkt, ok := stream.PacketOut()
				if !ok {
					break
				}
				got = append(got, bytes.Clone(pkt.Data))
			}
		}
		pageIndex++
	}

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, got)
}

func TestStreamRejectsForeignSerial(t *testing.T) {
	data := oggtest.Stream(1, nil, [][]byte{[]byte("x")}, 1)

	var sync ogg.Sync
	var page ogg.Page
	sync.Write(data)
	require.True(t, sync.PageOut(&page))

	stream := ogg.NewStream(2)
	assert.ErrorIs(t, stream.PageIn(&page), ogg.ErrSerialMismatch)
}

func TestOversizePacketIsTruncated(t *testing.T) {
	big := bytes.Repeat([]byte{2}, ogg.MaxPacketSize+1)
	w := oggtest.NewWriter(5)
	w.Packet(big, 1)
	w.Packet([]byte("next"), 2)
	data := w.Bytes()

	var sync ogg.Sync
	var page ogg.Page
	stream := ogg.NewStream(5)
	var truncated int
	var kept [][]byte

	for len(data) > 0 || sync.Buffered() > 0 {
		n := sync.Write(data)
		data = data[n:]
		progressed := false
		for sync.PageOut(&page) {
			progressed = true
			require.NoError(t, stream.PageIn(&page))
			for {
				pkt, ok := stream.PacketOut()
				if !ok {
					break
				}
				if pkt.Truncated {
					truncated++
					assert.Nil(t, pkt.Data)
					continue
				}
				kept = append(kept, bytes.Clone(pkt.Data))
			}
		}
		if !progressed && n == 0 {
			break
		}
	}

	assert.Equal(t, 1, truncated)
	assert.Equal(t, [][]byte{[]byte("next")}, kept)
}

func TestPageFlags(t *testing.T) {
	data := oggtest.Stream(11, [][]byte{oggtest.OpusHead(2, 312, 48000, 0)}, [][]byte{[]byte("p")}, 1)

	var sync ogg.Sync
	var page ogg.Page
	sync.Write(data)

	require.True(t, sync.PageOut(&page))
	assert.True(t, page.BOS())
	assert.False(t, page.EOS())
	assert.Equal(t, uint32(0), page.Sequence)

	require.True(t, sync.PageOut(&page))
	assert.False(t, page.BOS())
	assert.Equal(t, int64(960), page.GranulePos)

	require.True(t, sync.PageOut(&page))
	assert.True(t, page.EOS())
	assert.False(t, sync.PageOut(&page))
}
