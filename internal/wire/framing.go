package wire

import (
	"encoding/binary"
)

// MaxStreamChunkLen is the largest body a single stream chunk may carry.
const MaxStreamChunkLen = 65535

// streamCount is the number of reassembly buffer slots. Stream ids above
// this clamp to the last slot, per the outer framing layer's contract.
const streamCount = 2

// EncodeStreamPacket prepends the inner application-packet length prefix:
// u32 LE packet_len, followed by the one-byte data_type and its body.
func EncodeStreamPacket(dataType byte, payload []byte) []byte {
	packetLen := 1 + len(payload)
	buf := make([]byte, 0, 4+packetLen)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(packetLen))
	buf = append(buf, dataType)
	buf = append(buf, payload...)
	return buf
}

// WriteStreamChunks splits packet into chunks of at most MaxStreamChunkLen
// bytes and appends the outer chunk-layer framing (u8 stream_id, u16 LE
// chunk_len, body) for each chunk to out.
func WriteStreamChunks(streamID byte, packet []byte, out []byte) []byte {
	offset := 0
	for offset < len(packet) {
		remaining := len(packet) - offset
		chunkLen := remaining
		if chunkLen > MaxStreamChunkLen {
			chunkLen = MaxStreamChunkLen
		}
		out = append(out, streamID)
		out = binary.LittleEndian.AppendUint16(out, uint16(chunkLen))
		out = append(out, packet[offset:offset+chunkLen]...)
		offset += chunkLen
	}
	return out
}

// Reassembler accumulates stream chunks per stream_id and yields complete
// length-prefixed application packets as enough bytes arrive. It is not
// safe for concurrent use; callers serialize access (the inbound reader is
// the sole writer).
type Reassembler struct {
	buffers [streamCount][]byte
}

// NewReassembler returns a Reassembler with empty per-stream buffers.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

func slotFor(streamID byte) int {
	if int(streamID) >= streamCount {
		return streamCount - 1
	}
	return int(streamID)
}

// Feed appends a chunk's body to its stream's reassembly buffer.
func (r *Reassembler) Feed(streamID byte, body []byte) {
	slot := slotFor(streamID)
	r.buffers[slot] = append(r.buffers[slot], body...)
}

// DrainPackets extracts as many complete length-prefixed application
// packets as are fully buffered for the given stream id, leaving any
// trailing partial packet in the buffer for the next Feed.
func (r *Reassembler) DrainPackets(streamID byte) [][]byte {
	slot := slotFor(streamID)
	buf := r.buffers[slot]

	var packets [][]byte
	offset := 0
	for offset+4 <= len(buf) {
		packetLen := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		if offset+4+packetLen > len(buf) {
			break
		}
		packets = append(packets, buf[offset+4:offset+4+packetLen])
		offset += 4 + packetLen
	}
	r.buffers[slot] = buf[offset:]
	return packets
}

// ReadChunkHeader parses the 3-byte outer chunk header from the front of
// buf, returning the stream id, declared chunk length, and whether a full
// header was present.
func ReadChunkHeader(buf []byte) (streamID byte, chunkLen int, ok bool) {
	if len(buf) < 3 {
		return 0, 0, false
	}
	return buf[0], int(binary.LittleEndian.Uint16(buf[1:3])), true
}
