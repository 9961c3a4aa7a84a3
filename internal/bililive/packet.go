package bililive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Binary frame layout of the danmaku websocket protocol: a 16-byte big-endian
// header (total length, header length, protocol version, operation, sequence)
// followed by the body. A single websocket frame may carry several packets
// back to back, and a version-3 body is itself a zlib-compressed run of
// packets.
const (
	headerLen = 16

	opHeartbeat      = 2
	opHeartbeatReply = 3
	opMessage        = 5
	opAuth           = 7
	opAuthReply      = 8

	verPlain = 0
	verZlib  = 3
)

var errShortFrame = errors.New("frame shorter than packet header")

type packet struct {
	Ver  uint16
	Op   uint32
	Seq  uint32
	Body []byte
}

// encodePacket serializes a single packet.
func encodePacket(p packet) []byte {
	buf := make([]byte, headerLen+len(p.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], headerLen)
	binary.BigEndian.PutUint16(buf[6:8], p.Ver)
	binary.BigEndian.PutUint32(buf[8:12], p.Op)
	binary.BigEndian.PutUint32(buf[12:16], p.Seq)
	copy(buf[headerLen:], p.Body)
	return buf
}

// decodePackets walks the packets concatenated in one websocket frame,
// inflating compressed aggregates along the way.
func decodePackets(frame []byte) ([]packet, error) {
	var out []packet

	for off := 0; off < len(frame); {
		rest := frame[off:]
		if len(rest) < headerLen {
			return nil, errShortFrame
		}

		packLen := binary.BigEndian.Uint32(rest[0:4])
		hdrLen := binary.BigEndian.Uint16(rest[4:6])
		// hdrLen below the fixed header size would also let packLen reach
		// zero and stall the walk on a packet that never advances off.
		if int(hdrLen) < headerLen || int(packLen) < int(hdrLen) || int(packLen) > len(rest) {
			return nil, fmt.Errorf("invalid packet length %d (header %d, frame remainder %d)", packLen, hdrLen, len(rest))
		}

		p := packet{
			Ver: binary.BigEndian.Uint16(rest[6:8]),
			Op:  binary.BigEndian.Uint32(rest[8:12]),
			Seq: binary.BigEndian.Uint32(rest[12:16]),
		}
		body := rest[hdrLen:packLen]

		if p.Ver == verZlib {
			inflated, err := inflate(body)
			if err != nil {
				return nil, fmt.Errorf("inflate packet body: %w", err)
			}
			inner, err := decodePackets(inflated)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		} else {
			p.Body = append([]byte(nil), body...)
			out = append(out, p)
		}

		off += int(packLen)
	}

	return out, nil
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
