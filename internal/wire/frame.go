// Package wire implements the framed, byte-order-agnostic client
// protocol described in spec.md §4.7: a fixed 12-byte header in front
// of every packet, a command byte selecting one of the documented
// subcommands, and a command-specific body. internal/dispatch is the
// only caller; this package only ever encodes/decodes bytes, it never
// touches a socket.
package wire

import (
	"encoding/binary"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
)

// Byte-order sentinels carried in Header.Magic. A receiver whose
// native order disagrees with the sender's byte-swaps every multi-byte
// header and body field before use.
const (
	MagicLittle byte = 0xAF
	MagicBig    byte = 0xAE
)

// HeaderSize is the fixed frame header length. It is not itself a
// multiple of 8; the whole packet (header plus body) is padded to one.
const HeaderSize = 12

// Align8 rounds n up to the next multiple of 8, the wire's packet
// alignment (spec.md §4.7: "packets are 8-byte aligned on the wire").
func Align8(n int) int {
	return (n + 7) &^ 7
}

// Header is the decoded, native-order view of a packet's frame. Order
// records which byte order the wire bytes this Header was decoded from
// actually used, so Encode can round-trip a reply in the same order a
// client sent its request in.
type Header struct {
	Command    Command
	Flags      uint16
	TotalBytes int32 // includes the header; 8-byte aligned
	Error      int32 // 0 on a request, <0 on a failed reply

	Order binary.ByteOrder
}

// EncodeHeader serializes h using h.Order (MagicLittle's
// binary.LittleEndian if Order is nil).
func EncodeHeader(h Header) []byte {
	order := h.Order
	magic := MagicLittle
	if order == nil {
		order = binary.LittleEndian
	} else if order == binary.BigEndian {
		magic = MagicBig
	}

	buf := make([]byte, HeaderSize)
	buf[0] = magic
	buf[1] = byte(h.Command)
	order.PutUint16(buf[2:4], h.Flags)
	order.PutUint32(buf[4:8], uint32(h.TotalBytes))
	order.PutUint32(buf[8:12], uint32(h.Error))
	return buf
}

// DecodeHeader parses a 12-byte frame header, selecting byte order from
// the magic byte and rejecting anything else as corrupt.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, dberr.New(dberr.ErrShortReadWrite)
	}
	var order binary.ByteOrder
	switch buf[0] {
	case MagicLittle:
		order = binary.LittleEndian
	case MagicBig:
		order = binary.BigEndian
	default:
		return Header{}, dberr.New(dberr.ErrBadMagic)
	}

	return Header{
		Command:    Command(buf[1]),
		Flags:      order.Uint16(buf[2:4]),
		TotalBytes: int32(order.Uint32(buf[4:8])),
		Error:      int32(order.Uint32(buf[8:12])),
		Order:      order,
	}, nil
}
