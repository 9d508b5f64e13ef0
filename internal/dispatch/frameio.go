// Package dispatch is the instance dispatcher described in spec.md
// §4.7: one goroutine per client connection, a control connection that
// negotiates HELLO/OPEN_INSTANCE, and a dedicated per-instance
// connection (handed to the client as a transferred file descriptor)
// that runs BEGIN_TRAN/RUN_QUERY_TRAN/COMMIT1_TRAN/COMMIT2_TRAN and the
// rest of the transactional command set against internal/engine and
// internal/txn. DDL statements are routed straight to internal/schema,
// never through internal/engine.Run, per that package's own doc
// comment.
package dispatch

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

// frame is one decoded packet: its header plus body bytes (the header
// is stripped, padding past TotalBytes is discarded).
type frame struct {
	wire.Header
	Body []byte
}

// readFrame reads one length-prefixed, 8-byte-aligned packet from c.
func readFrame(c net.Conn) (*frame, error) {
	hdrBuf := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(c, hdrBuf); err != nil {
		return nil, dberr.Wrap(dberr.ErrLostLink, err)
	}
	h, err := wire.DecodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}
	bodyLen := int(h.TotalBytes) - wire.HeaderSize
	if bodyLen < 0 {
		return nil, dberr.New(dberr.ErrShortReadWrite)
	}
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(c, body); err != nil {
			return nil, dberr.Wrap(dberr.ErrLostLink, err)
		}
	}
	return &frame{Header: h, Body: body}, nil
}

// encodeFrame builds one packet's wire bytes without sending them, so
// callers that must attach out-of-band data (OPEN_INSTANCE's SCM_RIGHTS
// fd) can hand the whole buffer to a single sendmsg(2) call.
func encodeFrame(order binary.ByteOrder, cmd wire.Command, flags uint16, errCode int32, body []byte) []byte {
	if order == nil {
		order = binary.LittleEndian
	}
	total := wire.Align8(wire.HeaderSize + len(body))
	h := wire.Header{Command: cmd, Flags: flags, TotalBytes: int32(total), Error: errCode, Order: order}
	buf := wire.EncodeHeader(h)
	buf = append(buf, body...)
	buf = append(buf, make([]byte, total-len(buf))...)
	return buf
}

// writeFrame encodes and sends one packet in order, padding the body
// out to the wire's 8-byte alignment.
func writeFrame(c net.Conn, order binary.ByteOrder, cmd wire.Command, flags uint16, errCode int32, body []byte) error {
	_, err := c.Write(encodeFrame(order, cmd, flags, errCode, body))
	if err != nil {
		return dberr.Wrap(dberr.ErrLostLink, err)
	}
	return nil
}

// writeError sends an empty reply packet carrying a failed dberr.Code,
// the one place a *dberr.Error becomes a raw wire integer (see
// internal/dberr's package doc).
func writeError(c net.Conn, order binary.ByteOrder, cmd wire.Command, err error) error {
	return writeFrame(c, order, cmd, 0, int32(dberr.CodeOf(err)), nil)
}
