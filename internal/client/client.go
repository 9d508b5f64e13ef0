// Package client is a minimal control-connection speaker for osdbctl's
// diagnostic commands (raw-data-file dump, hello/ping). It is
// deliberately not a SQL client: it only ever issues the whole-file
// replication bootstrap and handshake commands, the commands
// internal/dispatch's control connection (as opposed to its per-
// instance connection) answers directly.
package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

// Conn is one dialed control connection, past HELLO negotiation.
type Conn struct {
	c     net.Conn
	order binary.ByteOrder
}

// Dial connects to socketPath and performs the HELLO handshake,
// requesting dbName (empty accepts whatever database the daemon owns).
func Dial(socketPath, dbName string) (*Conn, error) {
	c, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	order := binary.ByteOrder(binary.LittleEndian)
	hello := wire.HelloBody{DBName: dbName}
	if err := writeFrame(c, order, wire.CmdHello, hello.Encode(order)); err != nil {
		_ = c.Close()
		return nil, err
	}
	h, body, err := readFrame(c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if h.Error != 0 {
		_ = c.Close()
		return nil, fmt.Errorf("HELLO rejected: %s", dberr.Code(h.Error))
	}
	if _, err := wire.DecodeHelloBody(body, h.Order); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Conn{c: c, order: h.Order}, nil
}

// Close closes the underlying connection.
func (cn *Conn) Close() error {
	return cn.c.Close()
}

// DumpRawDataFile requests filename's physical bytes via RAWDATAFILE
// and copies the streamed RAWDATA packets to w, the way a replica
// bootstrapping from nothing would, stopping at the terminating RESULT
// packet.
func (cn *Conn) DumpRawDataFile(filename string, blockSize uint32, w io.Writer) error {
	req := wire.RawDataFileBody{BlockSize: blockSize, Filename: filename}
	if err := writeFrame(cn.c, cn.order, wire.CmdRawDataFile, req.Encode(cn.order)); err != nil {
		return err
	}
	for {
		h, body, err := readFrame(cn.c)
		if err != nil {
			return err
		}
		switch h.Command {
		case wire.CmdRawData:
			if _, err := w.Write(body); err != nil {
				return err
			}
		case wire.CmdResult:
			if h.Error != 0 {
				return fmt.Errorf("RAWDATAFILE failed: %s", dberr.Code(h.Error))
			}
			return nil
		default:
			return fmt.Errorf("unexpected packet %s during RAWDATAFILE stream", h.Command)
		}
	}
}

func writeFrame(c net.Conn, order binary.ByteOrder, cmd wire.Command, body []byte) error {
	total := wire.Align8(wire.HeaderSize + len(body))
	hdr := wire.EncodeHeader(wire.Header{Command: cmd, TotalBytes: int32(total), Order: order})
	buf := append(hdr, body...)
	buf = append(buf, make([]byte, total-len(buf))...)
	_, err := c.Write(buf)
	return err
}

func readFrame(c net.Conn) (wire.Header, []byte, error) {
	hdrBuf := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(c, hdrBuf); err != nil {
		return wire.Header{}, nil, err
	}
	h, err := wire.DecodeHeader(hdrBuf)
	if err != nil {
		return wire.Header{}, nil, err
	}
	bodyLen := int(h.TotalBytes) - wire.HeaderSize
	if bodyLen < 0 {
		return wire.Header{}, nil, dberr.New(dberr.ErrShortReadWrite)
	}
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(c, body); err != nil {
			return wire.Header{}, nil, err
		}
	}
	return h, body, nil
}
