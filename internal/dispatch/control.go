package dispatch

import (
	"encoding/binary"
	"io"
	"net"
	"os"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

// serveControl runs one client's control connection: HELLO negotiates
// byte order and the target database name, then OPEN_INSTANCE spawns a
// dedicated instance goroutine per spec.md §4.7 and hands the client
// its private descriptor; CLOSE_INSTANCE and the raw-replication
// commands are handled here directly since they address the whole
// database rather than one transaction stack.
func (s *Server) serveControl(conn net.Conn) {
	defer recoverAndLog("control connection")
	defer conn.Close()

	order, err := s.handleHello(conn)
	if err != nil {
		return
	}

	for {
		fr, err := readFrame(conn)
		if err != nil {
			return
		}
		switch fr.Command {
		case wire.CmdOpenInstance:
			if err := s.handleOpenInstance(conn, order); err != nil {
				return
			}
		case wire.CmdCloseInstance:
			_ = writeFrame(conn, order, fr.Command, 0, 0, nil)
			return
		case wire.CmdRawRead:
			s.handleRawRead(conn, order, fr)
		case wire.CmdRawWrite:
			s.handleRawWrite(conn, order, fr)
		case wire.CmdRawDataFile:
			s.handleRawDataFile(conn, order, fr)
		default:
			_ = writeError(conn, order, fr.Command, dberr.Newf(dberr.ErrUnexpectedToken, "%s is not a control-connection command", fr.Command))
		}
	}
}

// handleHello reads the first packet, which must be HELLO, validates
// the requested database name, and replies with the negotiated
// parameters in the same byte order the client used.
func (s *Server) handleHello(conn net.Conn) (binary.ByteOrder, error) {
	fr, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	if fr.Command != wire.CmdHello {
		_ = writeError(conn, binary.LittleEndian, fr.Command, dberr.Newf(dberr.ErrUnexpectedToken, "expected HELLO, got %s", fr.Command))
		return nil, dberr.New(dberr.ErrUnexpectedToken)
	}
	order := fr.Order
	body, err := wire.DecodeHelloBody(fr.Body, order)
	if err != nil {
		_ = writeError(conn, order, fr.Command, err)
		return nil, err
	}
	if body.DBName != "" && body.DBName != s.name {
		derr := dberr.Newf(dberr.ErrSchemaNotFound, "unknown database %q", body.DBName)
		_ = writeError(conn, order, fr.Command, derr)
		return nil, derr
	}

	reply := wire.HelloBody{
		SyncTs:    s.cat.SyncStamp(),
		MinCTs:    s.cat.NextStamp(),
		BlockSize: body.BlockSize,
		DBName:    s.name,
	}
	if err := writeFrame(conn, order, fr.Command, 0, 0, reply.Encode(order)); err != nil {
		return nil, err
	}
	return order, nil
}

// handleOpenInstance spawns a fresh per-instance goroutine over a new
// unix socket pair and transfers its client-side descriptor across
// conn via SCM_RIGHTS.
func (s *Server) handleOpenInstance(conn net.Conn, order binary.ByteOrder) error {
	local, remoteFD, err := newInstanceSocketPair()
	if err != nil {
		return writeError(conn, order, wire.CmdOpenInstance, err)
	}
	go func() {
		defer recoverAndLog("instance connection")
		serveInstance(local, order, s.cat, s.exec, s.mgr, s.ResultSortThreshold)
	}()

	frameBytes := encodeFrame(order, wire.CmdOpenInstance, 0, 0, nil)
	return sendFrameWithFD(conn, frameBytes, remoteFD)
}

// handleRawRead streams every record of the schema file named in fr's
// body whose stamp falls in [StartTs, EndTs) as RAWDATA packets,
// followed by a RESULT terminator. This is the wire mechanics spec.md
// §4.7 documents for replication; the multi-host consensus that would
// consume it is an explicit non-goal (spec.md §1).
func (s *Server) handleRawRead(conn net.Conn, order binary.ByteOrder, fr *frame) {
	body, err := wire.DecodeRawReadBody(fr.Body, order)
	if err != nil {
		_ = writeError(conn, order, fr.Command, err)
		return
	}
	err = s.cat.WalkRawRange(body.StartTs, body.EndTs, func(rec []byte) error {
		return writeFrame(conn, order, wire.CmdRawData, 0, 0, rec)
	})
	errCode := int32(dberr.CodeOf(err))
	_ = writeFrame(conn, order, wire.CmdResult, ResultFlagFinal, errCode, nil)
}

// handleRawWrite accepts a stream of RAWDATA packets terminated by
// RAWWRITE_END and appends each record to the schema file named in
// fr's body, for a replica replaying another instance's RAWREAD
// stream.
func (s *Server) handleRawWrite(conn net.Conn, order binary.ByteOrder, fr *frame) {
	if _, err := wire.DecodeRawWriteBody(fr.Body, order); err != nil {
		_ = writeError(conn, order, fr.Command, err)
		return
	}
	for {
		next, err := readFrame(conn)
		if err != nil {
			return
		}
		if next.Command == wire.CmdRawWriteEnd {
			_ = writeFrame(conn, order, wire.CmdRawWriteEnd, 0, 0, nil)
			return
		}
		if next.Command != wire.CmdRawData {
			_ = writeError(conn, order, next.Command, dberr.Newf(dberr.ErrUnexpectedToken, "expected RAWDATA or RAWWRITE_END, got %s", next.Command))
			return
		}
		if err := s.cat.AppendRaw(next.Body); err != nil {
			_ = writeError(conn, order, next.Command, err)
			return
		}
	}
}

// handleRawDataFile answers a whole-file replication bootstrap request:
// the named physical file streams out as a sequence of RAWDATA packets
// chunked to the announced block size, followed by a RESULT terminator.
// This precedes the incremental per-stamp RAWREAD/RAWWRITE exchange for
// a replica catching up from nothing.
func (s *Server) handleRawDataFile(conn net.Conn, order binary.ByteOrder, fr *frame) {
	body, err := wire.DecodeRawDataFileBody(fr.Body, order)
	if err != nil {
		_ = writeError(conn, order, fr.Command, err)
		return
	}
	path, err := s.cat.DataFilePath(body.Filename)
	if err != nil {
		_ = writeError(conn, order, fr.Command, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		_ = writeError(conn, order, fr.Command, dberr.Wrap(dberr.ErrCannotOpen, err))
		return
	}
	defer f.Close()

	chunkSize := int(body.BlockSize)
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	chunk := make([]byte, chunkSize)
	for {
		n, readErr := f.Read(chunk)
		if n > 0 {
			if werr := writeFrame(conn, order, wire.CmdRawData, 0, 0, chunk[:n]); werr != nil {
				_ = writeFrame(conn, order, wire.CmdResult, ResultFlagFinal, int32(dberr.CodeOf(werr)), nil)
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = writeFrame(conn, order, wire.CmdResult, ResultFlagFinal, int32(dberr.CodeOf(dberr.Wrap(dberr.ErrCannotOpen, readErr))), nil)
			return
		}
	}
	_ = writeFrame(conn, order, wire.CmdResult, ResultFlagFinal, 0, nil)
}
