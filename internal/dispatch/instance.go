package dispatch

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dblog"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/engine"
	"github.com/jonahharris/osdb-backplane-sub001/internal/parser"
	"github.com/jonahharris/osdb-backplane-sub001/internal/schema"
	"github.com/jonahharris/osdb-backplane-sub001/internal/txn"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

// ResultFlagFinal marks a RESULT packet as the streaming terminator
// spec.md §4.7 describes: "zero or more RESULT row packets followed by
// a terminator carrying the row count or error code".
const ResultFlagFinal uint16 = 1

// instanceSession is one OPEN_INSTANCE's private transaction stack and
// pending RESULT_ORDER/RESULT_LIMIT state, serving BEGIN_TRAN through
// BREAK_QUERY over its own dedicated connection.
type instanceSession struct {
	conn  net.Conn
	order binary.ByteOrder

	cat  *schema.Catalog
	exec *engine.Executor
	db   *txn.DataBase

	sortOrder *wire.ResultOrderBody // pending RESULT_ORDER, consumed by the next query
	limit     *wire.ResultLimitBody // pending RESULT_LIMIT, consumed by the next query

	// sortThreshold bounds how many rows a query with an ORDER BY
	// clause buffers and sorts server-side before streaming (spec.md
	// §9's ResultSortThreshold). Above it, rows stream in scan order
	// and the client finishes the sort against RESULT_ORDER itself.
	sortThreshold int
}

// serveInstance runs one per-instance command loop until the
// connection closes or a fatal protocol error occurs.
func serveInstance(conn net.Conn, order binary.ByteOrder, cat *schema.Catalog, exec *engine.Executor, mgr *txn.Manager, sortThreshold int) {
	defer conn.Close()
	sess := &instanceSession{conn: conn, order: order, cat: cat, exec: exec, db: txn.NewDataBase(mgr), sortThreshold: sortThreshold}

	for {
		fr, err := readFrame(conn)
		if err != nil {
			return
		}
		if err := sess.dispatch(fr); err != nil {
			dblog.Debugf("instance: %s: %v", fr.Command, err)
			return
		}
	}
}

func (s *instanceSession) dispatch(fr *frame) error {
	switch fr.Command {
	case wire.CmdBeginTran:
		return s.handleBeginTran(fr)
	case wire.CmdAbortTran:
		return s.handleAbortTran(fr)
	case wire.CmdCommit1Tran:
		return s.handleCommit1(fr)
	case wire.CmdCommit2Tran:
		return s.handleCommit2(fr)
	case wire.CmdUncommit1Tran:
		return s.handleUncommit1(fr)
	case wire.CmdRunQueryTran:
		return s.handleQuery(fr, true)
	case wire.CmdRecQueryTran:
		return s.handleQuery(fr, false)
	case wire.CmdResultOrder:
		ro, err := wire.DecodeResultOrderBody(fr.Body, s.order)
		if err != nil {
			return writeError(s.conn, s.order, fr.Command, err)
		}
		s.sortOrder = ro
		return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
	case wire.CmdResultLimit:
		rl, err := wire.DecodeResultLimitBody(fr.Body, s.order)
		if err != nil {
			return writeError(s.conn, s.order, fr.Command, err)
		}
		s.limit = rl
		return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
	case wire.CmdResultReset:
		s.sortOrder, s.limit = nil, nil
		return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
	case wire.CmdSyncStamp:
		return s.handleSyncStamp(fr)
	case wire.CmdUpdateSyncTs:
		return s.handleUpdateSyncTs(fr)
	case wire.CmdUpdateStampID:
		// The per-database stamp discriminator is fixed for the
		// lifetime of an open Catalog (internal/schema.Open's dbID
		// argument); there is nothing to mutate at runtime, so this
		// acknowledges without effect.
		return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
	case wire.CmdWaitTran:
		return s.handleWaitTran(fr)
	case wire.CmdCloseInstance:
		return dberr.New(dberr.ErrLostLink)
	default:
		return writeError(s.conn, s.order, fr.Command, dberr.Newf(dberr.ErrUnexpectedToken, "unhandled command %s", fr.Command))
	}
}

func (s *instanceSession) handleBeginTran(fr *frame) error {
	body, err := wire.DecodeBeginTranBody(fr.Body, s.order)
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	var flags txn.Flag
	bf := wire.BeginFlag(fr.Flags)
	if bf&wire.BeginReadOnly != 0 {
		flags |= txn.FlagReadOnly
	}
	if bf&wire.BeginRWSync != 0 {
		flags |= txn.FlagRWSync
	}
	if bf&wire.BeginStream != 0 {
		flags |= txn.FlagStream
	}
	s.db.Push(body.FreezeTs, flags)
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
}

func (s *instanceSession) handleAbortTran(fr *frame) error {
	t := s.db.Current()
	if t == nil {
		return writeError(s.conn, s.order, fr.Command, dberr.New(dberr.ErrAbortOutsideTxn))
	}
	if err := s.db.Abort(t); err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
}

func (s *instanceSession) handleCommit1(fr *frame) error {
	body, err := wire.DecodeCommit1Body(fr.Body, s.order)
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	t := s.db.Current()
	if t == nil {
		return writeError(s.conn, s.order, fr.Command, dberr.New(dberr.ErrNotInTransaction))
	}
	minCTs, err := s.db.Commit1(t, body.MinCTs)
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	reply := wire.Commit1Body{MinCTs: minCTs}
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, reply.Encode(s.order))
}

func (s *instanceSession) handleCommit2(fr *frame) error {
	body, err := wire.DecodeCommit2Body(fr.Body, s.order)
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	t := s.db.Current()
	if t == nil {
		return writeError(s.conn, s.order, fr.Command, dberr.New(dberr.ErrNotInTransaction))
	}
	err = s.db.Commit2(t, body.MinCTs, func(vtable types.VTable, key []byte) error {
		ta, err := s.cat.Access(vtable)
		if err != nil {
			return err
		}
		return ta.File.SetSyncStamp(body.MinCTs)
	})
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
}

func (s *instanceSession) handleUncommit1(fr *frame) error {
	t := s.db.Current()
	if t == nil {
		return writeError(s.conn, s.order, fr.Command, dberr.New(dberr.ErrNotInTransaction))
	}
	if err := s.db.Uncommit1(t); err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
}

func (s *instanceSession) handleSyncStamp(fr *frame) error {
	reply := wire.SyncStampBody{Stamp: s.cat.SyncStamp()}
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, reply.Encode(s.order))
}

func (s *instanceSession) handleUpdateSyncTs(fr *frame) error {
	body, err := wire.DecodeUpdateSyncTsBody(fr.Body, s.order)
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	if err := s.cat.AdvanceSyncStamp(body.Stamp); err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
}

func (s *instanceSession) handleWaitTran(fr *frame) error {
	body, err := wire.DecodeWaitTranBody(fr.Body, s.order)
	if err != nil {
		return writeError(s.conn, s.order, fr.Command, err)
	}
	s.cat.WaitForSyncStamp(body.Stamp)
	return writeFrame(s.conn, s.order, fr.Command, 0, 0, nil)
}

// handleQuery parses fr's SQL body and runs it. DDL statements bypass
// internal/engine entirely, per internal/engine.Run's own doc comment.
// recordResults is false for REC_QUERY_TRAN: the statement still runs
// for its side effects but no RESULT packets are streamed back.
func (s *instanceSession) handleQuery(fr *frame, recordResults bool) error {
	q, err := parser.New(fr.Body, s.cat).Parse()
	if err != nil {
		return s.sendTerminator(fr.Command, 0, err)
	}

	if ddl, handled := s.runDDL(q); handled {
		return s.sendTerminator(fr.Command, q.RowCount, ddl)
	}

	t := s.db.Current()
	if t == nil {
		return s.sendTerminator(fr.Command, 0, dberr.New(dberr.ErrNotInTransaction))
	}

	skip, max := 0, -1
	if s.limit != nil {
		skip, max = int(s.limit.StartRow), int(s.limit.MaxRows)
	}

	if recordResults && len(q.Sort) > 0 {
		return s.runSortedQuery(fr, q, t, skip, max)
	}

	gate := &stallGate{conn: s.conn, order: s.order}
	seen := 0
	emitted := 0

	runErr := s.exec.Run(q, t, func(row *types.ResultRow) error {
		seen++
		if seen <= skip {
			return nil
		}
		if max >= 0 && emitted >= max {
			return nil
		}
		emitted++
		if !recordResults {
			return nil
		}
		msg := wire.EncodeCLRowMsg(len(row.Show), [][]types.ColValue{row.Show})
		body := msg.Encode(s.order)
		if err := writeFrame(s.conn, s.order, wire.CmdResult, 0, 0, body); err != nil {
			return err
		}
		broken, err := gate.afterSend(len(body))
		if broken {
			return err
		}
		return err
	})

	count := q.RowCount
	if q.Kind == types.StmtSelect || q.Kind == types.StmtHistory {
		count = emitted
	}
	return s.sendTerminator(fr.Command, count, runErr)
}

// runSortedQuery handles a query with an ORDER BY clause: rows are
// buffered up to sortThreshold and sorted via types.LessRow before
// streaming. If the result set exceeds the threshold, buffering is
// abandoned and every row collected so far (plus the remainder) streams
// in scan order instead — the client then finishes the sort itself
// against the RESULT_ORDER it already sent (spec.md §9).
func (s *instanceSession) runSortedQuery(fr *frame, q *types.Query, t *txn.Txn, skip, max int) error {
	gate := &stallGate{conn: s.conn, order: s.order}
	seen := 0
	emitted := 0

	send := func(row *types.ResultRow) error {
		seen++
		if seen <= skip {
			return nil
		}
		if max >= 0 && emitted >= max {
			return nil
		}
		emitted++
		msg := wire.EncodeCLRowMsg(len(row.Show), [][]types.ColValue{row.Show})
		body := msg.Encode(s.order)
		if err := writeFrame(s.conn, s.order, wire.CmdResult, 0, 0, body); err != nil {
			return err
		}
		broken, err := gate.afterSend(len(body))
		if broken {
			return err
		}
		return err
	}

	buffering := true
	buf := make([]*types.ResultRow, 0, s.sortThreshold+1)

	runErr := s.exec.Run(q, t, func(row *types.ResultRow) error {
		if !buffering {
			return send(row)
		}
		buf = append(buf, row)
		if len(buf) <= s.sortThreshold {
			return nil
		}
		buffering = false
		overflow := buf
		buf = nil
		for _, r := range overflow {
			if err := send(r); err != nil {
				return err
			}
		}
		return nil
	})

	if buffering && runErr == nil {
		sort.SliceStable(buf, func(i, j int) bool { return types.LessRow(buf[i], buf[j]) })
		for _, row := range buf {
			if err := send(row); err != nil {
				runErr = err
				break
			}
		}
	}

	return s.sendTerminator(fr.Command, emitted, runErr)
}

// runDDL executes q directly against the catalog if it is a
// CREATE/ALTER/DROP TABLE statement, reporting (err, true); for any
// other statement kind it reports (nil, false) so handleQuery falls
// through to the transactional engine path.
func (s *instanceSession) runDDL(q *types.Query) (error, bool) {
	switch q.Kind {
	case types.StmtCreateTable:
		_, err := s.cat.CreateTable(q.NewTable)
		if err == nil {
			q.RowCount = 1
		}
		return err, true
	case types.StmtAlterTable:
		ti := q.Tables[0]
		var err error
		if q.AlterAdd != nil {
			err = s.cat.AlterAddColumn(ti.Def.VTable, q.AlterAdd)
		} else {
			err = s.cat.AlterDropColumn(ti.Def.VTable, q.AlterDrop)
		}
		if err == nil {
			q.RowCount = 1
		}
		return err, true
	case types.StmtDropTable:
		ti := q.Tables[0]
		err := s.cat.DropTable(ti.Def.VTable)
		if err == nil {
			q.RowCount = 1
		}
		return err, true
	default:
		return nil, false
	}
}

// sendTerminator sends the final RESULT packet spec.md §4.7 describes:
// a 4-byte row count body, ResultFlagFinal set, and runErr's code (if
// any) in the header's Error field.
func (s *instanceSession) sendTerminator(cmd wire.Command, count int, runErr error) error {
	body := make([]byte, 4)
	s.order.PutUint32(body, uint32(count))
	errCode := int32(dberr.CodeOf(runErr))
	return writeFrame(s.conn, s.order, wire.CmdResult, ResultFlagFinal, errCode, body)
}
