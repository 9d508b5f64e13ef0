package dispatch

import (
	"encoding/binary"
	"net"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

// stallThreshold and stallCredit implement spec.md §4.7's flow-control
// scheme: the server tracks bytes sent since the last credit grant;
// crossing stallThreshold blocks the scan until the client replies with
// CONTINUE (worth half the threshold back) or BREAK_QUERY.
const (
	stallThreshold = 64 * 1024
	stallCredit    = stallThreshold / 2
)

// stallGate tracks one RUN_QUERY_TRAN's outstanding send credit.
type stallGate struct {
	conn  net.Conn
	order binary.ByteOrder
	sent  int
}

// afterSend accounts for n bytes just written to the wire, blocking on
// a CONTINUE/BREAK_QUERY exchange if the threshold was crossed.
// Returns broken=true if the client asked to abort the scan.
func (g *stallGate) afterSend(n int) (broken bool, err error) {
	g.sent += n
	if g.sent < stallThreshold {
		return false, nil
	}
	fr, err := readFrame(g.conn)
	if err != nil {
		return false, err
	}
	switch fr.Command {
	case wire.CmdContinue:
		g.sent -= stallCredit
		if g.sent < 0 {
			g.sent = 0
		}
		return false, nil
	case wire.CmdBreakQuery:
		return true, dberr.New(dberr.ErrSelectBreak)
	default:
		return false, dberr.Newf(dberr.ErrUnexpectedToken, "expected CONTINUE or BREAK_QUERY, got %s", fr.Command)
	}
}
