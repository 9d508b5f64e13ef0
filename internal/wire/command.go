package wire

// Command identifies a packet's payload shape (spec.md §4.7 command
// table). The low byte of the original protocol's cp_Cmd.
type Command byte

const (
	CmdHello          Command = 0x01
	CmdOpenInstance    Command = 0x02
	CmdCloseInstance   Command = 0x03
	CmdBeginTran       Command = 0x04
	CmdRunQueryTran    Command = 0x05
	CmdRecQueryTran    Command = 0x06
	CmdAbortTran       Command = 0x07
	CmdCommit1Tran     Command = 0x08
	CmdCommit2Tran     Command = 0x09
	CmdResult          Command = 0x0A
	CmdResultReset     Command = 0x0B
	CmdSyncStamp       Command = 0x0C
	CmdUpdateSyncTs    Command = 0x0D
	CmdUpdateStampID   Command = 0x0E
	CmdUncommit1Tran   Command = 0x0F
	CmdRawRead         Command = 0x10
	CmdRawData         Command = 0x11
	CmdRawWrite        Command = 0x12
	CmdRawWriteEnd     Command = 0x13
	CmdRawDataFile     Command = 0x14
	CmdWaitTran        Command = 0x15
	CmdContinue        Command = 0x16
	CmdBreakQuery      Command = 0x17
	CmdResultOrder     Command = 0x40
	CmdResultLimit     Command = 0x41
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "HELLO"
	case CmdOpenInstance:
		return "OPEN_INSTANCE"
	case CmdCloseInstance:
		return "CLOSE_INSTANCE"
	case CmdBeginTran:
		return "BEGIN_TRAN"
	case CmdRunQueryTran:
		return "RUN_QUERY_TRAN"
	case CmdRecQueryTran:
		return "REC_QUERY_TRAN"
	case CmdAbortTran:
		return "ABORT_TRAN"
	case CmdCommit1Tran:
		return "COMMIT1_TRAN"
	case CmdCommit2Tran:
		return "COMMIT2_TRAN"
	case CmdResult:
		return "RESULT"
	case CmdResultReset:
		return "RESULT_RESET"
	case CmdSyncStamp:
		return "SYNC_STAMP"
	case CmdUpdateSyncTs:
		return "UPDATE_SYNCTS"
	case CmdUpdateStampID:
		return "UPDATE_STAMPID"
	case CmdUncommit1Tran:
		return "UNCOMMIT1_TRAN"
	case CmdRawRead:
		return "RAWREAD"
	case CmdRawData:
		return "RAWDATA"
	case CmdRawWrite:
		return "RAWWRITE"
	case CmdRawWriteEnd:
		return "RAWWRITE_END"
	case CmdRawDataFile:
		return "RAWDATAFILE"
	case CmdWaitTran:
		return "WAIT_TRAN"
	case CmdContinue:
		return "CONTINUE"
	case CmdBreakQuery:
		return "BREAK_QUERY"
	case CmdResultOrder:
		return "RESULT_ORDER"
	case CmdResultLimit:
		return "RESULT_LIMIT"
	default:
		return "?"
	}
}

// BeginFlag is the BEGIN_TRAN body's transaction-mode bitmask, mapped
// 1:1 onto internal/txn.Flag.
type BeginFlag uint8

const (
	BeginReadOnly BeginFlag = 1 << iota
	BeginRWSync
	BeginStream
)
