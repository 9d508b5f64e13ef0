package engine

import (
	"github.com/jonahharris/osdb-backplane-sub001/internal/codec"
	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// opcodeText returns the synthetic ColOpcode display value for a
// decoded record's flags.
func opcodeText(f record.Flag) []byte {
	switch {
	case f&record.FlagDelete != 0:
		return []byte("DELETE")
	case f&record.FlagUpdate != 0:
		return []byte("UPDATE")
	default:
		return []byte("INSERT")
	}
}

// bindColumns sets Data on every ColI referenced from ti to dec's
// matching value, including the synthetic system columns (rh_Stamp,
// rh_UserId, rh_VTableId, and the INSERT/DELETE/UPDATE opcode).
func bindColumns(ti *types.TableI, dec *record.Decoded) {
	byID := make(map[types.Col]types.ColValue, len(dec.IDs))
	for i, id := range dec.IDs {
		byID[id] = dec.Cols[i]
	}

	for _, col := range ti.Cols {
		switch col.ID {
		case types.ColTimestamp:
			col.Data = codec.EncodeInt64(int64(dec.Head.Stamp))
		case types.ColUser:
			col.Data = codec.EncodeUint32(dec.Head.UserID)
		case types.ColVTableID:
			col.Data = codec.EncodeUint32(uint32(dec.Head.VTable))
		case types.ColOpcode:
			col.Data = opcodeText(dec.Head.Flags)
		default:
			if v, ok := byID[col.ID]; ok && !v.Null {
				col.Data = v.Bytes
			} else {
				col.Data = nil
			}
		}
	}
}
