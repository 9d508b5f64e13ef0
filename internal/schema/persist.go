package schema

import (
	"encoding/json"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// opKind discriminates one sys.dt0 meta-log entry.
type opKind string

const (
	opCreate    opKind = "create"
	opAlterAdd  opKind = "alter_add"
	opAlterDrop opKind = "alter_drop"
	opDrop      opKind = "drop"
)

// metaOp is the JSON payload of one meta-log record. Only the fields
// relevant to Kind are populated.
type metaOp struct {
	Kind   opKind          `json:"kind"`
	VTable types.VTable    `json:"vtable"`
	Def    *types.TableDef `json:"def,omitempty"`     // opCreate
	Column *types.ColumnDef `json:"column,omitempty"` // opAlterAdd
	Name   string          `json:"name,omitempty"`    // opAlterDrop: column name
}

// appendOp serializes op and appends it to sys.dt0 as a single-column
// record (spec.md's "sys.dt0 root system table", carried here as a
// JSON blob rather than the individually-typed schema/table/column
// rows spec.md's C original used, since this module already owns a
// general-purpose JSON-friendly TableDef/ColumnDef pair — see
// DESIGN.md).
func (c *Catalog) appendOp(op metaOp) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return dberr.Wrap(dberr.ErrDataTooLarge, err)
	}
	head := record.Head{
		Flags:  record.FlagInsert,
		VTable: sysVTable,
		Stamp:  c.sys.NextStamp(),
		Hash:   record.ContentHash([][]byte{payload}),
	}
	buf, err := record.Encode(head, []types.Col{metaPayloadCol}, []types.ColValue{{Bytes: payload}})
	if err != nil {
		return err
	}
	_, err = c.sys.Append(buf)
	return err
}

// replayMetaLog reconstructs the current table set by applying every
// sys.dt0 entry in append order.
func (c *Catalog) replayMetaLog() ([]*types.TableDef, error) {
	defs := make(map[types.VTable]*types.TableDef)
	order := make([]types.VTable, 0)

	err := walkLive(c.sys, sysVTable, func(ids []types.Col, cols []types.ColValue, off types.Off) {
		var payload []byte
		for i, id := range ids {
			if id == metaPayloadCol && !cols[i].Null {
				payload = cols[i].Bytes
			}
		}
		if payload == nil {
			return
		}
		var op metaOp
		if err := json.Unmarshal(payload, &op); err != nil {
			return
		}
		switch op.Kind {
		case opCreate:
			if _, exists := defs[op.VTable]; !exists {
				order = append(order, op.VTable)
			}
			defs[op.VTable] = op.Def
		case opAlterAdd:
			if def, ok := defs[op.VTable]; ok {
				def.Columns = append(def.Columns, op.Column)
			}
		case opAlterDrop:
			if def, ok := defs[op.VTable]; ok {
				def.Columns = dropColumn(def.Columns, op.Name)
			}
		case opDrop:
			delete(defs, op.VTable)
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]*types.TableDef, 0, len(order))
	for _, vt := range order {
		if def, ok := defs[vt]; ok {
			out = append(out, def)
		}
	}
	return out, nil
}

func dropColumn(cols []*types.ColumnDef, name string) []*types.ColumnDef {
	out := cols[:0]
	for _, c := range cols {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return out
}
