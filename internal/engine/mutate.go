package engine

import (
	"io"
	"sort"

	"github.com/jonahharris/osdb-backplane-sub001/internal/codec"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/record"
	"github.com/jonahharris/osdb-backplane-sub001/internal/txn"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// recordKey is the conflict-registry key for a logical row: its
// content hash, which both the original INSERT and the DELETE that
// retires it share (spec.md §4.5 Deletes).
func recordKey(hash uint16) []byte {
	return []byte{byte(hash >> 8), byte(hash)}
}

// scanSingle runs q's WHERE clause against its sole table (DELETE,
// UPDATE and CLONE never join), calling onMatch for every visible row
// that satisfies it.
func (e *Executor) scanSingle(q *types.Query, freeze types.Stamp, onMatch func(dec *record.Decoded, off types.Off) error) error {
	if len(q.Tables) != 1 {
		return dberr.Newf(dberr.ErrUnexpectedToken, "%s does not support multiple tables", q.Kind)
	}
	access, err := Plan(q, e.cat)
	if err != nil {
		return err
	}
	ti := q.Tables[0]
	ta := access[ti]

	dh, err := buildDelHash(ta.File, ti.Def.VTable, freeze, ti.StartAppend)
	if err != nil {
		return err
	}

	tableIdx := map[*types.TableI]int{ti: 0}
	encoded, err := encodeConstants(q)
	if err != nil {
		return err
	}

	cur := e.openCursor(q, ti, ta, freeze, encoded)
	for {
		dec, off, err := cur.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if dec.Head.VTable != ti.Def.VTable {
			continue
		}
		if !dh.visible(dec, freeze) {
			continue
		}
		bindColumns(ti, dec)

		ok, truncate := evaluateReady(q, ti, tableIdx, 0, encoded)
		if !ok {
			if truncate {
				return nil
			}
			continue
		}
		if err := onMatch(dec, off); err != nil {
			return err
		}
	}
}

// updateIndexes records off against every index whose column has a
// non-NULL value among ids/cols.
func updateIndexes(ta *TableAccess, ids []types.Col, cols []types.ColValue, off types.Off) {
	for col, ix := range ta.Indexes {
		for i, id := range ids {
			if id == col && !cols[i].Null {
				ix.Update(cols[i].Bytes, off)
			}
		}
	}
}

// Insert appends a new record for an INSERT statement, registers the
// write with t for two-phase commit, and updates every live index.
func (e *Executor) Insert(q *types.Query, t *txn.Txn) error {
	ti := q.Tables[0]
	ta, err := e.cat.Access(ti.Def.VTable)
	if err != nil {
		return err
	}

	ids := make([]types.Col, len(q.SetCols))
	vals := make([]types.ColValue, len(q.SetCols))
	for i, col := range q.SetCols {
		ids[i] = col.ID
		raw := q.SetVals[i]
		if raw == nil {
			if col.Flags&(types.ColFlagNotNull|types.ColFlagKey) != 0 {
				return dberr.Newf(dberr.ErrKeyEmpty, "column %q cannot be NULL", col.Name)
			}
			vals[i] = types.ColValue{Null: true}
			continue
		}
		enc, err := codec.Encode(col.Type, raw)
		if err != nil {
			return err
		}
		vals[i] = types.ColValue{Bytes: enc}
	}
	sortColumnsByID(ids, vals)

	keyVals := keyValues(ti.Def, ids, vals)
	head := record.Head{
		Flags:  record.FlagInsert,
		VTable: ti.Def.VTable,
		Stamp:  t.WriteTs,
		Hash:   record.ContentHash(keyVals),
	}
	buf, err := record.Encode(head, ids, vals)
	if err != nil {
		return err
	}
	off, err := ta.File.Append(buf)
	if err != nil {
		return err
	}

	updateIndexes(ta, ids, vals, off)
	t.Touch(ti.Def.VTable, recordKey(head.Hash))
	q.RowCount = 1
	return nil
}

// Delete retires every row matched by q's WHERE clause with a
// DELETE-flagged record sharing the original's content hash.
func (e *Executor) Delete(q *types.Query, t *txn.Txn) error {
	ti := q.Tables[0]
	ta, err := e.cat.Access(ti.Def.VTable)
	if err != nil {
		return err
	}

	count := 0
	err = e.scanSingle(q, t.Freeze, func(dec *record.Decoded, off types.Off) error {
		buf, err := record.Encode(record.Head{
			Flags:  record.FlagDelete,
			VTable: ti.Def.VTable,
			Stamp:  t.WriteTs,
			UserID: dec.Head.UserID,
			Hash:   dec.Head.Hash,
		}, dec.IDs, dec.Cols)
		if err != nil {
			return err
		}
		newOff, err := ta.File.Append(buf)
		if err != nil {
			return err
		}
		updateIndexes(ta, dec.IDs, dec.Cols, newOff)
		t.Touch(ti.Def.VTable, recordKey(dec.Head.Hash))
		count++
		return nil
	})
	if err != nil {
		return err
	}
	q.RowCount = count
	return nil
}

// Update retires every row matched by q's WHERE clause with a DELETE
// record, then writes a replacement carrying the SET column overlay as
// an INSERT+UPDATE-flagged record sharing the transaction's write
// stamp (spec.md §4.5 UPDATE semantics). CLONE is applied identically
// (SPEC_FULL.md's Open Questions decision).
func (e *Executor) Update(q *types.Query, t *txn.Txn) error {
	ti := q.Tables[0]
	ta, err := e.cat.Access(ti.Def.VTable)
	if err != nil {
		return err
	}

	setRaw := make(map[types.Col][]byte, len(q.SetCols))
	setType := make(map[types.Col]types.DataType, len(q.SetCols))
	for i, col := range q.SetCols {
		setRaw[col.ID] = q.SetVals[i]
		setType[col.ID] = col.Type
	}

	count := 0
	err = e.scanSingle(q, t.Freeze, func(dec *record.Decoded, off types.Off) error {
		delBuf, err := record.Encode(record.Head{
			Flags:  record.FlagDelete,
			VTable: ti.Def.VTable,
			Stamp:  t.WriteTs,
			UserID: dec.Head.UserID,
			Hash:   dec.Head.Hash,
		}, dec.IDs, dec.Cols)
		if err != nil {
			return err
		}
		if _, err := ta.File.Append(delBuf); err != nil {
			return err
		}

		newCols := make([]types.ColValue, len(dec.Cols))
		copy(newCols, dec.Cols)
		for i, id := range dec.IDs {
			raw, changed := setRaw[id]
			if !changed {
				continue
			}
			if raw == nil {
				newCols[i] = types.ColValue{Null: true}
				continue
			}
			enc, err := codec.Encode(setType[id], raw)
			if err != nil {
				return err
			}
			newCols[i] = types.ColValue{Bytes: enc}
		}

		newHash := record.ContentHash(keyValues(ti.Def, dec.IDs, newCols))
		insBuf, err := record.Encode(record.Head{
			Flags:  record.FlagInsert | record.FlagUpdate,
			VTable: ti.Def.VTable,
			Stamp:  t.WriteTs,
			UserID: dec.Head.UserID,
			Hash:   newHash,
		}, dec.IDs, newCols)
		if err != nil {
			return err
		}
		newOff, err := ta.File.Append(insBuf)
		if err != nil {
			return err
		}

		updateIndexes(ta, dec.IDs, newCols, newOff)
		t.Touch(ti.Def.VTable, recordKey(dec.Head.Hash))
		t.Touch(ti.Def.VTable, recordKey(newHash))
		count++
		return nil
	})
	if err != nil {
		return err
	}
	q.RowCount = count
	return nil
}

// keyValues returns the values of def's PRIMARY KEY columns among
// ids/cols, in ascending column-id order, falling back to every
// non-NULL column when the table declares no key (ContentHash only
// needs a stable, deterministic input).
func keyValues(def *types.TableDef, ids []types.Col, cols []types.ColValue) [][]byte {
	var keyCols []types.Col
	for _, cd := range def.Columns {
		if cd.IsKey() {
			keyCols = append(keyCols, cd.ID)
		}
	}
	want := func(id types.Col) bool {
		if len(keyCols) == 0 {
			return true
		}
		for _, k := range keyCols {
			if k == id {
				return true
			}
		}
		return false
	}

	var out [][]byte
	for i, id := range ids {
		if !want(id) || cols[i].Null {
			continue
		}
		out = append(out, cols[i].Bytes)
	}
	return out
}

// sortColumnsByID reorders ids/cols ascending by column id in place,
// the order internal/record.Encode requires.
func sortColumnsByID(ids []types.Col, vals []types.ColValue) {
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return ids[idx[i]] < ids[idx[j]] })

	sortedIDs := make([]types.Col, len(ids))
	sortedVals := make([]types.ColValue, len(vals))
	for i, j := range idx {
		sortedIDs[i] = ids[j]
		sortedVals[i] = vals[j]
	}
	copy(ids, sortedIDs)
	copy(vals, sortedVals)
}
