package engine

import (
	"errors"
	"io"

	"github.com/jonahharris/osdb-backplane-sub001/internal/codec"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/optype"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Executor runs a planned Query against a Catalog of open table files
// and indexes (spec.md §4.5).
type Executor struct {
	cat Catalog
}

// NewExecutor constructs an Executor over cat.
func NewExecutor(cat Catalog) *Executor {
	return &Executor{cat: cat}
}

// scanStopped is the sentinel used to unwind a satisfied LIMIT out of
// the recursive nested scan without an error reaching the caller.
var scanStopped = errors.New("engine: scan limit reached")

// Select runs a SELECT/HISTORY/COUNT query at freeze, calling emit for
// every row that satisfies the WHERE clauses (not called at all for
// COUNT — inspect q.RowCount instead). HISTORY differs from SELECT
// only in that it skips DelHash suppression, surfacing every record
// version up to freeze rather than only the current one.
func (e *Executor) Select(q *types.Query, freeze types.Stamp, emit func(*types.ResultRow) error) error {
	access, err := Plan(q, e.cat)
	if err != nil {
		return err
	}

	history := q.Kind == types.StmtHistory
	dh := make(map[*types.TableI]delHash, len(q.Tables))
	if !history {
		for _, ti := range q.Tables {
			h, err := buildDelHash(access[ti].File, ti.Def.VTable, freeze, ti.StartAppend)
			if err != nil {
				return err
			}
			dh[ti] = h
		}
	}

	tableIdx := make(map[*types.TableI]int, len(q.Tables))
	for i, ti := range q.Tables {
		tableIdx[ti] = i
	}
	encoded, err := encodeConstants(q)
	if err != nil {
		return err
	}

	matched, emitted := 0, 0
	visit := func() error {
		matched++
		q.RowCount = matched
		if q.Kind == types.StmtCount {
			return nil
		}
		if matched <= q.Offset {
			return nil
		}
		if err := emit(materializeRow(q)); err != nil {
			return err
		}
		emitted++
		if q.Limit > 0 && emitted >= q.Limit {
			return scanStopped
		}
		return nil
	}

	err = e.scanLevel(q, access, dh, tableIdx, encoded, freeze, history, 0, visit)
	if err == scanStopped {
		return nil
	}
	return err
}

func (e *Executor) scanLevel(
	q *types.Query,
	access map[*types.TableI]*TableAccess,
	dh map[*types.TableI]delHash,
	tableIdx map[*types.TableI]int,
	encoded map[*types.Range][]byte,
	freeze types.Stamp,
	history bool,
	level int,
	visit func() error,
) error {
	if level == len(q.Tables) {
		return visit()
	}

	ti := q.Tables[level]
	ta := access[ti]
	cur := e.openCursor(q, ti, ta, freeze, encoded)

	for {
		dec, _, err := cur.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if dec.Head.VTable != ti.Def.VTable {
			continue
		}
		if history {
			if dec.Head.Stamp > freeze {
				continue
			}
		} else if !dh[ti].visible(dec, freeze) {
			continue
		}

		bindColumns(ti, dec)

		ok, truncate := evaluateReady(q, ti, tableIdx, level, encoded)
		if !ok {
			if truncate {
				return nil
			}
			continue
		}

		if err := e.scanLevel(q, access, dh, tableIdx, encoded, freeze, history, level+1, visit); err != nil {
			return err
		}
	}
}

// openCursor picks the index-bounded or sequential cursor chosen by
// Plan for ti, seeding the index range scan from whichever WHERE
// clause Plan found against ti.IndexCol.
func (e *Executor) openCursor(q *types.Query, ti *types.TableI, ta *TableAccess, freeze types.Stamp, encoded map[*types.Range][]byte) *rowCursor {
	if ti.FullScan || ti.IndexCol == 0 {
		return newSequentialCursor(ta.File, ti.StartAppend)
	}
	ix, ok := ta.IndexFor(ti.IndexCol)
	if !ok {
		return newSequentialCursor(ta.File, ti.StartAppend)
	}
	key, op, ok := indexSeed(q, ti, ti.IndexCol, encoded)
	if !ok {
		return newSequentialCursor(ta.File, ti.StartAppend)
	}
	return newIndexCursor(ta.File, ix, key, op, ti.StartAppend)
}

// indexSeed finds the WHERE constant bound against ti's chosen index
// column, if any. A clause equi-joining ti's column to a sibling
// table's column cannot seed a range scan before that table is bound,
// so it is skipped here and left to evaluateReady's post-filter once
// both sides are available.
func indexSeed(q *types.Query, ti *types.TableI, col types.Col, encoded map[*types.Range][]byte) ([]byte, types.OpCode, bool) {
	for _, r := range q.Ranges {
		if r.Left == nil || r.Left.Table != ti || r.Left.ID != col || r.Right != nil {
			continue
		}
		switch r.Op {
		case types.OpEQ, types.OpLT, types.OpLE, types.OpGT, types.OpGE:
			return encoded[r], r.Op, true
		}
	}
	return nil, types.OpEQ, false
}

// evaluateReady evaluates every WHERE clause whose referenced tables
// have all been bound by level, returning ok=false if any evaluates
// FALSE. truncate signals that the false clause was the chosen index
// column's own bound, in ascending scan order, so the remainder of
// this table's scan cannot satisfy it either (spec.md §4.5's
// "-2 at the outer range bound" short-circuit).
func evaluateReady(q *types.Query, ti *types.TableI, tableIdx map[*types.TableI]int, level int, encoded map[*types.Range][]byte) (ok bool, truncate bool) {
	ok = true
	for _, r := range q.Ranges {
		if tableIdx[r.Left.Table] > level {
			continue
		}
		if r.Right != nil && tableIdx[r.Right.Table] > level {
			continue
		}
		reg := regionFor(r, encoded)
		if reg.Bool() {
			continue
		}
		ok = false
		if ti.IndexCol != 0 && r.Left.Table == ti && r.Left.ID == ti.IndexCol && reg == optype.RegionFalseHigh {
			truncate = true
		}
	}
	return ok, truncate
}

func regionFor(r *types.Range, encoded map[*types.Range][]byte) optype.Region {
	left := r.Left.Data
	var right []byte
	if r.Right != nil {
		right = r.Right.Data
	} else {
		right = encoded[r]
	}
	return optype.Lookup(r.Left.Type, r.Op)(left, right)
}

// encodeConstants converts every non-join clause's text literal to the
// binary form its column's DataType compares against, once per query.
func encodeConstants(q *types.Query) (map[*types.Range][]byte, error) {
	out := make(map[*types.Range][]byte, len(q.Ranges))
	for _, r := range q.Ranges {
		if r.Right != nil || r.Const == nil {
			continue
		}
		enc, err := codec.Encode(r.Left.Type, r.Const)
		if err != nil {
			return nil, dberr.Wrap(dberr.ErrUnknownType, err)
		}
		out[r] = enc
	}
	return out, nil
}

// materializeRow builds a ResultRow from the currently bound Show/Sort
// columns, converting stored binary values back to client-visible text
// via codec.Display.
func materializeRow(q *types.Query) *types.ResultRow {
	row := &types.ResultRow{Show: make([]types.ColValue, len(q.Show))}
	for i, col := range q.Show {
		row.Show[i] = displayValue(col)
	}
	if len(q.Sort) > 0 {
		row.Sort = make([]types.SortValue, len(q.Sort))
		showSet := make(map[*types.ColI]bool, len(q.Show))
		for _, c := range q.Show {
			showSet[c] = true
		}
		for i, sc := range q.Sort {
			var flags types.SortFlag
			if sc.Desc {
				flags |= types.SortFlagDesc
			}
			if showSet[sc.Col] {
				flags |= types.SortFlagInShow
			}
			row.Sort[i] = types.SortValue{Value: displayValue(sc.Col), Flags: flags}
		}
	}
	return row
}

func displayValue(col *types.ColI) types.ColValue {
	if col.IsNull() {
		return types.ColValue{Null: true}
	}
	return types.ColValue{Bytes: codec.Display(col.Type, col.Data)}
}
