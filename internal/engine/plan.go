package engine

import (
	"sort"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Plan chooses a scan strategy for every TableI in q: the
// lowest-numbered column with an index that is also referenced by a
// clause in the WHERE list, or a full scan (TABRAN_SLOP) if none
// applies (spec.md §4.5 Planning).
func Plan(q *types.Query, cat Catalog) (map[*types.TableI]*TableAccess, error) {
	access := make(map[*types.TableI]*TableAccess, len(q.Tables))

	for _, ti := range q.Tables {
		ta, err := cat.Access(ti.Def.VTable)
		if err != nil {
			return nil, err
		}
		access[ti] = ta

		ti.StartAppend = types.Off(ta.File.Header().Append)
		ti.IndexCol = 0
		ti.FullScan = true

		if len(ta.Indexes) == 0 {
			continue
		}
		cols := make([]types.Col, 0, len(ta.Indexes))
		for col := range ta.Indexes {
			cols = append(cols, col)
		}
		sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })

		for _, col := range cols {
			if referencedByClause(q, ti, col) {
				ti.IndexCol = col
				ti.FullScan = false
				break
			}
		}
	}

	return access, nil
}

// referencedByClause reports whether any WHERE clause constrains
// ti's column col, either against a constant or another table's
// column (an equi-join).
func referencedByClause(q *types.Query, ti *types.TableI, col types.Col) bool {
	for _, r := range q.Ranges {
		if r.Left != nil && r.Left.Table == ti && r.Left.ID == col {
			return true
		}
		if r.Right != nil && r.Right.Table == ti && r.Right.ID == col {
			return true
		}
	}
	return false
}
