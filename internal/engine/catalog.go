// Package engine implements query planning, the nested cartesian scan,
// DelHash-based delete visibility, and result materialization
// described in spec.md §4.5.
package engine

import (
	"github.com/jonahharris/osdb-backplane-sub001/internal/index"
	"github.com/jonahharris/osdb-backplane-sub001/internal/tablefile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// TableAccess bundles one vtable's physical file and its live indexes,
// the unit the planner and scanner need per TableI.
type TableAccess struct {
	File    *tablefile.TableFile
	Indexes map[types.Col]*index.Index // nil entry allowed; absent key means "no index"
}

// IndexFor returns the index over col, if one exists.
func (ta *TableAccess) IndexFor(col types.Col) (*index.Index, bool) {
	ix, ok := ta.Indexes[col]
	return ix, ok
}

// Catalog resolves a vtable id to its open physical file and indexes.
// internal/schema implements this against the running instance's open
// table set.
type Catalog interface {
	Access(vtable types.VTable) (*TableAccess, error)
}
