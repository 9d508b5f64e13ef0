package engine

import (
	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/txn"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// Run dispatches q to the matching scan or mutation path. DDL
// (CREATE/ALTER/DROP TABLE) is not handled here — internal/dispatch
// routes those directly to internal/schema, since they never need a
// transaction's freeze/write stamp. emit is called once per output row
// for SELECT/HISTORY; it is never called for COUNT or a mutation
// statement (inspect q.RowCount instead).
func (e *Executor) Run(q *types.Query, t *txn.Txn, emit func(*types.ResultRow) error) error {
	switch q.Kind {
	case types.StmtSelect, types.StmtHistory, types.StmtCount:
		return e.Select(q, t.Freeze, emit)
	case types.StmtInsert:
		return e.Insert(q, t)
	case types.StmtDelete:
		return e.Delete(q, t)
	case types.StmtUpdate, types.StmtClone:
		return e.Update(q, t)
	default:
		return dberr.Newf(dberr.ErrUnexpectedToken, "%s is not executed by the query engine", q.Kind)
	}
}
