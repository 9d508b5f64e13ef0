package engine

import (
	"path/filepath"
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/index"
	"github.com/jonahharris/osdb-backplane-sub001/internal/parser"
	"github.com/jonahharris/osdb-backplane-sub001/internal/tablefile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/txn"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

type fakeSchema struct{ def *types.TableDef }

func (s fakeSchema) LookupTable(schema, name string) (*types.TableDef, bool) {
	if name == s.def.Name {
		return s.def, true
	}
	return nil, false
}

type testCatalog struct {
	tables map[types.VTable]*TableAccess
}

func (c *testCatalog) Access(vt types.VTable) (*TableAccess, error) {
	ta, ok := c.tables[vt]
	if !ok {
		return nil, dberr.New(dberr.ErrTableNotFound)
	}
	return ta, nil
}

const widgetsVTable types.VTable = 2

func widgetsDef() *types.TableDef {
	return &types.TableDef{
		VTable: widgetsVTable,
		Name:   "widgets",
		Columns: []*types.ColumnDef{
			{ID: types.FirstUserCol, Name: "id", Type: types.TypeInt, Flags: types.ColFlagKey | types.ColFlagNotNull},
			{ID: types.FirstUserCol + 1, Name: "name", Type: types.TypeVarChar},
			{ID: types.FirstUserCol + 2, Name: "price", Type: types.TypeFloat},
		},
	}
}

// newTestEngine builds an Executor over one freshly created widgets
// table file, with an index over its id column.
func newTestEngine(t *testing.T) (*Executor, func(string) *types.Query) {
	t.Helper()
	dir := t.TempDir()
	tf, err := tablefile.Create(filepath.Join(dir, "widgets.dt0"), 0, 1, 1000)
	if err != nil {
		t.Fatalf("create table file: %v", err)
	}
	t.Cleanup(func() { tf.Close() })

	ix := index.New(widgetsVTable, types.FirstUserCol)
	ta := &TableAccess{File: tf, Indexes: map[types.Col]*index.Index{types.FirstUserCol: ix}}
	cat := &testCatalog{tables: map[types.VTable]*TableAccess{widgetsVTable: ta}}
	ex := NewExecutor(cat)

	def := widgetsDef()
	schema := fakeSchema{def: def}
	parse := func(src string) *types.Query {
		t.Helper()
		p := parser.New([]byte(src), schema)
		q, err := p.Parse()
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		return q
	}
	return ex, parse
}

func runOK(t *testing.T, ex *Executor, q *types.Query, tx *txn.Txn, emit func(*types.ResultRow) error) {
	t.Helper()
	if err := ex.Run(q, tx, emit); err != nil {
		t.Fatalf("run %v: %v", q.Kind, err)
	}
}

func collectRows(t *testing.T, ex *Executor, q *types.Query, tx *txn.Txn) []*types.ResultRow {
	t.Helper()
	var rows []*types.ResultRow
	runOK(t, ex, q, tx, func(r *types.ResultRow) error {
		rows = append(rows, r)
		return nil
	})
	return rows
}

func TestInsertThenSelectByIndexedEquality(t *testing.T) {
	ex, parse := newTestEngine(t)
	db := txn.NewDataBase(txn.NewManager(func() types.Stamp { return 1 }))
	tx := db.Push(100, 0)

	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (1, 'apple', 1.5);`), tx, nil)
	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (2, 'banana', 0.75);`), tx, nil)

	rows := collectRows(t, ex, parse(`SELECT id, name FROM widgets WHERE id = 1;`), tx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if string(rows[0].Show[0].Bytes) != "1" || string(rows[0].Show[1].Bytes) != "apple" {
		t.Fatalf("got row %+v", rows[0])
	}
}

func TestDeleteSuppressesRowFromLaterScans(t *testing.T) {
	ex, parse := newTestEngine(t)
	db := txn.NewDataBase(txn.NewManager(func() types.Stamp { return 1 }))
	tx := db.Push(100, 0)

	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (1, 'apple', 1.5);`), tx, nil)
	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (2, 'banana', 0.75);`), tx, nil)
	runOK(t, ex, parse(`DELETE FROM widgets WHERE id = 2;`), tx, nil)

	rows := collectRows(t, ex, parse(`SELECT id FROM widgets;`), tx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 surviving row, got %d", len(rows))
	}
	if string(rows[0].Show[0].Bytes) != "1" {
		t.Fatalf("expected surviving row id=1, got %+v", rows[0])
	}
}

func TestUpdateReplacesValueAtSameKey(t *testing.T) {
	ex, parse := newTestEngine(t)
	db := txn.NewDataBase(txn.NewManager(func() types.Stamp { return 1 }))
	tx := db.Push(100, 0)

	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (1, 'apple', 1.5);`), tx, nil)
	runOK(t, ex, parse(`UPDATE widgets SET price = 2 WHERE id = 1;`), tx, nil)

	rows := collectRows(t, ex, parse(`SELECT price FROM widgets WHERE id = 1;`), tx)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one current row for id=1, got %d", len(rows))
	}
	if string(rows[0].Show[0].Bytes) != "2" {
		t.Fatalf("expected updated price 2, got %q", rows[0].Show[0].Bytes)
	}
}

func TestCountMatchesInsertedRows(t *testing.T) {
	ex, parse := newTestEngine(t)
	db := txn.NewDataBase(txn.NewManager(func() types.Stamp { return 1 }))
	tx := db.Push(100, 0)

	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (1, 'apple', 1.5);`), tx, nil)
	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (2, 'banana', 0.75);`), tx, nil)

	q := parse(`COUNT * FROM widgets;`)
	runOK(t, ex, q, tx, nil)
	if q.RowCount != 2 {
		t.Fatalf("expected RowCount 2, got %d", q.RowCount)
	}
}

func TestFreezeHidesWritesFromLaterTransactions(t *testing.T) {
	ex, parse := newTestEngine(t)
	mgr := txn.NewManager(func() types.Stamp { return 1 })
	db := txn.NewDataBase(mgr)

	early := db.Push(50, 0)
	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (1, 'apple', 1.5);`), early, nil)

	late := txn.NewDataBase(mgr).Push(200, 0)
	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (2, 'banana', 0.75);`), late, nil)

	rowsAtEarlyFreeze := collectRows(t, ex, parse(`SELECT id FROM widgets;`), early)
	if len(rowsAtEarlyFreeze) != 1 {
		t.Fatalf("a transaction frozen at 50 should not see a write at stamp 200, got %d rows", len(rowsAtEarlyFreeze))
	}
}

func TestHistorySeesDeletedRows(t *testing.T) {
	ex, parse := newTestEngine(t)
	db := txn.NewDataBase(txn.NewManager(func() types.Stamp { return 1 }))
	tx := db.Push(100, 0)

	runOK(t, ex, parse(`INSERT INTO widgets (id, name, price) VALUES (1, 'apple', 1.5);`), tx, nil)
	runOK(t, ex, parse(`DELETE FROM widgets WHERE id = 1;`), tx, nil)

	current := collectRows(t, ex, parse(`SELECT id FROM widgets;`), tx)
	if len(current) != 0 {
		t.Fatalf("expected SELECT to hide the deleted row, got %d", len(current))
	}

	hist := collectRows(t, ex, parse(`HISTORY id FROM widgets;`), tx)
	if len(hist) != 2 {
		t.Fatalf("expected HISTORY to surface both the insert and the delete, got %d", len(hist))
	}
}
