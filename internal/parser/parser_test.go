package parser

import (
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

// fakeSchema is a minimal in-memory Schema for parser tests.
type fakeSchema struct {
	tables map[string]*types.TableDef
}

func newFakeSchema() *fakeSchema {
	widgets := &types.TableDef{
		Name: "widgets",
		Columns: []*types.ColumnDef{
			{ID: types.FirstUserCol, Name: "id", Type: types.TypeInt, Flags: types.ColFlagKey | types.ColFlagNotNull},
			{ID: types.FirstUserCol + 1, Name: "name", Type: types.TypeVarChar},
			{ID: types.FirstUserCol + 2, Name: "price", Type: types.TypeFloat},
		},
	}
	return &fakeSchema{tables: map[string]*types.TableDef{"widgets": widgets}}
}

func (s *fakeSchema) LookupTable(schema, name string) (*types.TableDef, bool) {
	t, ok := s.tables[name]
	return t, ok
}

func parse(t *testing.T, src string) *types.Query {
	t.Helper()
	p := New([]byte(src), newFakeSchema())
	q, err := p.Parse()
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return q
}

func TestParseSelectStar(t *testing.T) {
	q := parse(t, "SELECT * FROM widgets;")
	if q.Kind != types.StmtSelect {
		t.Fatalf("got kind %v", q.Kind)
	}
	if len(q.Show) != 3 {
		t.Fatalf("expected 3 columns from wildcard expansion, got %d", len(q.Show))
	}
}

func TestParseSelectColumnsBeforeFromResolved(t *testing.T) {
	q := parse(t, "SELECT name, price FROM widgets WHERE id = 1;")
	if len(q.Show) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(q.Show))
	}
	if q.Show[0].Name != "name" || q.Show[1].Name != "price" {
		t.Fatalf("got %+v", q.Show)
	}
	if len(q.Ranges) != 1 {
		t.Fatalf("expected 1 range, got %d", len(q.Ranges))
	}
	r := q.Ranges[0]
	if r.Left == nil || r.Left.Name != "id" || r.Op != types.OpEQ || string(r.Const) != "1" {
		t.Fatalf("got range %+v", r)
	}
}

func TestParseWhereConstantOnLeftIsNormalized(t *testing.T) {
	q := parse(t, "SELECT id FROM widgets WHERE 1 = id;")
	r := q.Ranges[0]
	if r.Left == nil || r.Left.Name != "id" || r.Op != types.OpEQ {
		t.Fatalf("expected normalized column-left range, got %+v", r)
	}
}

func TestParseWhereFlipsInequality(t *testing.T) {
	q := parse(t, "SELECT id FROM widgets WHERE 10 > id;")
	r := q.Ranges[0]
	if r.Left == nil || r.Left.Name != "id" || r.Op != types.OpLT {
		t.Fatalf("expected flipped LT, got %+v", r)
	}
}

func TestParseWhereTwoConstantsIsError(t *testing.T) {
	p := New([]byte("SELECT id FROM widgets WHERE 1 = 2;"), newFakeSchema())
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected an error for two-constant comparison")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Code != -6 {
		t.Fatalf("expected ErrTwoConstants, got %v", pe.Code)
	}
}

func TestParseAndOnlyWhere(t *testing.T) {
	q := parse(t, "SELECT id FROM widgets WHERE id = 1 AND name = 'a';")
	if len(q.Ranges) != 2 {
		t.Fatalf("expected 2 AND-joined ranges, got %d", len(q.Ranges))
	}
}

func TestParseOrderByDesc(t *testing.T) {
	q := parse(t, "SELECT id FROM widgets ORDER BY price DESC;")
	if len(q.Sort) != 1 || !q.Sort[0].Desc || q.Sort[0].Col.Name != "price" {
		t.Fatalf("got %+v", q.Sort)
	}
}

func TestParseLimitOffset(t *testing.T) {
	q := parse(t, "SELECT id FROM widgets LIMIT 5,10;")
	if q.Offset != 5 || q.Limit != 10 {
		t.Fatalf("expected offset=5 limit=10, got offset=%d limit=%d", q.Offset, q.Limit)
	}
}

func TestParseInsertExplicitColumns(t *testing.T) {
	q := parse(t, "INSERT INTO widgets (id, name) VALUES (1, 'gizmo');")
	if q.Kind != types.StmtInsert {
		t.Fatalf("got kind %v", q.Kind)
	}
	if len(q.SetCols) != 2 || len(q.SetVals) != 2 {
		t.Fatalf("got %d cols, %d vals", len(q.SetCols), len(q.SetVals))
	}
	if string(q.SetVals[1]) != "gizmo" {
		t.Fatalf("got %q", q.SetVals[1])
	}
}

func TestParseInsertImplicitColumnsUseSchemaOrder(t *testing.T) {
	q := parse(t, "INSERT INTO widgets VALUES (1, 'gizmo', 9.99);")
	if len(q.SetCols) != 3 {
		t.Fatalf("expected all 3 schema columns, got %d", len(q.SetCols))
	}
	if q.SetCols[2].Name != "price" {
		t.Fatalf("got %+v", q.SetCols)
	}
}

func TestParseInsertMismatchedValueCountIsError(t *testing.T) {
	p := New([]byte("INSERT INTO widgets (id, name) VALUES (1);"), newFakeSchema())
	if _, err := p.Parse(); err == nil {
		t.Fatalf("expected an error for mismatched value count")
	}
}

func TestParseDeleteRequiresWhere(t *testing.T) {
	p := New([]byte("DELETE FROM widgets;"), newFakeSchema())
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected missing-WHERE error")
	}
	pe := err.(*ParseError)
	if pe.Code != -4 {
		t.Fatalf("expected ErrMissingWhere, got %v", pe.Code)
	}
}

func TestParseDeleteWithWhere(t *testing.T) {
	q := parse(t, "DELETE FROM widgets WHERE id = 1;")
	if q.Kind != types.StmtDelete || len(q.Ranges) != 1 {
		t.Fatalf("got %+v", q)
	}
}

func TestParseUpdateRequiresWhere(t *testing.T) {
	p := New([]byte("UPDATE widgets SET name = 'x';"), newFakeSchema())
	if _, err := p.Parse(); err == nil {
		t.Fatalf("expected missing-WHERE error")
	}
}

func TestParseUpdateSetAndWhere(t *testing.T) {
	q := parse(t, "UPDATE widgets SET name = 'x', price = 1.5 WHERE id = 1;")
	if q.Kind != types.StmtUpdate {
		t.Fatalf("got kind %v", q.Kind)
	}
	if len(q.SetCols) != 2 || len(q.SetVals) != 2 {
		t.Fatalf("got %+v / %+v", q.SetCols, q.SetVals)
	}
	if len(q.Ranges) != 1 {
		t.Fatalf("expected 1 range, got %d", len(q.Ranges))
	}
}

func TestParseCloneParsesLikeUpdate(t *testing.T) {
	q := parse(t, "CLONE widgets SET price = 2.0 WHERE id = 1;")
	if q.Kind != types.StmtClone {
		t.Fatalf("got kind %v", q.Kind)
	}
	if len(q.SetCols) != 1 || len(q.Ranges) != 1 {
		t.Fatalf("got %+v", q)
	}
}

func TestParseCount(t *testing.T) {
	q := parse(t, "COUNT * FROM widgets WHERE id = 1;")
	if q.Kind != types.StmtCount {
		t.Fatalf("got kind %v", q.Kind)
	}
}

func TestParseHistory(t *testing.T) {
	q := parse(t, "HISTORY * FROM widgets;")
	if q.Kind != types.StmtHistory {
		t.Fatalf("got kind %v", q.Kind)
	}
}

func TestParseCreateTable(t *testing.T) {
	p := New([]byte("CREATE TABLE gadgets (id int PRIMARY KEY, label varchar NOT NULL);"), newFakeSchema())
	q, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Kind != types.StmtCreateTable {
		t.Fatalf("got kind %v", q.Kind)
	}
	if q.NewTable.Name != "gadgets" || len(q.NewTable.Columns) != 2 {
		t.Fatalf("got %+v", q.NewTable)
	}
	if !q.NewTable.Columns[0].IsKey() {
		t.Fatalf("expected id to be the primary key")
	}
	if !q.NewTable.Columns[1].NotNull() {
		t.Fatalf("expected label to be NOT NULL")
	}
}

func TestParseAlterTableAddColumn(t *testing.T) {
	q := parse(t, "ALTER TABLE widgets ADD COLUMN weight float;")
	if q.Kind != types.StmtAlterTable || q.AlterAdd == nil {
		t.Fatalf("got %+v", q)
	}
	if q.AlterAdd.Name != "weight" || q.AlterAdd.Type != types.TypeFloat {
		t.Fatalf("got %+v", q.AlterAdd)
	}
}

func TestParseAlterTableDropColumn(t *testing.T) {
	q := parse(t, "ALTER TABLE widgets DROP COLUMN price;")
	if q.Kind != types.StmtAlterTable || q.AlterDrop != "price" {
		t.Fatalf("got %+v", q)
	}
}

func TestParseDropTable(t *testing.T) {
	q := parse(t, "DROP TABLE widgets;")
	if q.Kind != types.StmtDropTable {
		t.Fatalf("got kind %v", q.Kind)
	}
}

func TestParseSelectMissingColumnListIsError(t *testing.T) {
	// spec.md S5: "SELECT FROM t;" has no column list and no FROM
	// boundary to recover at, so the token right after SELECT (FROM
	// itself) cannot be consumed as a column identifier.
	p := New([]byte("SELECT FROM widgets;"), newFakeSchema())
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestParseUnknownTableIsError(t *testing.T) {
	p := New([]byte("SELECT * FROM nosuchtable;"), newFakeSchema())
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected table-not-found error")
	}
	pe := err.(*ParseError)
	if pe.Code != -21 {
		t.Fatalf("expected ErrTableNotFound, got %v", pe.Code)
	}
}

func TestParseUnknownColumnIsError(t *testing.T) {
	p := New([]byte("SELECT bogus FROM widgets;"), newFakeSchema())
	_, err := p.Parse()
	if err == nil {
		t.Fatalf("expected column-not-found error")
	}
	pe := err.(*ParseError)
	if pe.Code != -22 {
		t.Fatalf("expected ErrColumnNotFound, got %v", pe.Code)
	}
}

func TestParseAliasedSelfJoin(t *testing.T) {
	q := parse(t, "SELECT a.id, b.id FROM widgets = a, widgets = b WHERE a.id = b.id;")
	if len(q.Tables) != 2 {
		t.Fatalf("expected 2 table instances, got %d", len(q.Tables))
	}
	if q.Tables[0].Alias != "a" || q.Tables[1].Alias != "b" {
		t.Fatalf("got aliases %q, %q", q.Tables[0].Alias, q.Tables[1].Alias)
	}
	r := q.Ranges[0]
	if !r.IsEquiJoin() {
		t.Fatalf("expected an equi-join range")
	}
}
