package schema

import (
	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

const defaultSchema = "default"

func schemaOrDefault(s string) string {
	if s == "" {
		return defaultSchema
	}
	return s
}

// CreateTable assigns def a fresh vtable id, persists the CREATE TABLE
// op to sys.dt0, and attaches it to the live catalog. def.Schema/Name/
// Columns must already be set (the parser's NewTable); the returned
// TableDef carries the assigned VTable.
func (c *Catalog) CreateTable(def *types.TableDef) (*types.TableDef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	def.Schema = schemaOrDefault(def.Schema)
	if _, exists := c.byName[qualify(def.Schema, def.Name)]; exists {
		return nil, dberr.Newf(dberr.ErrTableExists, "%s.%s", def.Schema, def.Name)
	}

	def.VTable = c.nextVTable
	c.nextVTable += 2

	if err := c.appendOp(metaOp{Kind: opCreate, VTable: def.VTable, Def: def}); err != nil {
		return nil, err
	}
	if err := c.attach(def); err != nil {
		return nil, err
	}
	return def, nil
}

// AlterAddColumn appends col to vt's definition.
func (c *Catalog) AlterAddColumn(vt types.VTable, col *types.ColumnDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tables[vt]
	if !ok {
		return dberr.Newf(dberr.ErrTableNotFound, "vtable %d", vt)
	}
	if _, exists := entry.def.ColumnByName(col.Name); exists {
		return dberr.Newf(dberr.ErrColumnExists, "%s", col.Name)
	}

	if err := c.appendOp(metaOp{Kind: opAlterAdd, VTable: vt, Column: col}); err != nil {
		return err
	}
	entry.def.Columns = append(entry.def.Columns, col)
	return c.attach(entry.def)
}

// AlterDropColumn removes the column named name from vt's definition.
func (c *Catalog) AlterDropColumn(vt types.VTable, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tables[vt]
	if !ok {
		return dberr.Newf(dberr.ErrTableNotFound, "vtable %d", vt)
	}
	if _, exists := entry.def.ColumnByName(name); !exists {
		return dberr.Newf(dberr.ErrColumnNotFound, "%s", name)
	}

	if err := c.appendOp(metaOp{Kind: opAlterDrop, VTable: vt, Name: name}); err != nil {
		return err
	}
	entry.def.Columns = dropColumn(entry.def.Columns, name)
	return c.attach(entry.def)
}

// DropTable removes vt from the live catalog. The physical records
// already written under vt are left on disk, unreachable through the
// catalog the same way a freed vtable id is in spec.md's original.
func (c *Catalog) DropTable(vt types.VTable) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tables[vt]
	if !ok {
		return dberr.Newf(dberr.ErrTableNotFound, "vtable %d", vt)
	}
	if err := c.appendOp(metaOp{Kind: opDrop, VTable: vt}); err != nil {
		return err
	}
	delete(c.tables, vt)
	delete(c.byName, qualify(entry.schema, entry.def.Name))
	return nil
}
