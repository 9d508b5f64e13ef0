package types

// DataType identifies a column's comparator table (internal/optype) and
// encoding rules.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeVarChar
	TypeInt
	TypeInt64
	TypeFloat
	TypeStamp
	TypeBool
)

func (t DataType) String() string {
	switch t {
	case TypeVarChar:
		return "varchar"
	case TypeInt:
		return "int"
	case TypeInt64:
		return "int64"
	case TypeFloat:
		return "float"
	case TypeStamp:
		return "stamp"
	case TypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType maps a lowercase SQL type keyword to a DataType. ok is
// false for an unrecognized type (ErrUnknownType at the caller).
func ParseDataType(name string) (DataType, bool) {
	switch name {
	case "varchar", "char", "string", "text":
		return TypeVarChar, true
	case "int", "integer":
		return TypeInt, true
	case "int64", "bigint", "long":
		return TypeInt64, true
	case "float", "double", "real":
		return TypeFloat, true
	case "stamp", "timestamp":
		return TypeStamp, true
	case "bool", "boolean":
		return TypeBool, true
	default:
		return TypeUnknown, false
	}
}

// ColFlag is a bitmask of per-column schema attributes, carried on both
// the CREATE TABLE column definition and the parsed ColI reference.
type ColFlag uint32

const (
	ColFlagOrder ColFlag = 1 << iota
	ColFlagSortOrder
	ColFlagKey
	ColFlagNotNull
	ColFlagUnique
	ColFlagWild // CIF_WILD: this ColI came from a '*' wildcard expansion
	ColFlagDesc // sort descending (ORDER BY col DESC)
	ColFlagInvisible // sort key not in the client-visible show list
)

// ColumnDef is one column of a CREATE TABLE statement, and also the
// schema's in-memory representation of a table's column set (the "meta
// table" rows, materialized).
type ColumnDef struct {
	ID      Col
	Name    string
	Type    DataType
	Flags   ColFlag
	Default []byte // nil if no DEFAULT; NULL default is distinct, see HasDefault
	HasDefault bool
}

// NotNull reports whether this column rejects NULL.
func (c *ColumnDef) NotNull() bool { return c.Flags&ColFlagNotNull != 0 }

// IsKey reports whether this column is part of the table's primary key.
func (c *ColumnDef) IsKey() bool { return c.Flags&ColFlagKey != 0 }

// IsUnique reports whether this column has a UNIQUE constraint.
func (c *ColumnDef) IsUnique() bool { return c.Flags&ColFlagUnique != 0 }

// TableDef is a table's schema: its vtable id and ordered column set.
// Column order here is the CREATE TABLE declaration order; on-disk
// ColHead order (§3) is by ascending ColId, which FirstUserCol onward
// assignment keeps monotonic with declaration order in practice.
type TableDef struct {
	VTable  VTable
	Schema  string
	Name    string
	Columns []*ColumnDef
}

// ColumnByName looks up a column definition by name (case-sensitive;
// the parser lowercases identifiers before this lookup per lexer rules).
func (t *TableDef) ColumnByName(name string) (*ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnByID looks up a column definition by its assigned id.
func (t *TableDef) ColumnByID(id Col) (*ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// NextUserColID returns the id to assign to the next ADD COLUMN /
// CREATE TABLE column, continuing the monotonic sequence from
// FirstUserCol.
func (t *TableDef) NextUserColID() Col {
	max := FirstUserCol - 1
	for _, c := range t.Columns {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}
