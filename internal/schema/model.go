package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// MaxLength marks an unbounded ("max") character or binary column.
const MaxLength = -1

// ClusterTarget selects which index receives the clustered storage order.
type ClusterTarget int

const (
	ClusterDefault ClusterTarget = iota
	ClusterPrimaryKey
	ClusterIdentity
)

func (c ClusterTarget) String() string {
	switch c {
	case ClusterPrimaryKey:
		return "primaryKey"
	case ClusterIdentity:
		return "identity"
	default:
		return "default"
	}
}

// TableInfo identifies a table, either declared by a model or found in the database.
type TableInfo struct {
	Schema    string
	Name      string
	ModelType reflect.Type // nil for introspected tables
	Cluster   ClusterTarget
}

// Key is the normalized lookup key (lowercase schema.name).
func (t TableInfo) Key() string {
	return TableKey(t.Schema, t.Name)
}

// Equal compares schema and name case-insensitively.
func (t TableInfo) Equal(o TableInfo) bool {
	return strings.EqualFold(t.Schema, o.Schema) && strings.EqualFold(t.Name, o.Name)
}

func (t TableInfo) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// TableKey builds the key used by every table-indexed map in this module.
func TableKey(schemaName, table string) string {
	return strings.ToLower(schemaName) + "." + strings.ToLower(table)
}

// DataType describes a column's SQL type.
type DataType struct {
	Base      string
	Length    int // MaxLength for unbounded, 0 when not applicable
	Precision int
	Scale     int
	Collation string
}

// IsMax reports whether the type has unbounded length.
func (d DataType) IsMax() bool {
	return d.Length == MaxLength
}

func (d DataType) String() string {
	switch {
	case d.Length == MaxLength:
		return d.Base + "(max)"
	case d.Length > 0:
		return fmt.Sprintf("%s(%d)", d.Base, d.Length)
	case d.Precision > 0:
		return fmt.Sprintf("%s(%d,%d)", d.Base, d.Precision, d.Scale)
	default:
		return d.Base
	}
}

// ColumnInfo describes a single column. Equality is by (schema, table, name) only;
// type differences are detected with IsAltered.
type ColumnInfo struct {
	Schema     string
	Table      string
	Name       string
	Type       DataType
	Nullable   bool
	Calculated bool
	Expression string
	ForeignKey bool
	PrimaryKey bool
	Identity   bool
	Ordinal    int
}

// TableKey returns the key of the owning table.
func (c ColumnInfo) TableKey() string {
	return TableKey(c.Schema, c.Table)
}

// Key is the normalized lookup key (lowercase schema.table.column).
func (c ColumnInfo) Key() string {
	return c.TableKey() + "." + strings.ToLower(c.Name)
}

// Equal compares the (schema, table, column) triple case-insensitively.
func (c ColumnInfo) Equal(o ColumnInfo) bool {
	return strings.EqualFold(c.Schema, o.Schema) &&
		strings.EqualFold(c.Table, o.Table) &&
		strings.EqualFold(c.Name, o.Name)
}

// MatchesField projects a struct field declared on the given table to a column triple
// and compares it with c.
func (c ColumnInfo) MatchesField(schemaName, table string, f reflect.StructField) bool {
	return c.Equal(ColumnInfo{Schema: schemaName, Table: table, Name: FieldColumnName(f)})
}

// IsAltered reports whether o differs from c in any property that requires an ALTER.
func (c ColumnInfo) IsAltered(o ColumnInfo) bool {
	return !strings.EqualFold(c.Type.Base, o.Type.Base) ||
		c.Type.Length != o.Type.Length ||
		c.Nullable != o.Nullable ||
		c.Calculated != o.Calculated ||
		c.Type.Precision != o.Type.Precision ||
		c.Type.Scale != o.Type.Scale ||
		!strings.EqualFold(c.Type.Collation, o.Type.Collation)
}

func (c ColumnInfo) String() string {
	return c.Schema + "." + c.Table + "." + c.Name
}

// FieldColumnName returns the column name a struct field maps to: the `column:` tag
// option when present, the field name otherwise.
func FieldColumnName(f reflect.StructField) string {
	for _, opt := range strings.Split(f.Tag.Get(TagName), ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(opt), ":")
		if ok && strings.EqualFold(k, "column") && v != "" {
			return v
		}
	}
	return f.Name
}

// TagName is the struct tag key read by the model reflector.
const TagName = "merge"

// KeyKind distinguishes primary keys from unique keys.
type KeyKind int

const (
	PrimaryKey KeyKind = iota
	UniqueKey
)

func (k KeyKind) String() string {
	if k == PrimaryKey {
		return "primary key"
	}
	return "unique key"
}

// KeyInfo is a primary or unique key constraint.
type KeyInfo struct {
	Table     TableInfo
	Name      string
	Kind      KeyKind
	Columns   []string
	Clustered bool
}

// SameColumns compares the key column lists case-insensitively and in order.
func (k KeyInfo) SameColumns(o KeyInfo) bool {
	if len(k.Columns) != len(o.Columns) {
		return false
	}
	for i := range k.Columns {
		if !strings.EqualFold(k.Columns[i], o.Columns[i]) {
			return false
		}
	}
	return true
}

// HasColumn reports whether name is part of the key.
func (k KeyInfo) HasColumn(name string) bool {
	for _, c := range k.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// ForeignKeyInfo links a child column to the parent column it references.
type ForeignKeyInfo struct {
	Name   string
	Child  ColumnInfo
	Parent ColumnInfo
}

// SameLink reports whether both foreign keys connect the same pair of columns.
func (f ForeignKeyInfo) SameLink(o ForeignKeyInfo) bool {
	return f.Child.Equal(o.Child) && f.Parent.Equal(o.Parent)
}

// ForeignKeyName derives the conventional constraint name for a model foreign key.
func ForeignKeyName(child, parent ColumnInfo) string {
	return fmt.Sprintf("FK_%s_%s_%s", child.Table, child.Name, parent.Table)
}

// PrimaryKeyName derives the conventional primary key constraint name.
func PrimaryKeyName(table string) string {
	return "PK_" + table
}

// UniqueKeyName derives the conventional unique constraint name.
func UniqueKeyName(table string, cols []string) string {
	return "UQ_" + table + "_" + strings.Join(cols, "_")
}

// EnumMember is a single named value of an enumeration.
type EnumMember struct {
	Name  string
	Value int64
}

// EnumInfo maps an enumeration type to its lookup table.
type EnumInfo struct {
	Table    TableInfo
	TypeName string
	KeyType  DataType
	Members  []EnumMember
}

// Enum lookup table column names.
const (
	EnumIDColumn   = "Id"
	EnumNameColumn = "Name"
	EnumNameLength = 100
)

// DisplayName inserts a space at every lower-to-upper case transition:
// "OrderPlaced" becomes "Order Placed".
func DisplayName(member string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range member {
		if unicode.IsUpper(r) && prevLower {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r)
	}
	return b.String()
}
