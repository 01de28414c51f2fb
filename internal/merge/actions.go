package merge

import (
	"fmt"
	"strings"

	"db-merge/internal/dialect"
	"db-merge/internal/schema"
)

// ObjectKind is the kind of database object an action touches.
type ObjectKind int

const (
	ObjectSchema ObjectKind = iota
	ObjectTable
	ObjectColumn
	ObjectKey
	ObjectIndex
	ObjectForeignKey
	ObjectMetadata
)

func (o ObjectKind) String() string {
	switch o {
	case ObjectSchema:
		return "schema"
	case ObjectTable:
		return "table"
	case ObjectColumn:
		return "column"
	case ObjectKey:
		return "key"
	case ObjectIndex:
		return "index"
	case ObjectForeignKey:
		return "foreign key"
	default:
		return "metadata"
	}
}

// ActionKind is what an action does to its object.
type ActionKind int

const (
	Create ActionKind = iota
	Alter
	Rename
	Drop
	DropAndCreate
)

func (k ActionKind) String() string {
	switch k {
	case Create:
		return "create"
	case Alter:
		return "alter"
	case Rename:
		return "rename"
	case Drop:
		return "drop"
	default:
		return "drop and create"
	}
}

// Action is a single schema change. Statements returns a fresh list on every call.
type Action interface {
	Object() ObjectKind
	Kind() ActionKind
	Description() string
	Validate() error
	Statements(d dialect.Syntax) []string
}

// Noter is implemented by actions that carry comment lines for the rendered script.
type Noter interface {
	Notes() []string
}

// InternalSave marks bookkeeping actions whose statements are not traced.
type InternalSave interface {
	Internal() bool
}

type CreateSchema struct {
	Name string
}

func (a CreateSchema) Object() ObjectKind                   { return ObjectSchema }
func (a CreateSchema) Kind() ActionKind                     { return Create }
func (a CreateSchema) Description() string                  { return "Create schema " + a.Name }
func (a CreateSchema) Validate() error                      { return nil }
func (a CreateSchema) Statements(d dialect.Syntax) []string { return d.CreateSchema(a.Name) }

// CreateTable creates a table with its keys. With Rebuild set the existing, empty
// table is dropped first; Added, Modified and Deleted name the columns that changed.
type CreateTable struct {
	Table    schema.TableInfo
	Columns  []schema.ColumnInfo
	Keys     []schema.KeyInfo
	Rebuild  bool
	Added    []string
	Modified []string
	Deleted  []string
}

func (a CreateTable) Object() ObjectKind { return ObjectTable }

func (a CreateTable) Kind() ActionKind {
	if a.Rebuild {
		return DropAndCreate
	}
	return Create
}

func (a CreateTable) Description() string {
	if a.Rebuild {
		return "Rebuild table " + a.Table.String()
	}
	return "Create table " + a.Table.String()
}

func (a CreateTable) Notes() []string {
	if !a.Rebuild {
		return nil
	}
	var notes []string
	if len(a.Added) > 0 {
		notes = append(notes, "added: "+strings.Join(a.Added, ", "))
	}
	if len(a.Modified) > 0 {
		notes = append(notes, "modified: "+strings.Join(a.Modified, ", "))
	}
	if len(a.Deleted) > 0 {
		notes = append(notes, "deleted: "+strings.Join(a.Deleted, ", "))
	}
	return notes
}

func (a CreateTable) Validate() error {
	v := &ValidationError{Action: a.Description()}
	for _, k := range a.Keys {
		v.check(validateKey(k, a.Columns))
	}
	v.check(clusterConflict(a.Table, a.Keys...))
	if a.Table.Cluster == schema.ClusterIdentity {
		found := false
		for _, c := range a.Columns {
			found = found || c.Identity
		}
		if !found {
			v.add("cluster:identity requires an identity column")
		}
	}
	return v.err()
}

func (a CreateTable) Statements(d dialect.Syntax) []string {
	var stmts []string
	if a.Rebuild {
		stmts = append(stmts, d.DropTable(a.Table)...)
	}
	return append(stmts, d.CreateTable(a.Table, a.Columns, a.Keys)...)
}

type DropTable struct {
	Table schema.TableInfo
}

func (a DropTable) Object() ObjectKind                   { return ObjectTable }
func (a DropTable) Kind() ActionKind                     { return Drop }
func (a DropTable) Description() string                  { return "Drop table " + a.Table.String() }
func (a DropTable) Validate() error                      { return nil }
func (a DropTable) Statements(d dialect.Syntax) []string { return d.DropTable(a.Table) }

type AddColumn struct {
	Column schema.ColumnInfo
}

func (a AddColumn) Object() ObjectKind                   { return ObjectColumn }
func (a AddColumn) Kind() ActionKind                     { return Create }
func (a AddColumn) Description() string                  { return "Add column " + a.Column.String() }
func (a AddColumn) Statements(d dialect.Syntax) []string { return d.AddColumn(a.Column) }

func (a AddColumn) Validate() error {
	v := &ValidationError{Action: a.Description()}
	if a.Column.Calculated && strings.TrimSpace(a.Column.Expression) == "" {
		v.add("computed column %s has no expression", a.Column.Name)
	}
	return v.err()
}

// AlterColumn changes a column from its current definition to the target one.
type AlterColumn struct {
	From schema.ColumnInfo
	To   schema.ColumnInfo
}

func (a AlterColumn) Object() ObjectKind { return ObjectColumn }
func (a AlterColumn) Kind() ActionKind   { return Alter }

func (a AlterColumn) Description() string {
	return fmt.Sprintf("Alter column %s (%s -> %s)", a.To.String(), describeColumn(a.From), describeColumn(a.To))
}

func (a AlterColumn) Validate() error {
	v := &ValidationError{Action: a.Description()}
	if a.To.Calculated && strings.TrimSpace(a.To.Expression) == "" {
		v.add("computed column %s has no expression", a.To.Name)
	}
	return v.err()
}

func (a AlterColumn) Statements(d dialect.Syntax) []string { return d.AlterColumn(a.From, a.To) }

type DropColumn struct {
	Column schema.ColumnInfo
}

func (a DropColumn) Object() ObjectKind                   { return ObjectColumn }
func (a DropColumn) Kind() ActionKind                     { return Drop }
func (a DropColumn) Description() string                  { return "Drop column " + a.Column.String() }
func (a DropColumn) Validate() error                      { return nil }
func (a DropColumn) Statements(d dialect.Syntax) []string { return d.DropColumn(a.Column) }

// AddKey adds a primary or unique key. Columns holds the target definitions of the
// key columns for validation.
type AddKey struct {
	Key     schema.KeyInfo
	Columns []schema.ColumnInfo
}

func (a AddKey) Object() ObjectKind { return ObjectKey }
func (a AddKey) Kind() ActionKind   { return Create }

func (a AddKey) Description() string {
	return fmt.Sprintf("Add %s %s on %s (%s)", a.Key.Kind, a.Key.Name, a.Key.Table, strings.Join(a.Key.Columns, ", "))
}

func (a AddKey) Validate() error {
	v := &ValidationError{Action: a.Description()}
	v.check(validateKey(a.Key, a.Columns))
	v.check(clusterConflict(a.Key.Table, a.Key))
	return v.err()
}

func (a AddKey) Statements(d dialect.Syntax) []string { return d.AddKey(a.Key) }

type DropKey struct {
	Key schema.KeyInfo
}

func (a DropKey) Object() ObjectKind { return ObjectKey }
func (a DropKey) Kind() ActionKind   { return Drop }
func (a DropKey) Description() string {
	return fmt.Sprintf("Drop %s %s on %s", a.Key.Kind, a.Key.Name, a.Key.Table)
}
func (a DropKey) Validate() error                      { return nil }
func (a DropKey) Statements(d dialect.Syntax) []string { return d.DropKey(a.Key) }

type AddForeignKey struct {
	ForeignKey schema.ForeignKeyInfo
}

func (a AddForeignKey) Object() ObjectKind { return ObjectForeignKey }
func (a AddForeignKey) Kind() ActionKind   { return Create }
func (a AddForeignKey) Description() string {
	return fmt.Sprintf("Add foreign key %s (%s -> %s)", a.ForeignKey.Name, a.ForeignKey.Child, a.ForeignKey.Parent)
}
func (a AddForeignKey) Statements(d dialect.Syntax) []string { return d.AddForeignKey(a.ForeignKey) }

func (a AddForeignKey) Validate() error {
	v := &ValidationError{Action: a.Description()}
	c, p := a.ForeignKey.Child.Type, a.ForeignKey.Parent.Type
	if c.Base != "" && p.Base != "" && !strings.EqualFold(c.Base, p.Base) {
		v.add("column type %s does not match referenced type %s", c, p)
	}
	return v.err()
}

type DropForeignKey struct {
	ForeignKey schema.ForeignKeyInfo
}

func (a DropForeignKey) Object() ObjectKind { return ObjectForeignKey }
func (a DropForeignKey) Kind() ActionKind   { return Drop }
func (a DropForeignKey) Description() string {
	return fmt.Sprintf("Drop foreign key %s on %s.%s", a.ForeignKey.Name, a.ForeignKey.Child.Schema, a.ForeignKey.Child.Table)
}
func (a DropForeignKey) Validate() error                      { return nil }
func (a DropForeignKey) Statements(d dialect.Syntax) []string { return d.DropForeignKey(a.ForeignKey) }

// CreateEnumTable creates an enum lookup table when CreateTable is set and inserts
// the members listed in Missing. An up-to-date table yields no action at all.
type CreateEnumTable struct {
	Enum        schema.EnumInfo
	CreateTable bool
	Missing     []schema.EnumMember
}

func (a CreateEnumTable) Object() ObjectKind { return ObjectTable }

func (a CreateEnumTable) Kind() ActionKind {
	if a.CreateTable {
		return Create
	}
	return Alter
}

func (a CreateEnumTable) Description() string {
	if a.CreateTable {
		return fmt.Sprintf("Create enum table %s for %s", a.Enum.Table, a.Enum.TypeName)
	}
	return fmt.Sprintf("Insert %d missing values into enum table %s", len(a.Missing), a.Enum.Table)
}

func (a CreateEnumTable) Validate() error {
	v := &ValidationError{Action: a.Description()}
	values := make(map[int64]string)
	for _, m := range a.Enum.Members {
		if prev, dup := values[m.Value]; dup {
			v.add("members %s and %s share value %d", prev, m.Name, m.Value)
		}
		values[m.Value] = m.Name
		if n := len(schema.DisplayName(m.Name)); n > schema.EnumNameLength {
			v.add("member %s display name exceeds %d characters", m.Name, schema.EnumNameLength)
		}
	}
	return v.err()
}

func (a CreateEnumTable) Statements(d dialect.Syntax) []string {
	var stmts []string
	if a.CreateTable {
		stmts = append(stmts, d.CreateEnumTable(a.Enum)...)
	}
	for _, m := range a.Missing {
		stmts = append(stmts, d.InsertEnumValue(a.Enum, m))
	}
	return stmts
}

// SetSchemaVersion records the applied model version. It is an internal save and
// its statements bypass the trace callback.
type SetSchemaVersion struct {
	Schema  string
	Table   string
	Version int
}

func (a SetSchemaVersion) Object() ObjectKind { return ObjectMetadata }
func (a SetSchemaVersion) Kind() ActionKind   { return Alter }
func (a SetSchemaVersion) Description() string {
	return fmt.Sprintf("Set schema version %d", a.Version)
}
func (a SetSchemaVersion) Internal() bool { return true }

func (a SetSchemaVersion) Validate() error {
	if a.Version <= 0 {
		return &ValidationError{Action: a.Description(), Problems: []string{"version must be positive"}}
	}
	return nil
}

func (a SetSchemaVersion) Statements(d dialect.Syntax) []string {
	return d.SchemaVersion(a.Schema, a.Table, a.Version)
}

func describeColumn(c schema.ColumnInfo) string {
	s := c.Type.String()
	if c.Nullable {
		s += " null"
	} else {
		s += " not null"
	}
	if c.Type.Collation != "" {
		s += " collate " + c.Type.Collation
	}
	return s
}
