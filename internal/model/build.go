package model

import (
	"fmt"
	"reflect"
	"strings"

	"db-merge/internal/dialect"
	"db-merge/internal/schema"
)

// TableDecl is a declaration-syntax neutral table definition. Struct tags and model
// files both reduce to it.
type TableDecl struct {
	Schema      string
	Name        string
	Type        reflect.Type
	Cluster     schema.ClusterTarget
	Columns     []ColumnDecl
	Uniques     []UniqueDecl
	ForeignKeys []ForeignKeyDecl
}

type ColumnDecl struct {
	Name string
	// GoType keys into the dialect type map ("string", "int64", "time.Time", ...).
	GoType string
	// SQLType overrides the mapped base type.
	SQLType    string
	Enum       string
	Length     int
	Max        bool
	Precision  int
	Scale      int
	Collation  string
	Nullable   bool
	PrimaryKey bool
	Identity   bool
	Unique     bool
	UniqueName string
	Clustered  bool
	Computed   string
	References string // [schema.]table.column
}

type UniqueDecl struct {
	Name      string
	Columns   []string
	Clustered bool
}

// ForeignKeyDecl is a class-level foreign key naming its column by string.
type ForeignKeyDecl struct {
	Column     string
	References string
}

type EnumDecl struct {
	Schema    string
	Table     string
	TypeName  string
	KeyGoType string
	Members   []schema.EnumMember
}

// Build turns declarations into a target database for the given dialect.
func Build(d dialect.Syntax, opts Options, tables []TableDecl, enums []EnumDecl) (*schema.Database, error) {
	db := &schema.Database{}
	enumByName := make(map[string]schema.EnumInfo)

	for _, e := range enums {
		info, err := buildEnum(d, opts, e)
		if err != nil {
			return nil, err
		}
		if _, dup := enumByName[e.TypeName]; dup {
			continue
		}
		enumByName[e.TypeName] = info
		db.Enums = append(db.Enums, info)
	}

	type pendingFK struct {
		child int // index into db.Columns
		ref   string
	}
	var pending []pendingFK

	for _, td := range tables {
		t := schema.TableInfo{Schema: td.Schema, Name: td.Name, ModelType: td.Type, Cluster: td.Cluster}
		if t.Schema == "" {
			t.Schema = opts.DefaultSchema
		}

		var pkCols []string
		uniques := make(map[string]*schema.KeyInfo)
		var uniqueOrder []string
		covered := make(map[string]bool)

		addUnique := func(name string, cols []string, clustered bool) {
			if name == "" {
				name = schema.UniqueKeyName(t.Name, cols)
			}
			k, ok := uniques[strings.ToLower(name)]
			if !ok {
				k = &schema.KeyInfo{Table: t, Name: name, Kind: schema.UniqueKey}
				uniques[strings.ToLower(name)] = k
				uniqueOrder = append(uniqueOrder, strings.ToLower(name))
			}
			k.Columns = append(k.Columns, cols...)
			k.Clustered = k.Clustered || clustered
		}

		for i, cd := range td.Columns {
			dt, err := resolveType(d, cd, enumByName)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t, cd.Name, err)
			}
			col := schema.ColumnInfo{
				Schema:     t.Schema,
				Table:      t.Name,
				Name:       cd.Name,
				Type:       dt,
				Nullable:   cd.Nullable,
				Calculated: cd.Computed != "",
				Expression: cd.Computed,
				PrimaryKey: cd.PrimaryKey,
				Identity:   cd.Identity,
				Ordinal:    i + 1,
			}
			if cd.PrimaryKey {
				pkCols = append(pkCols, cd.Name)
			}
			if cd.Unique || cd.UniqueName != "" {
				addUnique(cd.UniqueName, []string{cd.Name}, cd.Clustered)
			}

			ref := cd.References
			if cd.Enum != "" && ref == "" {
				e := enumByName[cd.Enum]
				ref = e.Table.Schema + "." + e.Table.Name + "." + schema.EnumIDColumn
			}
			if ref != "" {
				col.ForeignKey = true
				covered[strings.ToLower(cd.Name)] = true
				pending = append(pending, pendingFK{child: len(db.Columns), ref: ref})
			}
			db.Columns = append(db.Columns, col)
		}

		for _, fk := range td.ForeignKeys {
			if covered[strings.ToLower(fk.Column)] {
				continue
			}
			idx := -1
			for i := len(db.Columns) - 1; i >= 0 && db.Columns[i].TableKey() == t.Key(); i-- {
				if strings.EqualFold(db.Columns[i].Name, fk.Column) {
					idx = i
					break
				}
			}
			if idx < 0 {
				opts.logger().Debug("class foreign key names no property", "table", t.String(), "column", fk.Column)
				continue
			}
			db.Columns[idx].ForeignKey = true
			covered[strings.ToLower(fk.Column)] = true
			pending = append(pending, pendingFK{child: idx, ref: fk.References})
		}

		for _, u := range td.Uniques {
			addUnique(u.Name, u.Columns, u.Clustered)
		}

		uniqueClustered := false
		for _, name := range uniqueOrder {
			uniqueClustered = uniqueClustered || uniques[name].Clustered
		}
		if len(pkCols) > 0 {
			db.Keys = append(db.Keys, schema.KeyInfo{
				Table:     t,
				Name:      schema.PrimaryKeyName(t.Name),
				Kind:      schema.PrimaryKey,
				Columns:   pkCols,
				Clustered: t.Cluster == schema.ClusterPrimaryKey || (t.Cluster == schema.ClusterDefault && !uniqueClustered),
			})
		}
		for _, name := range uniqueOrder {
			db.Keys = append(db.Keys, *uniques[name])
		}
		db.Tables = append(db.Tables, t)
	}

	for _, p := range pending {
		child := db.Columns[p.child]
		parent, err := resolveReference(db, child, p.ref)
		if err != nil {
			return nil, err
		}
		db.ForeignKeys = append(db.ForeignKeys, schema.ForeignKeyInfo{
			Name:   schema.ForeignKeyName(child, parent),
			Child:  child,
			Parent: parent,
		})
	}
	return db, nil
}

func resolveType(d dialect.Syntax, cd ColumnDecl, enums map[string]schema.EnumInfo) (schema.DataType, error) {
	var dt schema.DataType
	switch {
	case cd.Enum != "":
		e, ok := enums[cd.Enum]
		if !ok {
			return dt, fmt.Errorf("%w: enum %s is not declared", ErrUnsupportedType, cd.Enum)
		}
		return e.KeyType, nil
	case cd.SQLType != "":
		dt.Base = cd.SQLType
	default:
		mapped, ok := d.TypeMap()[cd.GoType]
		if !ok {
			return dt, fmt.Errorf("%w: %s", ErrUnsupportedType, cd.GoType)
		}
		dt = mapped
	}
	switch {
	case cd.Max:
		dt.Length = schema.MaxLength
	case cd.Length > 0:
		dt.Length = cd.Length
	}
	if cd.Precision > 0 {
		dt.Precision = cd.Precision
		dt.Scale = cd.Scale
	}
	dt.Collation = cd.Collation
	return d.NormalizeType(dt), nil
}

func buildEnum(d dialect.Syntax, opts Options, e EnumDecl) (schema.EnumInfo, error) {
	if e.Table == "" {
		return schema.EnumInfo{}, fmt.Errorf("%w: %s", ErrMissingLookupTable, e.TypeName)
	}
	keyType, ok := d.KeyTypes()[e.KeyGoType]
	if !ok {
		return schema.EnumInfo{}, fmt.Errorf("%w: enum %s has key type %s", ErrUnsupportedType, e.TypeName, e.KeyGoType)
	}
	s := e.Schema
	if s == "" {
		s = opts.DefaultSchema
	}
	return schema.EnumInfo{
		Table:    schema.TableInfo{Schema: s, Name: e.Table},
		TypeName: e.TypeName,
		KeyType:  keyType,
		Members:  e.Members,
	}, nil
}

// resolveReference finds the parent column of "[schema.]table.column" among the target
// columns and enum lookup tables. A missing schema defaults to the child's.
func resolveReference(db *schema.Database, child schema.ColumnInfo, ref string) (schema.ColumnInfo, error) {
	parts := strings.Split(ref, ".")
	var s, t, c string
	switch len(parts) {
	case 2:
		s, t, c = child.Schema, parts[0], parts[1]
	case 3:
		s, t, c = parts[0], parts[1], parts[2]
	default:
		return schema.ColumnInfo{}, fmt.Errorf("%w: %s.%s -> %q", ErrInvalidTag, child.Table, child.Name, ref)
	}

	want := schema.ColumnInfo{Schema: s, Table: t, Name: c}
	for _, col := range db.Columns {
		if col.Equal(want) {
			return col, nil
		}
	}
	for _, e := range db.Enums {
		if e.Table.Equal(schema.TableInfo{Schema: s, Name: t}) && strings.EqualFold(c, schema.EnumIDColumn) {
			return schema.ColumnInfo{
				Schema: e.Table.Schema, Table: e.Table.Name, Name: schema.EnumIDColumn,
				Type: e.KeyType, PrimaryKey: true, Ordinal: 1,
			}, nil
		}
	}
	return schema.ColumnInfo{}, fmt.Errorf("%w: %s -> %s", ErrUnknownReference, child, ref)
}
