package schema

import "strings"

// Database is a complete schema graph. Targets built from models fill Tables, Columns,
// Keys, ForeignKeys and Enums; snapshots read from a live connection additionally fill
// Schemas, Populated and EnumValues.
type Database struct {
	Schemas     []string
	Tables      []TableInfo
	Columns     []ColumnInfo
	Keys        []KeyInfo
	ForeignKeys []ForeignKeyInfo
	Enums       []EnumInfo

	// Populated holds TableKey -> true for tables that contain at least one row.
	Populated map[string]bool
	// EnumValues holds TableKey -> ids already present in an enum lookup table.
	EnumValues map[string]map[int64]bool
}

// Table finds a table by schema and name, ignoring case.
func (db *Database) Table(schemaName, name string) (TableInfo, bool) {
	key := TableKey(schemaName, name)
	for _, t := range db.Tables {
		if t.Key() == key {
			return t, true
		}
	}
	return TableInfo{}, false
}

// HasTable reports whether t exists in db.
func (db *Database) HasTable(t TableInfo) bool {
	_, ok := db.Table(t.Schema, t.Name)
	return ok
}

// HasSchema reports whether a schema with the given name exists, ignoring case.
func (db *Database) HasSchema(name string) bool {
	for _, s := range db.Schemas {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// ColumnsOf returns the columns of t in declaration order.
func (db *Database) ColumnsOf(t TableInfo) []ColumnInfo {
	key := t.Key()
	var cols []ColumnInfo
	for _, c := range db.Columns {
		if c.TableKey() == key {
			cols = append(cols, c)
		}
	}
	return cols
}

// PrimaryKeyOf returns the primary key of t, if any.
func (db *Database) PrimaryKeyOf(t TableInfo) (KeyInfo, bool) {
	for _, k := range db.Keys {
		if k.Kind == PrimaryKey && k.Table.Equal(t) {
			return k, true
		}
	}
	return KeyInfo{}, false
}

// UniqueKeysOf returns the unique keys declared on t.
func (db *Database) UniqueKeysOf(t TableInfo) []KeyInfo {
	var keys []KeyInfo
	for _, k := range db.Keys {
		if k.Kind == UniqueKey && k.Table.Equal(t) {
			keys = append(keys, k)
		}
	}
	return keys
}

// KeysOf returns every key declared on t, primary key first.
func (db *Database) KeysOf(t TableInfo) []KeyInfo {
	var keys []KeyInfo
	if pk, ok := db.PrimaryKeyOf(t); ok {
		keys = append(keys, pk)
	}
	return append(keys, db.UniqueKeysOf(t)...)
}

// IsPopulated reports whether the snapshot saw rows in t.
func (db *Database) IsPopulated(t TableInfo) bool {
	return db.Populated[t.Key()]
}

// IsEnumTable reports whether t is the lookup table of one of db's enums.
func (db *Database) IsEnumTable(t TableInfo) bool {
	for _, e := range db.Enums {
		if e.Table.Equal(t) {
			return true
		}
	}
	return false
}

// SchemaNames returns the distinct schemas referenced by tables and enums, in first-seen order.
func (db *Database) SchemaNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(s string) {
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		names = append(names, s)
	}
	for _, t := range db.Tables {
		add(t.Schema)
	}
	for _, e := range db.Enums {
		add(e.Table.Schema)
	}
	return names
}
