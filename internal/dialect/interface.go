package dialect

import "db-merge/internal/schema"

// Syntax abstracts everything that differs between database engines: quoting, type
// mapping, introspection queries and DDL generation.
type Syntax interface {
	Name() string
	DefaultSchema() string

	// Identifiers and parameters
	Quote(ident string) string
	Qualify(schemaName, name string) string
	Placeholder(index int) string // Returns ?, $1, @p1, etc.

	// Types
	ColumnType(dt schema.DataType) string
	TypeMap() map[string]schema.DataType
	KeyTypes() map[string]schema.DataType
	NormalizeType(dt schema.DataType) schema.DataType

	// Metadata Queries (Schema Introspection). Parameters are listed in binding order.
	CurrentSchemaQuery() string
	SchemaExistsQuery() string                // schema
	TableExistsQuery() string                 // schema, table
	ColumnExistsQuery() string                // schema, table, column
	ForeignKeysDependingOnTableQuery() string // schema, table (the referenced table)
	SchemaColumnsQuery() string               // schema
	SchemaTablesQuery() string                // schema
	KeysQuery() string                        // schema
	ObjectIDQuery() string                    // schema, table
	HasRowsQuery(t schema.TableInfo) string

	// DDL
	CreateSchema(name string) []string
	CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, keys []schema.KeyInfo) []string
	DropTable(t schema.TableInfo) []string
	AddColumn(c schema.ColumnInfo) []string
	AlterColumn(from, to schema.ColumnInfo) []string
	DropColumn(c schema.ColumnInfo) []string
	AddKey(k schema.KeyInfo) []string
	DropKey(k schema.KeyInfo) []string
	AddForeignKey(fk schema.ForeignKeyInfo) []string
	DropForeignKey(fk schema.ForeignKeyInfo) []string

	// Enum lookup tables
	CreateEnumTable(e schema.EnumInfo) []string
	EnumValueExistsQuery(e schema.EnumInfo) string // id
	InsertEnumValue(e schema.EnumInfo, m schema.EnumMember) string

	// Administration
	SchemaVersion(schemaName, table string, version int) []string
	CreateDatabase(name string) string // "" when the engine cannot create databases over a connection
	AdminDatabase() string
	IsPermissionError(err error) bool
}
