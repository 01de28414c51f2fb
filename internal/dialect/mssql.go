package dialect

import (
	"errors"
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb" // SQL Server Driver

	"db-merge/internal/schema"
)

type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string { return "sqlserver" }

func (d *MSSQLDialect) DefaultSchema() string { return "dbo" }

func (d *MSSQLDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (d *MSSQLDialect) Qualify(schemaName, name string) string {
	if schemaName == "" {
		return d.Quote(name)
	}
	return d.Quote(schemaName) + "." + d.Quote(name)
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) ColumnType(dt schema.DataType) string {
	return sizedType(dt, "max")
}

func (d *MSSQLDialect) TypeMap() map[string]schema.DataType {
	return map[string]schema.DataType{
		"string":          {Base: "nvarchar", Length: schema.MaxLength},
		"bool":            {Base: "bit"},
		"int":             {Base: "bigint"},
		"int8":            {Base: "smallint"},
		"int16":           {Base: "smallint"},
		"int32":           {Base: "int"},
		"int64":           {Base: "bigint"},
		"uint8":           {Base: "tinyint"},
		"uint16":          {Base: "int"},
		"uint32":          {Base: "bigint"},
		"uint64":          {Base: "decimal", Precision: 20},
		"float32":         {Base: "real"},
		"float64":         {Base: "float"},
		"time.Time":       {Base: "datetime2"},
		"[]uint8":         {Base: "varbinary", Length: schema.MaxLength},
		"uuid.UUID":       {Base: "uniqueidentifier"},
		"decimal.Decimal": {Base: "decimal", Precision: 18, Scale: 2},
	}
}

func (d *MSSQLDialect) KeyTypes() map[string]schema.DataType {
	return map[string]schema.DataType{
		"int":       {Base: "bigint"},
		"int16":     {Base: "smallint"},
		"int32":     {Base: "int"},
		"int64":     {Base: "bigint"},
		"uint8":     {Base: "tinyint"},
		"uuid.UUID": {Base: "uniqueidentifier"},
	}
}

var (
	mssqlSized = map[string]bool{"nvarchar": true, "varchar": true, "nchar": true, "char": true, "varbinary": true, "binary": true}
	mssqlExact = map[string]bool{"decimal": true, "numeric": true}
)

func (d *MSSQLDialect) NormalizeType(dt schema.DataType) schema.DataType {
	dt = normalizeCommon(dt, mssqlSized, mssqlExact)
	switch dt.Base {
	case "numeric":
		dt.Base = "decimal"
	case "ntext":
		dt.Base, dt.Length = "nvarchar", schema.MaxLength
	case "text":
		dt.Base, dt.Length = "varchar", schema.MaxLength
	case "image":
		dt.Base, dt.Length = "varbinary", schema.MaxLength
	}
	return dt
}

func (d *MSSQLDialect) CurrentSchemaQuery() string {
	return `SELECT SCHEMA_NAME()`
}

func (d *MSSQLDialect) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM sys.schemas WHERE name = @p1`
}

func (d *MSSQLDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 AND TABLE_TYPE = 'BASE TABLE'`
}

func (d *MSSQLDialect) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2 AND COLUMN_NAME = @p3`
}

func (d *MSSQLDialect) ForeignKeysDependingOnTableQuery() string {
	return `
		SELECT
			fk.name,
			SCHEMA_NAME(ct.schema_id), ct.name, cc.name,
			SCHEMA_NAME(pt.schema_id), pt.name, pc.name
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables ct ON ct.object_id = fkc.parent_object_id
		JOIN sys.columns cc ON cc.object_id = fkc.parent_object_id AND cc.column_id = fkc.parent_column_id
		JOIN sys.tables pt ON pt.object_id = fkc.referenced_object_id
		JOIN sys.columns pc ON pc.object_id = fkc.referenced_object_id AND pc.column_id = fkc.referenced_column_id
		WHERE SCHEMA_NAME(pt.schema_id) = @p1 AND pt.name = @p2
		ORDER BY fk.name, fkc.constraint_column_id
	`
}

func (d *MSSQLDialect) SchemaColumnsQuery() string {
	return `
		SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.CHARACTER_MAXIMUM_LENGTH,
			c.NUMERIC_PRECISION,
			c.NUMERIC_SCALE,
			c.IS_NULLABLE,
			COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsComputed'),
			COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsIdentity'),
			c.COLLATION_NAME,
			cc.definition,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN sys.computed_columns cc
			ON cc.object_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME))
			AND cc.name = c.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION
	`
}

func (d *MSSQLDialect) SchemaTablesQuery() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MSSQLDialect) KeysQuery() string {
	return `
		SELECT
			t.name,
			kc.name,
			CASE kc.type WHEN 'PK' THEN 'PRIMARY KEY' ELSE 'UNIQUE' END,
			c.name,
			ic.key_ordinal,
			CASE WHEN i.type = 1 THEN 1 ELSE 0 END
		FROM sys.key_constraints kc
		JOIN sys.tables t ON t.object_id = kc.parent_object_id
		JOIN sys.indexes i ON i.object_id = kc.parent_object_id AND i.index_id = kc.unique_index_id
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE SCHEMA_NAME(t.schema_id) = @p1
		ORDER BY t.name, kc.name, ic.key_ordinal
	`
}

func (d *MSSQLDialect) ObjectIDQuery() string {
	return `SELECT OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2), 'U')`
}

func (d *MSSQLDialect) HasRowsQuery(t schema.TableInfo) string {
	return fmt.Sprintf("SELECT CASE WHEN EXISTS (SELECT 1 FROM %s) THEN 1 ELSE 0 END", d.Qualify(t.Schema, t.Name))
}

func (d *MSSQLDialect) CreateSchema(name string) []string {
	// CREATE SCHEMA must be the only statement in its batch.
	return []string{fmt.Sprintf("CREATE SCHEMA %s", d.Quote(name))}
}

func (d *MSSQLDialect) columnDef(c schema.ColumnInfo) string {
	if c.Calculated {
		return fmt.Sprintf("%s AS (%s)", d.Quote(c.Name), c.Expression)
	}
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(c.Type))
	if c.Type.Collation != "" {
		b.WriteString(" COLLATE " + c.Type.Collation)
	}
	if c.Identity {
		b.WriteString(" IDENTITY(1,1)")
	}
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

func (d *MSSQLDialect) keyClause(k schema.KeyInfo) string {
	kind := "UNIQUE"
	if k.Kind == schema.PrimaryKey {
		kind = "PRIMARY KEY"
	}
	cluster := "NONCLUSTERED"
	if k.Clustered {
		cluster = "CLUSTERED"
	}
	return fmt.Sprintf("CONSTRAINT %s %s %s (%s)", d.Quote(k.Name), kind, cluster, quoteList(d.Quote, k.Columns))
}

func (d *MSSQLDialect) CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, keys []schema.KeyInfo) []string {
	var defs []string
	var identity string
	for _, c := range cols {
		defs = append(defs, "    "+d.columnDef(c))
		if c.Identity {
			identity = c.Name
		}
	}
	for _, k := range keys {
		defs = append(defs, "    "+d.keyClause(k))
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.Qualify(t.Schema, t.Name), strings.Join(defs, ",\n"))}

	if t.Cluster == schema.ClusterIdentity && identity != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE CLUSTERED INDEX %s ON %s (%s)",
			d.Quote("CIX_"+t.Name+"_"+identity), d.Qualify(t.Schema, t.Name), d.Quote(identity)))
	}
	return stmts
}

func (d *MSSQLDialect) DropTable(t schema.TableInfo) []string {
	return []string{fmt.Sprintf("DROP TABLE %s", d.Qualify(t.Schema, t.Name))}
}

func (d *MSSQLDialect) AddColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Qualify(c.Schema, c.Table), d.columnDef(c))}
}

func (d *MSSQLDialect) AlterColumn(from, to schema.ColumnInfo) []string {
	// Computed columns cannot be altered in place.
	if from.Calculated || to.Calculated {
		return append(d.DropColumn(from), d.AddColumn(to)...)
	}
	to.Identity = false
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", d.Qualify(to.Schema, to.Table), d.columnDef(to))}
}

func (d *MSSQLDialect) DropColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Qualify(c.Schema, c.Table), d.Quote(c.Name))}
}

func (d *MSSQLDialect) AddKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Qualify(k.Table.Schema, k.Table.Name), d.keyClause(k))}
}

func (d *MSSQLDialect) DropKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Qualify(k.Table.Schema, k.Table.Name), d.Quote(k.Name))}
}

func (d *MSSQLDialect) AddForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name), d.Quote(fk.Child.Name),
		d.Qualify(fk.Parent.Schema, fk.Parent.Table), d.Quote(fk.Parent.Name))}
}

func (d *MSSQLDialect) DropForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name))}
}

func (d *MSSQLDialect) CreateEnumTable(e schema.EnumInfo) []string {
	nameType := schema.DataType{Base: "nvarchar", Length: schema.EnumNameLength}
	return d.CreateTable(e.Table, enumColumns(e, nameType), []schema.KeyInfo{enumKey(e)})
}

func (d *MSSQLDialect) EnumValueExistsQuery(e schema.EnumInfo) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = @p1", d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn))
}

func (d *MSSQLDialect) InsertEnumValue(e schema.EnumInfo, m schema.EnumMember) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%d, N%s)",
		d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn), d.Quote(schema.EnumNameColumn),
		m.Value, StringLiteral(schema.DisplayName(m.Name)))
}

func (d *MSSQLDialect) SchemaVersion(schemaName, table string, version int) []string {
	qualified := d.Qualify(schemaName, table)
	return []string{
		fmt.Sprintf("IF SCHEMA_ID(%s) IS NULL EXEC(%s)", StringLiteral(schemaName), StringLiteral("CREATE SCHEMA "+d.Quote(schemaName))),
		fmt.Sprintf("IF OBJECT_ID(%s, 'U') IS NULL CREATE TABLE %s (%s int NOT NULL CONSTRAINT %s PRIMARY KEY, %s datetime2 NOT NULL)",
			StringLiteral(qualified), qualified, d.Quote("Version"), d.Quote(schema.PrimaryKeyName(table)), d.Quote("AppliedUtc")),
		fmt.Sprintf("MERGE %s AS t USING (SELECT %d AS [Version]) AS s ON t.[Version] = s.[Version] "+
			"WHEN MATCHED THEN UPDATE SET [AppliedUtc] = SYSUTCDATETIME() "+
			"WHEN NOT MATCHED THEN INSERT ([Version], [AppliedUtc]) VALUES (s.[Version], SYSUTCDATETIME());", qualified, version),
	}
}

func (d *MSSQLDialect) CreateDatabase(name string) string {
	return fmt.Sprintf("CREATE DATABASE %s", d.Quote(name))
}

func (d *MSSQLDialect) AdminDatabase() string { return "master" }

// Permission related server error numbers.
var mssqlPermissionErrors = map[int32]bool{
	229:   true, // permission denied on object
	230:   true, // permission denied on column
	262:   true, // permission denied in database
	297:   true, // user does not have permission
	300:   true, // permission denied on object (VIEW)
	916:   true, // server principal cannot access database
	1088:  true, // object not found or no permission
	15247: true, // user does not have permission
	18456: true, // login failed
}

func (d *MSSQLDialect) IsPermissionError(err error) bool {
	var me mssql.Error
	if errors.As(err, &me) {
		return mssqlPermissionErrors[me.Number]
	}
	return false
}
