package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"db-merge/internal/schema"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) DefaultSchema() string { return "public" }

func (d *PostgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *PostgresDialect) Qualify(schemaName, name string) string {
	if schemaName == "" {
		return d.Quote(name)
	}
	return d.Quote(schemaName) + "." + d.Quote(name)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

func (d *PostgresDialect) ColumnType(dt schema.DataType) string {
	if dt.Length == schema.MaxLength && dt.Base == "varchar" {
		return "text"
	}
	return sizedType(dt, "")
}

func (d *PostgresDialect) TypeMap() map[string]schema.DataType {
	return map[string]schema.DataType{
		"string":          {Base: "varchar", Length: schema.MaxLength},
		"bool":            {Base: "boolean"},
		"int":             {Base: "bigint"},
		"int8":            {Base: "smallint"},
		"int16":           {Base: "smallint"},
		"int32":           {Base: "integer"},
		"int64":           {Base: "bigint"},
		"uint8":           {Base: "smallint"},
		"uint16":          {Base: "integer"},
		"uint32":          {Base: "bigint"},
		"uint64":          {Base: "numeric", Precision: 20},
		"float32":         {Base: "real"},
		"float64":         {Base: "double precision"},
		"time.Time":       {Base: "timestamp"},
		"[]uint8":         {Base: "bytea", Length: schema.MaxLength},
		"uuid.UUID":       {Base: "uuid"},
		"decimal.Decimal": {Base: "numeric", Precision: 18, Scale: 2},
	}
}

func (d *PostgresDialect) KeyTypes() map[string]schema.DataType {
	return map[string]schema.DataType{
		"int":       {Base: "bigint"},
		"int16":     {Base: "smallint"},
		"int32":     {Base: "integer"},
		"int64":     {Base: "bigint"},
		"uint8":     {Base: "smallint"},
		"uuid.UUID": {Base: "uuid"},
	}
}

var (
	postgresSized = map[string]bool{"varchar": true, "char": true, "bytea": true}
	postgresExact = map[string]bool{"numeric": true}
)

// NormalizeType folds information_schema spellings onto the names used by TypeMap.
func (d *PostgresDialect) NormalizeType(dt schema.DataType) schema.DataType {
	switch strings.ToLower(dt.Base) {
	case "character varying":
		dt.Base = "varchar"
	case "character", "bpchar":
		dt.Base = "char"
	case "text":
		dt.Base, dt.Length = "varchar", schema.MaxLength
	case "int4", "int":
		dt.Base = "integer"
	case "int2":
		dt.Base = "smallint"
	case "int8":
		dt.Base = "bigint"
	case "float4":
		dt.Base = "real"
	case "float8":
		dt.Base = "double precision"
	case "bool":
		dt.Base = "boolean"
	case "decimal":
		dt.Base = "numeric"
	case "timestamp without time zone":
		dt.Base = "timestamp"
	}
	dt = normalizeCommon(dt, postgresSized, postgresExact)
	if (dt.Base == "varchar" || dt.Base == "bytea") && dt.Length == 0 {
		dt.Length = schema.MaxLength
	}
	return dt
}

func (d *PostgresDialect) CurrentSchemaQuery() string {
	return `SELECT current_schema()`
}

func (d *PostgresDialect) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = $1`
}

func (d *PostgresDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'`
}

func (d *PostgresDialect) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`
}

func (d *PostgresDialect) ForeignKeysDependingOnTableQuery() string {
	return `
    SELECT
        rc.constraint_name,
        kcu.table_schema, kcu.table_name, kcu.column_name,
        ccu.table_schema, ccu.table_name, ccu.column_name
    FROM information_schema.referential_constraints rc
    JOIN information_schema.key_column_usage kcu
        ON kcu.constraint_schema = rc.constraint_schema AND kcu.constraint_name = rc.constraint_name
    JOIN information_schema.constraint_column_usage ccu
        ON ccu.constraint_schema = rc.constraint_schema AND ccu.constraint_name = rc.constraint_name
    WHERE ccu.table_schema = $1 AND ccu.table_name = $2
    ORDER BY rc.constraint_name, kcu.ordinal_position`
}

func (d *PostgresDialect) SchemaColumnsQuery() string {
	return `
    SELECT
        c.table_name,
        c.column_name,
        c.data_type,
        c.character_maximum_length,
        c.numeric_precision,
        c.numeric_scale,
        c.is_nullable,
        CASE WHEN c.is_generated = 'ALWAYS' THEN 1 ELSE 0 END,
        CASE WHEN c.is_identity = 'YES' THEN 1 ELSE 0 END,
        c.collation_name,
        c.generation_expression,
        c.ordinal_position
    FROM information_schema.columns c
    JOIN information_schema.tables t
        ON t.table_schema = c.table_schema AND t.table_name = c.table_name AND t.table_type = 'BASE TABLE'
    WHERE c.table_schema = $1
    ORDER BY c.table_name, c.ordinal_position`
}

func (d *PostgresDialect) SchemaTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *PostgresDialect) KeysQuery() string {
	return `
    SELECT
        tc.table_name,
        tc.constraint_name,
        tc.constraint_type,
        kcu.column_name,
        kcu.ordinal_position,
        COALESCE((SELECT CASE WHEN i.indisclustered THEN 1 ELSE 0 END
                  FROM pg_index i JOIN pg_class ic ON ic.oid = i.indexrelid
                  JOIN pg_namespace n ON n.oid = ic.relnamespace
                  WHERE n.nspname = tc.table_schema AND ic.relname = tc.constraint_name), 0)
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
        ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name
    WHERE tc.table_schema = $1 AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
    ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`
}

func (d *PostgresDialect) ObjectIDQuery() string {
	return `SELECT to_regclass(quote_ident($1) || '.' || quote_ident($2))::oid`
}

func (d *PostgresDialect) HasRowsQuery(t schema.TableInfo) string {
	return fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s)", d.Qualify(t.Schema, t.Name))
}

func (d *PostgresDialect) CreateSchema(name string) []string {
	return []string{fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.Quote(name))}
}

func (d *PostgresDialect) columnDef(c schema.ColumnInfo) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(c.Type))
	if c.Type.Collation != "" {
		b.WriteString(" COLLATE " + d.Quote(c.Type.Collation))
	}
	if c.Calculated {
		b.WriteString(fmt.Sprintf(" GENERATED ALWAYS AS (%s) STORED", c.Expression))
	}
	if c.Identity {
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	}
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

func (d *PostgresDialect) keyClause(k schema.KeyInfo) string {
	kind := "UNIQUE"
	if k.Kind == schema.PrimaryKey {
		kind = "PRIMARY KEY"
	}
	return fmt.Sprintf("CONSTRAINT %s %s (%s)", d.Quote(k.Name), kind, quoteList(d.Quote, k.Columns))
}

func (d *PostgresDialect) CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, keys []schema.KeyInfo) []string {
	var defs []string
	for _, c := range cols {
		defs = append(defs, "    "+d.columnDef(c))
	}
	var clustered string
	for _, k := range keys {
		defs = append(defs, "    "+d.keyClause(k))
		if k.Clustered {
			clustered = k.Name
		}
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.Qualify(t.Schema, t.Name), strings.Join(defs, ",\n"))}
	// Clustering is a one-off physical reorder in Postgres; record it so later CLUSTER runs reuse it.
	if clustered != "" && t.Cluster != schema.ClusterDefault {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s CLUSTER ON %s", d.Qualify(t.Schema, t.Name), d.Quote(clustered)))
	}
	return stmts
}

func (d *PostgresDialect) DropTable(t schema.TableInfo) []string {
	return []string{fmt.Sprintf("DROP TABLE %s", d.Qualify(t.Schema, t.Name))}
}

func (d *PostgresDialect) AddColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Qualify(c.Schema, c.Table), d.columnDef(c))}
}

func (d *PostgresDialect) AlterColumn(from, to schema.ColumnInfo) []string {
	if from.Calculated || to.Calculated {
		return append(d.DropColumn(from), d.AddColumn(to)...)
	}
	table := d.Qualify(to.Schema, to.Table)
	col := d.Quote(to.Name)
	typ := d.ColumnType(to.Type)
	if to.Type.Collation != "" {
		typ += " COLLATE " + d.Quote(to.Type.Collation)
	}
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", table, col, typ, col, d.ColumnType(to.Type))}
	if to.Nullable {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, col))
	} else {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, col))
	}
	return stmts
}

func (d *PostgresDialect) DropColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Qualify(c.Schema, c.Table), d.Quote(c.Name))}
}

func (d *PostgresDialect) AddKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Qualify(k.Table.Schema, k.Table.Name), d.keyClause(k))}
}

func (d *PostgresDialect) DropKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Qualify(k.Table.Schema, k.Table.Name), d.Quote(k.Name))}
}

func (d *PostgresDialect) AddForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name), d.Quote(fk.Child.Name),
		d.Qualify(fk.Parent.Schema, fk.Parent.Table), d.Quote(fk.Parent.Name))}
}

func (d *PostgresDialect) DropForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name))}
}

func (d *PostgresDialect) CreateEnumTable(e schema.EnumInfo) []string {
	nameType := schema.DataType{Base: "varchar", Length: schema.EnumNameLength}
	return d.CreateTable(e.Table, enumColumns(e, nameType), []schema.KeyInfo{enumKey(e)})
}

func (d *PostgresDialect) EnumValueExistsQuery(e schema.EnumInfo) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1", d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn))
}

func (d *PostgresDialect) InsertEnumValue(e schema.EnumInfo, m schema.EnumMember) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%d, %s)",
		d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn), d.Quote(schema.EnumNameColumn),
		m.Value, StringLiteral(schema.DisplayName(m.Name)))
}

func (d *PostgresDialect) SchemaVersion(schemaName, table string, version int) []string {
	qualified := d.Qualify(schemaName, table)
	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", d.Quote(schemaName)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s ("Version" integer NOT NULL PRIMARY KEY, "AppliedUtc" timestamp NOT NULL)`, qualified),
		fmt.Sprintf(`INSERT INTO %s ("Version", "AppliedUtc") VALUES (%d, timezone('utc', now())) ON CONFLICT ("Version") DO UPDATE SET "AppliedUtc" = EXCLUDED."AppliedUtc"`, qualified, version),
	}
}

func (d *PostgresDialect) CreateDatabase(name string) string {
	return fmt.Sprintf("CREATE DATABASE %s", d.Quote(name))
}

func (d *PostgresDialect) AdminDatabase() string { return "postgres" }

// SQLSTATE codes for insufficient privilege and rejected authentication.
var postgresPermissionCodes = map[pq.ErrorCode]bool{
	"42501": true,
	"28000": true,
	"28P01": true,
}

func (d *PostgresDialect) IsPermissionError(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return postgresPermissionCodes[pe.Code]
	}
	return false
}
