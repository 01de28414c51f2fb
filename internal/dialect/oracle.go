package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sijms/go-ora/v2/network"

	"db-merge/internal/schema"
)

// OracleDialect maps schemas onto Oracle users. Identifiers are always quoted, so
// model names keep their case.
type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

// DefaultSchema is only used when the session reports no current schema.
func (d *OracleDialect) DefaultSchema() string { return "SYSTEM" }

func (d *OracleDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *OracleDialect) Qualify(schemaName, name string) string {
	if schemaName == "" {
		return d.Quote(name)
	}
	return d.Quote(schemaName) + "." + d.Quote(name)
}

func (d *OracleDialect) Placeholder(index int) string {
	// Oracle uses :1, :2, etc. (1-based index)
	return fmt.Sprintf(":%d", index+1)
}

// oracleLobs holds the large object type standing in for each unbounded sized type.
var oracleLobs = map[string]string{"varchar2": "clob", "nvarchar2": "nclob", "raw": "blob"}

func (d *OracleDialect) ColumnType(dt schema.DataType) string {
	if dt.Length == schema.MaxLength {
		if lob, ok := oracleLobs[dt.Base]; ok {
			return lob
		}
	}
	if dt.Base == "number" && dt.Precision > 0 && dt.Scale == 0 {
		return fmt.Sprintf("number(%d)", dt.Precision)
	}
	return sizedType(dt, "")
}

func (d *OracleDialect) TypeMap() map[string]schema.DataType {
	return map[string]schema.DataType{
		"string":          {Base: "nvarchar2", Length: schema.MaxLength},
		"bool":            {Base: "number", Precision: 1},
		"int":             {Base: "number", Precision: 19},
		"int8":            {Base: "number", Precision: 3},
		"int16":           {Base: "number", Precision: 5},
		"int32":           {Base: "number", Precision: 10},
		"int64":           {Base: "number", Precision: 19},
		"uint8":           {Base: "number", Precision: 3},
		"uint16":          {Base: "number", Precision: 5},
		"uint32":          {Base: "number", Precision: 10},
		"uint64":          {Base: "number", Precision: 20},
		"float32":         {Base: "binary_float"},
		"float64":         {Base: "binary_double"},
		"time.Time":       {Base: "timestamp"},
		"[]uint8":         {Base: "raw", Length: schema.MaxLength},
		"uuid.UUID":       {Base: "raw", Length: 16},
		"decimal.Decimal": {Base: "number", Precision: 18, Scale: 2},
	}
}

func (d *OracleDialect) KeyTypes() map[string]schema.DataType {
	return map[string]schema.DataType{
		"int":       {Base: "number", Precision: 19},
		"int16":     {Base: "number", Precision: 5},
		"int32":     {Base: "number", Precision: 10},
		"int64":     {Base: "number", Precision: 19},
		"uint8":     {Base: "number", Precision: 3},
		"uuid.UUID": {Base: "raw", Length: 16},
	}
}

var (
	oracleSized = map[string]bool{"varchar2": true, "nvarchar2": true, "char": true, "nchar": true, "raw": true}
	oracleExact = map[string]bool{"number": true}
)

// NormalizeType folds ALL_TAB_COLUMNS spellings onto the names used by TypeMap.
func (d *OracleDialect) NormalizeType(dt schema.DataType) schema.DataType {
	base := strings.ToLower(dt.Base)
	if i := strings.Index(base, "("); i >= 0 && strings.HasPrefix(base, "timestamp") {
		// TIMESTAMP(6), TIMESTAMP(6) WITH TIME ZONE
		base = "timestamp" + base[strings.Index(base, ")")+1:]
	}
	switch base {
	case "clob":
		dt.Base, dt.Length = "varchar2", schema.MaxLength
	case "nclob":
		dt.Base, dt.Length = "nvarchar2", schema.MaxLength
	case "blob":
		dt.Base, dt.Length = "raw", schema.MaxLength
	case "integer", "int", "smallint":
		dt.Base, dt.Precision, dt.Scale = "number", 38, 0
	default:
		dt.Base = base
	}
	return normalizeCommon(dt, oracleSized, oracleExact)
}

func (d *OracleDialect) CurrentSchemaQuery() string {
	return `SELECT SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA') FROM DUAL`
}

func (d *OracleDialect) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM ALL_USERS WHERE USERNAME = :1`
}

func (d *OracleDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM ALL_TABLES WHERE OWNER = :1 AND TABLE_NAME = :2 AND DROPPED = 'NO'`
}

func (d *OracleDialect) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM ALL_TAB_COLUMNS WHERE OWNER = :1 AND TABLE_NAME = :2 AND COLUMN_NAME = :3`
}

func (d *OracleDialect) ForeignKeysDependingOnTableQuery() string {
	return `
SELECT
    c.CONSTRAINT_NAME,
    c.OWNER, c.TABLE_NAME, cc.COLUMN_NAME,
    r.OWNER, r.TABLE_NAME, rcc.COLUMN_NAME
FROM ALL_CONSTRAINTS c
JOIN ALL_CONS_COLUMNS cc
    ON c.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
    AND c.OWNER = cc.OWNER
JOIN ALL_CONSTRAINTS r
    ON c.R_CONSTRAINT_NAME = r.CONSTRAINT_NAME
    AND c.R_OWNER = r.OWNER
JOIN ALL_CONS_COLUMNS rcc
    ON r.CONSTRAINT_NAME = rcc.CONSTRAINT_NAME
    AND r.OWNER = rcc.OWNER
    AND cc.POSITION = rcc.POSITION
WHERE c.CONSTRAINT_TYPE = 'R'
AND r.OWNER = :1 AND r.TABLE_NAME = :2
ORDER BY c.CONSTRAINT_NAME, cc.POSITION`
}

func (d *OracleDialect) SchemaColumnsQuery() string {
	return `
SELECT
    c.TABLE_NAME,
    c.COLUMN_NAME,
    c.DATA_TYPE,
    CASE
        WHEN c.DATA_TYPE IN ('VARCHAR2', 'NVARCHAR2', 'CHAR', 'NCHAR') THEN c.CHAR_LENGTH
        WHEN c.DATA_TYPE = 'RAW' THEN c.DATA_LENGTH
    END,
    c.DATA_PRECISION,
    c.DATA_SCALE,
    CASE WHEN c.NULLABLE = 'Y' THEN 'YES' ELSE 'NO' END,
    CASE WHEN c.VIRTUAL_COLUMN = 'YES' THEN 1 ELSE 0 END,
    CASE WHEN c.IDENTITY_COLUMN = 'YES' THEN 1 ELSE 0 END,
    CASE WHEN c.COLLATION = 'USING_NLS_COMP' THEN NULL ELSE c.COLLATION END,
    CASE WHEN c.VIRTUAL_COLUMN = 'YES' THEN c.DATA_DEFAULT_VC END,
    c.COLUMN_ID
FROM ALL_TAB_COLS c
JOIN ALL_TABLES t ON t.OWNER = c.OWNER AND t.TABLE_NAME = c.TABLE_NAME AND t.DROPPED = 'NO'
WHERE c.OWNER = :1 AND c.HIDDEN_COLUMN = 'NO'
ORDER BY c.TABLE_NAME, c.COLUMN_ID`
}

func (d *OracleDialect) SchemaTablesQuery() string {
	return `SELECT TABLE_NAME FROM ALL_TABLES WHERE OWNER = :1 AND DROPPED = 'NO' AND NESTED = 'NO' AND SECONDARY = 'N' ORDER BY TABLE_NAME`
}

// KeysQuery reports a primary key as clustered when its table is index organized.
func (d *OracleDialect) KeysQuery() string {
	return `
SELECT
    c.TABLE_NAME,
    c.CONSTRAINT_NAME,
    CASE WHEN c.CONSTRAINT_TYPE = 'P' THEN 'PRIMARY KEY' ELSE 'UNIQUE' END,
    cc.COLUMN_NAME,
    cc.POSITION,
    CASE WHEN c.CONSTRAINT_TYPE = 'P' AND t.IOT_TYPE = 'IOT' THEN 1 ELSE 0 END
FROM ALL_CONSTRAINTS c
JOIN ALL_CONS_COLUMNS cc ON cc.OWNER = c.OWNER AND cc.CONSTRAINT_NAME = c.CONSTRAINT_NAME
JOIN ALL_TABLES t ON t.OWNER = c.OWNER AND t.TABLE_NAME = c.TABLE_NAME
WHERE c.OWNER = :1 AND c.CONSTRAINT_TYPE IN ('P', 'U')
ORDER BY c.TABLE_NAME, c.CONSTRAINT_NAME, cc.POSITION`
}

func (d *OracleDialect) ObjectIDQuery() string {
	return `SELECT OBJECT_ID FROM ALL_OBJECTS WHERE OWNER = :1 AND OBJECT_NAME = :2 AND OBJECT_TYPE = 'TABLE'`
}

func (d *OracleDialect) HasRowsQuery(t schema.TableInfo) string {
	return fmt.Sprintf("SELECT CASE WHEN EXISTS (SELECT 1 FROM %s) THEN 1 ELSE 0 END FROM DUAL", d.Qualify(t.Schema, t.Name))
}

// CreateSchema creates a user without credentials to own the schema objects.
func (d *OracleDialect) CreateSchema(name string) []string {
	return []string{fmt.Sprintf("CREATE USER %s NO AUTHENTICATION DEFAULT TABLESPACE USERS QUOTA UNLIMITED ON USERS", d.Quote(name))}
}

func (d *OracleDialect) columnDef(c schema.ColumnInfo) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(c.Type))
	if c.Type.Collation != "" {
		b.WriteString(" COLLATE " + c.Type.Collation)
	}
	if c.Calculated {
		b.WriteString(fmt.Sprintf(" GENERATED ALWAYS AS (%s) VIRTUAL", c.Expression))
		return b.String()
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

func (d *OracleDialect) keyClause(k schema.KeyInfo) string {
	kind := "UNIQUE"
	if k.Kind == schema.PrimaryKey {
		kind = "PRIMARY KEY"
	}
	return fmt.Sprintf("CONSTRAINT %s %s (%s)", d.Quote(k.Name), kind, quoteList(d.Quote, k.Columns))
}

// CreateTable stores the table index organized when the cluster marker selects its
// primary key. Oracle can only cluster on the primary key.
func (d *OracleDialect) CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, keys []schema.KeyInfo) []string {
	var defs []string
	for _, c := range cols {
		defs = append(defs, "    "+d.columnDef(c))
	}
	organized := false
	for _, k := range keys {
		defs = append(defs, "    "+d.keyClause(k))
		if k.Kind == schema.PrimaryKey && k.Clustered && t.Cluster == schema.ClusterPrimaryKey {
			organized = true
		}
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.Qualify(t.Schema, t.Name), strings.Join(defs, ",\n"))
	if organized {
		stmt += " ORGANIZATION INDEX"
	}
	return []string{stmt}
}

func (d *OracleDialect) DropTable(t schema.TableInfo) []string {
	return []string{fmt.Sprintf("DROP TABLE %s PURGE", d.Qualify(t.Schema, t.Name))}
}

func (d *OracleDialect) AddColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD (%s)", d.Qualify(c.Schema, c.Table), d.columnDef(c))}
}

// AlterColumn only restates nullability when it changes; Oracle rejects a MODIFY
// to the nullability a column already has.
func (d *OracleDialect) AlterColumn(from, to schema.ColumnInfo) []string {
	if from.Calculated || to.Calculated {
		return append(d.DropColumn(from), d.AddColumn(to)...)
	}
	def := d.Quote(to.Name) + " " + d.ColumnType(to.Type)
	if to.Type.Collation != "" {
		def += " COLLATE " + to.Type.Collation
	}
	if from.Nullable != to.Nullable {
		if to.Nullable {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
	}
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY (%s)", d.Qualify(to.Schema, to.Table), def)}
}

func (d *OracleDialect) DropColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Qualify(c.Schema, c.Table), d.Quote(c.Name))}
}

func (d *OracleDialect) AddKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Qualify(k.Table.Schema, k.Table.Name), d.keyClause(k))}
}

func (d *OracleDialect) DropKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s DROP INDEX", d.Qualify(k.Table.Schema, k.Table.Name), d.Quote(k.Name))}
}

func (d *OracleDialect) AddForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name), d.Quote(fk.Child.Name),
		d.Qualify(fk.Parent.Schema, fk.Parent.Table), d.Quote(fk.Parent.Name))}
}

func (d *OracleDialect) DropForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name))}
}

func (d *OracleDialect) CreateEnumTable(e schema.EnumInfo) []string {
	nameType := schema.DataType{Base: "nvarchar2", Length: schema.EnumNameLength}
	return d.CreateTable(e.Table, enumColumns(e, nameType), []schema.KeyInfo{enumKey(e)})
}

func (d *OracleDialect) EnumValueExistsQuery(e schema.EnumInfo) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = :1", d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn))
}

func (d *OracleDialect) InsertEnumValue(e schema.EnumInfo, m schema.EnumMember) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%d, N%s)",
		d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn), d.Quote(schema.EnumNameColumn),
		m.Value, StringLiteral(schema.DisplayName(m.Name)))
}

// ignoring wraps DDL in a PL/SQL block that swallows the given ORA- code.
func (d *OracleDialect) ignoring(code int, ddl string) string {
	return fmt.Sprintf("BEGIN EXECUTE IMMEDIATE %s; EXCEPTION WHEN OTHERS THEN IF SQLCODE != -%d THEN RAISE; END IF; END;", StringLiteral(ddl), code)
}

func (d *OracleDialect) SchemaVersion(schemaName, table string, version int) []string {
	qualified := d.Qualify(schemaName, table)
	return []string{
		d.ignoring(1920, d.CreateSchema(schemaName)[0]),
		d.ignoring(955, fmt.Sprintf(`CREATE TABLE %s ("Version" number(10) NOT NULL CONSTRAINT %s PRIMARY KEY, "AppliedUtc" timestamp NOT NULL)`,
			qualified, d.Quote(schema.PrimaryKeyName(table)))),
		fmt.Sprintf(`MERGE INTO %s t USING (SELECT %d AS "Version" FROM DUAL) s ON (t."Version" = s."Version") `+
			`WHEN MATCHED THEN UPDATE SET t."AppliedUtc" = SYS_EXTRACT_UTC(SYSTIMESTAMP) `+
			`WHEN NOT MATCHED THEN INSERT ("Version", "AppliedUtc") VALUES (s."Version", SYS_EXTRACT_UTC(SYSTIMESTAMP))`, qualified, version),
	}
}

// CreateDatabase returns "": an Oracle database is provisioned outside a client
// session, so bootstrap cannot create one.
func (d *OracleDialect) CreateDatabase(name string) string { return "" }

func (d *OracleDialect) AdminDatabase() string { return "" }

// Server error numbers for missing privileges and rejected logins.
var oraclePermissionErrors = map[int]bool{
	1017: true, // invalid username/password
	1031: true, // insufficient privileges
	1045: true, // user lacks CREATE SESSION
	1950: true, // no privileges on tablespace
}

func (d *OracleDialect) IsPermissionError(err error) bool {
	var oe *network.OracleError
	if errors.As(err, &oe) {
		return oraclePermissionErrors[oe.ErrCode]
	}
	return false
}
