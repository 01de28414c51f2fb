package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"db-merge/internal/schema"
)

// MysqlDialect treats a MySQL database as a schema.
type MysqlDialect struct{}

func (d *MysqlDialect) Name() string { return "mysql" }

func (d *MysqlDialect) DefaultSchema() string { return "" }

func (d *MysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *MysqlDialect) Qualify(schemaName, name string) string {
	if schemaName == "" {
		return d.Quote(name)
	}
	return d.Quote(schemaName) + "." + d.Quote(name)
}

func (d *MysqlDialect) Placeholder(index int) string {
	return "?"
}

func (d *MysqlDialect) ColumnType(dt schema.DataType) string {
	if dt.Length == schema.MaxLength {
		switch dt.Base {
		case "varchar", "char":
			return "longtext"
		case "varbinary", "binary":
			return "longblob"
		}
	}
	return sizedType(dt, "")
}

func (d *MysqlDialect) TypeMap() map[string]schema.DataType {
	return map[string]schema.DataType{
		"string":          {Base: "varchar", Length: schema.MaxLength},
		"bool":            {Base: "tinyint"},
		"int":             {Base: "bigint"},
		"int8":            {Base: "tinyint"},
		"int16":           {Base: "smallint"},
		"int32":           {Base: "int"},
		"int64":           {Base: "bigint"},
		"uint8":           {Base: "smallint"},
		"uint16":          {Base: "int"},
		"uint32":          {Base: "bigint"},
		"uint64":          {Base: "decimal", Precision: 20},
		"float32":         {Base: "float"},
		"float64":         {Base: "double"},
		"time.Time":       {Base: "datetime"},
		"[]uint8":         {Base: "varbinary", Length: schema.MaxLength},
		"uuid.UUID":       {Base: "char", Length: 36},
		"decimal.Decimal": {Base: "decimal", Precision: 18, Scale: 2},
	}
}

func (d *MysqlDialect) KeyTypes() map[string]schema.DataType {
	return map[string]schema.DataType{
		"int":       {Base: "bigint"},
		"int16":     {Base: "smallint"},
		"int32":     {Base: "int"},
		"int64":     {Base: "bigint"},
		"uint8":     {Base: "smallint"},
		"uuid.UUID": {Base: "char", Length: 36},
	}
}

var (
	mysqlSized = map[string]bool{"varchar": true, "char": true, "varbinary": true, "binary": true}
	mysqlExact = map[string]bool{"decimal": true}
)

func (d *MysqlDialect) NormalizeType(dt schema.DataType) schema.DataType {
	switch strings.ToLower(dt.Base) {
	case "longtext", "mediumtext", "text":
		dt.Base, dt.Length = "varchar", schema.MaxLength
	case "longblob", "mediumblob", "blob":
		dt.Base, dt.Length = "varbinary", schema.MaxLength
	case "numeric":
		dt.Base = "decimal"
	}
	return normalizeCommon(dt, mysqlSized, mysqlExact)
}

func (d *MysqlDialect) CurrentSchemaQuery() string {
	return `SELECT DATABASE()`
}

func (d *MysqlDialect) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?`
}

func (d *MysqlDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'`
}

func (d *MysqlDialect) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME = ?`
}

func (d *MysqlDialect) ForeignKeysDependingOnTableQuery() string {
	return `SELECT CONSTRAINT_NAME, TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_SCHEMA, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE WHERE REFERENCED_TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME = ? ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`
}

func (d *MysqlDialect) SchemaColumnsQuery() string {
	return `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, IS_NULLABLE, IF(GENERATION_EXPRESSION <> '', 1, 0), IF(EXTRA LIKE '%auto_increment%', 1, 0), COLLATION_NAME, GENERATION_EXPRESSION, ORDINAL_POSITION FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME, ORDINAL_POSITION`
}

func (d *MysqlDialect) SchemaTablesQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (d *MysqlDialect) KeysQuery() string {
	// InnoDB always clusters on the primary key.
	return `SELECT k.TABLE_NAME, k.CONSTRAINT_NAME, tc.CONSTRAINT_TYPE, k.COLUMN_NAME, k.ORDINAL_POSITION, IF(tc.CONSTRAINT_TYPE = 'PRIMARY KEY', 1, 0) FROM information_schema.TABLE_CONSTRAINTS tc JOIN information_schema.KEY_COLUMN_USAGE k ON k.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME AND k.TABLE_NAME = tc.TABLE_NAME WHERE tc.TABLE_SCHEMA = ? AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'UNIQUE') ORDER BY k.TABLE_NAME, k.CONSTRAINT_NAME, k.ORDINAL_POSITION`
}

func (d *MysqlDialect) ObjectIDQuery() string {
	return `SELECT TABLE_ID FROM information_schema.INNODB_TABLES WHERE NAME = CONCAT(?, '/', ?)`
}

func (d *MysqlDialect) HasRowsQuery(t schema.TableInfo) string {
	return fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s)", d.Qualify(t.Schema, t.Name))
}

func (d *MysqlDialect) CreateSchema(name string) []string {
	return []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", d.Quote(name))}
}

func (d *MysqlDialect) columnDef(c schema.ColumnInfo) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(c.Type))
	if c.Type.Collation != "" {
		b.WriteString(" COLLATE " + c.Type.Collation)
	}
	if c.Calculated {
		b.WriteString(fmt.Sprintf(" GENERATED ALWAYS AS (%s) VIRTUAL", c.Expression))
	}
	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Identity {
		b.WriteString(" AUTO_INCREMENT")
	}
	return b.String()
}

func (d *MysqlDialect) keyClause(k schema.KeyInfo) string {
	if k.Kind == schema.PrimaryKey {
		return fmt.Sprintf("PRIMARY KEY (%s)", quoteList(d.Quote, k.Columns))
	}
	return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", d.Quote(k.Name), quoteList(d.Quote, k.Columns))
}

func (d *MysqlDialect) CreateTable(t schema.TableInfo, cols []schema.ColumnInfo, keys []schema.KeyInfo) []string {
	var defs []string
	for _, c := range cols {
		defs = append(defs, "    "+d.columnDef(c))
	}
	for _, k := range keys {
		defs = append(defs, "    "+d.keyClause(k))
	}
	return []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.Qualify(t.Schema, t.Name), strings.Join(defs, ",\n"))}
}

func (d *MysqlDialect) DropTable(t schema.TableInfo) []string {
	return []string{fmt.Sprintf("DROP TABLE %s", d.Qualify(t.Schema, t.Name))}
}

func (d *MysqlDialect) AddColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Qualify(c.Schema, c.Table), d.columnDef(c))}
}

func (d *MysqlDialect) AlterColumn(from, to schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Qualify(to.Schema, to.Table), d.columnDef(to))}
}

func (d *MysqlDialect) DropColumn(c schema.ColumnInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Qualify(c.Schema, c.Table), d.Quote(c.Name))}
}

func (d *MysqlDialect) AddKey(k schema.KeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Qualify(k.Table.Schema, k.Table.Name), d.keyClause(k))}
}

func (d *MysqlDialect) DropKey(k schema.KeyInfo) []string {
	table := d.Qualify(k.Table.Schema, k.Table.Name)
	if k.Kind == schema.PrimaryKey {
		return []string{fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", table)}
	}
	return []string{fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", table, d.Quote(k.Name))}
}

func (d *MysqlDialect) AddForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name), d.Quote(fk.Child.Name),
		d.Qualify(fk.Parent.Schema, fk.Parent.Table), d.Quote(fk.Parent.Name))}
}

func (d *MysqlDialect) DropForeignKey(fk schema.ForeignKeyInfo) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.Qualify(fk.Child.Schema, fk.Child.Table), d.Quote(fk.Name))}
}

func (d *MysqlDialect) CreateEnumTable(e schema.EnumInfo) []string {
	nameType := schema.DataType{Base: "varchar", Length: schema.EnumNameLength}
	return d.CreateTable(e.Table, enumColumns(e, nameType), []schema.KeyInfo{enumKey(e)})
}

func (d *MysqlDialect) EnumValueExistsQuery(e schema.EnumInfo) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn))
}

func (d *MysqlDialect) InsertEnumValue(e schema.EnumInfo, m schema.EnumMember) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%d, %s)",
		d.Qualify(e.Table.Schema, e.Table.Name), d.Quote(schema.EnumIDColumn), d.Quote(schema.EnumNameColumn),
		m.Value, StringLiteral(schema.DisplayName(m.Name)))
}

func (d *MysqlDialect) SchemaVersion(schemaName, table string, version int) []string {
	qualified := d.Qualify(schemaName, table)
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", d.Quote(schemaName)),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (`Version` int NOT NULL PRIMARY KEY, `AppliedUtc` datetime NOT NULL)", qualified),
		fmt.Sprintf("INSERT INTO %s (`Version`, `AppliedUtc`) VALUES (%d, UTC_TIMESTAMP()) ON DUPLICATE KEY UPDATE `AppliedUtc` = UTC_TIMESTAMP()", qualified, version),
	}
}

func (d *MysqlDialect) CreateDatabase(name string) string {
	return fmt.Sprintf("CREATE DATABASE %s", d.Quote(name))
}

func (d *MysqlDialect) AdminDatabase() string { return "mysql" }

var mysqlPermissionErrors = map[uint16]bool{
	1044: true, // ER_DBACCESS_DENIED_ERROR
	1045: true, // ER_ACCESS_DENIED_ERROR
	1142: true, // ER_TABLEACCESS_DENIED_ERROR
	1143: true, // ER_COLUMNACCESS_DENIED_ERROR
	1227: true, // ER_SPECIFIC_ACCESS_DENIED_ERROR
	1370: true, // ER_PROCACCESS_DENIED_ERROR
}

func (d *MysqlDialect) IsPermissionError(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return mysqlPermissionErrors[me.Number]
	}
	return false
}
