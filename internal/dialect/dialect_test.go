package dialect

import (
	"fmt"
	"strings"
	"testing"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/sijms/go-ora/v2/network"

	"db-merge/internal/schema"
)

var allDialects = []Syntax{&MSSQLDialect{}, &MysqlDialect{}, &PostgresDialect{}, &OracleDialect{}}

func TestGetDialect(t *testing.T) {
	tests := map[string]string{
		"sqlserver":  "sqlserver",
		"mssql":      "sqlserver",
		"postgres":   "postgres",
		"postgresql": "postgres",
		"mysql":      "mysql",
		"oracle":     "oracle",
	}
	for name, want := range tests {
		if got := GetDialect(name).Name(); got != want {
			t.Errorf("GetDialect(%q).Name() = %q, want %q", name, got, want)
		}
		if !Known(name) {
			t.Errorf("Known(%q) = false", name)
		}
	}
	if Known("db2") {
		t.Error("Known(db2) = true, want false")
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		d    Syntax
		want string
	}{
		{&MSSQLDialect{}, "@p1, @p2, @p3"},
		{&MysqlDialect{}, "?, ?, ?"},
		{&PostgresDialect{}, "$1, $2, $3"},
		{&OracleDialect{}, ":1, :2, :3"},
	}
	for _, tt := range tests {
		if got := GeneratePlaceholders(3, tt.d.Placeholder); got != tt.want {
			t.Errorf("%s placeholders = %q, want %q", tt.d.Name(), got, tt.want)
		}
	}
}

func TestTypeMapCoversSharedTypes(t *testing.T) {
	for _, d := range allDialects {
		m := d.TypeMap()
		for _, name := range sharedTypeNames {
			if _, ok := m[name]; !ok {
				t.Errorf("%s: no type mapped for %s", d.Name(), name)
			}
		}
	}
}

// Every mapped type must survive normalization unchanged, otherwise a freshly
// created column would be reported as altered on the next comparison.
func TestNormalizeTypeIsStableForMappedTypes(t *testing.T) {
	for _, d := range allDialects {
		for goType, dt := range d.TypeMap() {
			if got := d.NormalizeType(dt); got != dt {
				t.Errorf("%s: NormalizeType(%s %v) = %v", d.Name(), goType, dt, got)
			}
		}
	}
}

func TestNormalizeIntrospectedTypes(t *testing.T) {
	tests := []struct {
		d    Syntax
		in   schema.DataType
		want schema.DataType
	}{
		{&MysqlDialect{}, schema.DataType{Base: "longtext", Length: 4294967295}, schema.DataType{Base: "varchar", Length: schema.MaxLength}},
		{&MysqlDialect{}, schema.DataType{Base: "INT", Precision: 10}, schema.DataType{Base: "int"}},
		{&PostgresDialect{}, schema.DataType{Base: "character varying", Length: 50}, schema.DataType{Base: "varchar", Length: 50}},
		{&PostgresDialect{}, schema.DataType{Base: "text"}, schema.DataType{Base: "varchar", Length: schema.MaxLength}},
		{&PostgresDialect{}, schema.DataType{Base: "integer", Precision: 32}, schema.DataType{Base: "integer"}},
		{&MSSQLDialect{}, schema.DataType{Base: "numeric", Precision: 18, Scale: 2}, schema.DataType{Base: "decimal", Precision: 18, Scale: 2}},
		{&MSSQLDialect{}, schema.DataType{Base: "int", Precision: 10}, schema.DataType{Base: "int"}},
		{&OracleDialect{}, schema.DataType{Base: "NCLOB", Length: 4000}, schema.DataType{Base: "nvarchar2", Length: schema.MaxLength}},
		{&OracleDialect{}, schema.DataType{Base: "TIMESTAMP(6)", Scale: 6}, schema.DataType{Base: "timestamp"}},
		{&OracleDialect{}, schema.DataType{Base: "NUMBER", Precision: 10}, schema.DataType{Base: "number", Precision: 10}},
	}
	for _, tt := range tests {
		if got := tt.d.NormalizeType(tt.in); got != tt.want {
			t.Errorf("%s: NormalizeType(%v) = %v, want %v", tt.d.Name(), tt.in, got, tt.want)
		}
	}
}

func tableA() (schema.TableInfo, []schema.ColumnInfo, []schema.KeyInfo) {
	t := schema.TableInfo{Schema: "dbo", Name: "TableA"}
	str50 := schema.DataType{Base: "nvarchar", Length: 50}
	cols := []schema.ColumnInfo{
		{Schema: "dbo", Table: "TableA", Name: "FirstName", Type: str50, PrimaryKey: true},
		{Schema: "dbo", Table: "TableA", Name: "LastName", Type: str50, PrimaryKey: true},
	}
	keys := []schema.KeyInfo{{Table: t, Name: "PK_TableA", Kind: schema.PrimaryKey, Columns: []string{"FirstName", "LastName"}, Clustered: true}}
	return t, cols, keys
}

func TestMSSQLCreateTable(t *testing.T) {
	d := &MSSQLDialect{}
	table, cols, keys := tableA()
	stmts := d.CreateTable(table, cols, keys)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d: %v", len(stmts), stmts)
	}
	for _, want := range []string{
		"CREATE TABLE [dbo].[TableA]",
		"[FirstName] nvarchar(50) NOT NULL",
		"[LastName] nvarchar(50) NOT NULL",
		"CONSTRAINT [PK_TableA] PRIMARY KEY CLUSTERED ([FirstName], [LastName])",
	} {
		if !strings.Contains(stmts[0], want) {
			t.Errorf("statement missing %q:\n%s", want, stmts[0])
		}
	}
}

func TestMSSQLClusterOnIdentity(t *testing.T) {
	d := &MSSQLDialect{}
	table := schema.TableInfo{Schema: "dbo", Name: "Orders", Cluster: schema.ClusterIdentity}
	cols := []schema.ColumnInfo{
		{Schema: "dbo", Table: "Orders", Name: "OrderKey", Type: schema.DataType{Base: "uniqueidentifier"}, PrimaryKey: true},
		{Schema: "dbo", Table: "Orders", Name: "Seq", Type: schema.DataType{Base: "bigint"}, Identity: true},
	}
	keys := []schema.KeyInfo{{Table: table, Name: "PK_Orders", Kind: schema.PrimaryKey, Columns: []string{"OrderKey"}}}
	stmts := d.CreateTable(table, cols, keys)
	if len(stmts) != 2 {
		t.Fatalf("expected table and clustered index, got %v", stmts)
	}
	if !strings.Contains(stmts[0], "PRIMARY KEY NONCLUSTERED") {
		t.Errorf("primary key should be nonclustered: %s", stmts[0])
	}
	if !strings.Contains(stmts[0], "[Seq] bigint IDENTITY(1,1) NOT NULL") {
		t.Errorf("identity column not rendered: %s", stmts[0])
	}
	if stmts[1] != "CREATE UNIQUE CLUSTERED INDEX [CIX_Orders_Seq] ON [dbo].[Orders] ([Seq])" {
		t.Errorf("unexpected index statement: %s", stmts[1])
	}
}

func TestColumnTypeMax(t *testing.T) {
	dt := schema.DataType{Base: "varchar", Length: schema.MaxLength}
	tests := []struct {
		d    Syntax
		in   schema.DataType
		want string
	}{
		{&MSSQLDialect{}, schema.DataType{Base: "nvarchar", Length: schema.MaxLength}, "nvarchar(max)"},
		{&MysqlDialect{}, dt, "longtext"},
		{&PostgresDialect{}, dt, "text"},
		{&MSSQLDialect{}, schema.DataType{Base: "decimal", Precision: 18, Scale: 2}, "decimal(18,2)"},
		{&MysqlDialect{}, schema.DataType{Base: "varchar", Length: 20}, "varchar(20)"},
		{&OracleDialect{}, schema.DataType{Base: "nvarchar2", Length: schema.MaxLength}, "nclob"},
		{&OracleDialect{}, schema.DataType{Base: "number", Precision: 19}, "number(19)"},
		{&OracleDialect{}, schema.DataType{Base: "number", Precision: 18, Scale: 2}, "number(18,2)"},
	}
	for _, tt := range tests {
		if got := tt.d.ColumnType(tt.in); got != tt.want {
			t.Errorf("%s: ColumnType(%v) = %q, want %q", tt.d.Name(), tt.in, got, tt.want)
		}
	}
}

func TestDropKeyByDialect(t *testing.T) {
	table := schema.TableInfo{Schema: "shop", Name: "Customer"}
	pk := schema.KeyInfo{Table: table, Name: "PK_Customer", Kind: schema.PrimaryKey, Columns: []string{"Id"}}
	uq := schema.KeyInfo{Table: table, Name: "UQ_Customer_Email", Kind: schema.UniqueKey, Columns: []string{"Email"}}

	my := &MysqlDialect{}
	if got := my.DropKey(pk)[0]; got != "ALTER TABLE `shop`.`Customer` DROP PRIMARY KEY" {
		t.Errorf("mysql drop pk = %s", got)
	}
	if got := my.DropKey(uq)[0]; got != "ALTER TABLE `shop`.`Customer` DROP INDEX `UQ_Customer_Email`" {
		t.Errorf("mysql drop unique = %s", got)
	}
	pg := &PostgresDialect{}
	if got := pg.DropKey(pk)[0]; got != `ALTER TABLE "shop"."Customer" DROP CONSTRAINT "PK_Customer"` {
		t.Errorf("postgres drop pk = %s", got)
	}
}

func TestForeignKeyStatements(t *testing.T) {
	fk := schema.ForeignKeyInfo{
		Name:   "FK_Order_CustomerId_Customer",
		Child:  schema.ColumnInfo{Schema: "dbo", Table: "Order", Name: "CustomerId"},
		Parent: schema.ColumnInfo{Schema: "dbo", Table: "Customer", Name: "Id"},
	}
	d := &MSSQLDialect{}
	want := "ALTER TABLE [dbo].[Order] ADD CONSTRAINT [FK_Order_CustomerId_Customer] FOREIGN KEY ([CustomerId]) REFERENCES [dbo].[Customer] ([Id])"
	if got := d.AddForeignKey(fk)[0]; got != want {
		t.Errorf("AddForeignKey = %s\nwant %s", got, want)
	}
	if got := (&MysqlDialect{}).DropForeignKey(fk)[0]; got != "ALTER TABLE `dbo`.`Order` DROP FOREIGN KEY `FK_Order_CustomerId_Customer`" {
		t.Errorf("mysql DropForeignKey = %s", got)
	}
}

func TestInsertEnumValueUsesDisplayName(t *testing.T) {
	e := schema.EnumInfo{
		Table:   schema.TableInfo{Schema: "dbo", Name: "OrderStatus"},
		KeyType: schema.DataType{Base: "int"},
	}
	got := (&MSSQLDialect{}).InsertEnumValue(e, schema.EnumMember{Name: "OrderPlaced", Value: 2})
	want := "INSERT INTO [dbo].[OrderStatus] ([Id], [Name]) VALUES (2, N'Order Placed')"
	if got != want {
		t.Errorf("InsertEnumValue = %s\nwant %s", got, want)
	}
}

func TestQuoteEscapes(t *testing.T) {
	if got := (&MSSQLDialect{}).Quote("a]b"); got != "[a]]b]" {
		t.Errorf("mssql quote = %s", got)
	}
	if got := (&MysqlDialect{}).Quote("a`b"); got != "`a``b`" {
		t.Errorf("mysql quote = %s", got)
	}
	if got := (&PostgresDialect{}).Quote(`a"b`); got != `"a""b"` {
		t.Errorf("postgres quote = %s", got)
	}
	if got := StringLiteral("O'Brien"); got != "'O''Brien'" {
		t.Errorf("literal = %s", got)
	}
}

func TestIsPermissionError(t *testing.T) {
	tests := []struct {
		d    Syntax
		err  error
		want bool
	}{
		{&MSSQLDialect{}, fmt.Errorf("exec: %w", mssql.Error{Number: 229, Message: "The SELECT permission was denied"}), true},
		{&MSSQLDialect{}, mssql.Error{Number: 2714, Message: "There is already an object named"}, false},
		{&MysqlDialect{}, fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1142, Message: "CREATE command denied"}), true},
		{&MysqlDialect{}, &mysql.MySQLError{Number: 1050, Message: "Table already exists"}, false},
		{&PostgresDialect{}, fmt.Errorf("exec: %w", &pq.Error{Code: "42501"}), true},
		{&PostgresDialect{}, &pq.Error{Code: "42P07"}, false},
		{&PostgresDialect{}, fmt.Errorf("plain"), false},
		{&OracleDialect{}, fmt.Errorf("exec: %w", &network.OracleError{ErrCode: 1031, ErrMsg: "ORA-01031: insufficient privileges"}), true},
		{&OracleDialect{}, &network.OracleError{ErrCode: 955, ErrMsg: "ORA-00955: name is already used by an existing object"}, false},
	}
	for i, tt := range tests {
		if got := tt.d.IsPermissionError(tt.err); got != tt.want {
			t.Errorf("case %d (%s): IsPermissionError = %v, want %v", i, tt.d.Name(), got, tt.want)
		}
	}
}

func TestSchemaVersionUpserts(t *testing.T) {
	tests := []struct {
		d      Syntax
		upsert []string
	}{
		{&MSSQLDialect{}, []string{
			"MERGE [meta].[SchemaVersion] AS t USING (SELECT 4 AS [Version]) AS s ON t.[Version] = s.[Version]",
			"WHEN NOT MATCHED THEN INSERT ([Version], [AppliedUtc])",
		}},
		{&MysqlDialect{}, []string{
			"INSERT INTO `meta`.`SchemaVersion` (`Version`, `AppliedUtc`) VALUES (4, UTC_TIMESTAMP())",
			"ON DUPLICATE KEY UPDATE `AppliedUtc` = UTC_TIMESTAMP()",
		}},
		{&PostgresDialect{}, []string{
			`INSERT INTO "meta"."SchemaVersion" ("Version", "AppliedUtc") VALUES (4,`,
			`ON CONFLICT ("Version") DO UPDATE SET "AppliedUtc" = EXCLUDED."AppliedUtc"`,
		}},
		{&OracleDialect{}, []string{
			`MERGE INTO "meta"."SchemaVersion" t USING (SELECT 4 AS "Version" FROM DUAL) s ON (t."Version" = s."Version")`,
			`WHEN NOT MATCHED THEN INSERT ("Version", "AppliedUtc")`,
		}},
	}
	for _, tt := range tests {
		stmts := tt.d.SchemaVersion("meta", "SchemaVersion", 4)
		if len(stmts) != 3 {
			t.Fatalf("%s: expected schema, table and upsert statements, got %v", tt.d.Name(), stmts)
		}
		if !strings.Contains(stmts[1], "SchemaVersion") || !strings.Contains(stmts[1], "PRIMARY KEY") {
			t.Errorf("%s: version table statement %s", tt.d.Name(), stmts[1])
		}
		for _, want := range tt.upsert {
			if !strings.Contains(stmts[2], want) {
				t.Errorf("%s: upsert missing %q:\n%s", tt.d.Name(), want, stmts[2])
			}
		}
	}
}

func TestOracleSchemaVersionIsIdempotent(t *testing.T) {
	stmts := (&OracleDialect{}).SchemaVersion("meta", "SchemaVersion", 1)
	for i, code := range []string{"-1920", "-955"} {
		if !strings.HasPrefix(stmts[i], "BEGIN EXECUTE IMMEDIATE ") || !strings.Contains(stmts[i], "SQLCODE != "+code) {
			t.Errorf("statement %d should ignore ORA%s: %s", i, code, stmts[i])
		}
	}
}

func TestOracleCreateTable(t *testing.T) {
	d := &OracleDialect{}
	tbl, cols, keys := tableA()
	cols[0].Type = schema.DataType{Base: "nvarchar2", Length: 50}
	cols[1].Type = cols[0].Type

	stmt := d.CreateTable(tbl, cols, keys)[0]
	for _, want := range []string{
		`CREATE TABLE "dbo"."TableA"`,
		`"FirstName" nvarchar2(50) NOT NULL`,
		`CONSTRAINT "PK_TableA" PRIMARY KEY ("FirstName", "LastName")`,
	} {
		if !strings.Contains(stmt, want) {
			t.Errorf("statement missing %q:\n%s", want, stmt)
		}
	}
	if strings.Contains(stmt, "ORGANIZATION INDEX") {
		t.Error("default cluster must not create an index organized table")
	}

	tbl.Cluster = schema.ClusterPrimaryKey
	if stmt := d.CreateTable(tbl, cols, keys)[0]; !strings.HasSuffix(stmt, ") ORGANIZATION INDEX") {
		t.Errorf("cluster:primaryKey should organize by index:\n%s", stmt)
	}
}

func TestOracleAlterColumnNullability(t *testing.T) {
	d := &OracleDialect{}
	from := schema.ColumnInfo{Schema: "shop", Table: "Customer", Name: "Email", Type: schema.DataType{Base: "nvarchar2", Length: 100}}
	to := from
	to.Type.Length = 200

	if got := d.AlterColumn(from, to)[0]; got != `ALTER TABLE "shop"."Customer" MODIFY ("Email" nvarchar2(200))` {
		t.Errorf("type change = %s", got)
	}
	to.Nullable = true
	if got := d.AlterColumn(from, to)[0]; got != `ALTER TABLE "shop"."Customer" MODIFY ("Email" nvarchar2(200) NULL)` {
		t.Errorf("nullability change = %s", got)
	}
}

func TestOracleCannotCreateDatabase(t *testing.T) {
	if got := (&OracleDialect{}).CreateDatabase("shop"); got != "" {
		t.Errorf("CreateDatabase = %q, want empty", got)
	}
}
