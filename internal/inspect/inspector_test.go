package inspect_test

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"db-merge/internal/dialect"
	"db-merge/internal/inspect"
	"db-merge/internal/schema"
)

// sqliteSyntax answers the introspection queries from SQLite's catalog so the
// inspector can be exercised against a real in-process database.
type sqliteSyntax struct {
	dialect.MysqlDialect
}

func (d *sqliteSyntax) CurrentSchemaQuery() string { return `SELECT 'main'` }

func (d *sqliteSyntax) SchemaExistsQuery() string {
	return `SELECT COUNT(*) FROM pragma_database_list WHERE name = ?`
}

func (d *sqliteSyntax) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND ?1 <> '' AND name = ?2`
}

func (d *sqliteSyntax) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM pragma_table_info(?2) WHERE ?1 <> '' AND name = ?3`
}

func (d *sqliteSyntax) SchemaTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND ? <> '' ORDER BY name`
}

func (d *sqliteSyntax) SchemaColumnsQuery() string {
	return `SELECT m.name, p.name, p.type, NULL, NULL, NULL,
		CASE WHEN p."notnull" = 1 OR p.pk > 0 THEN 'NO' ELSE 'YES' END,
		0, 0, NULL, NULL, p.cid + 1
		FROM sqlite_master m JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND ? <> '' ORDER BY m.name, p.cid`
}

func (d *sqliteSyntax) KeysQuery() string {
	return `SELECT m.name, 'PK_' || m.name, 'PRIMARY KEY', p.name, p.pk, 1
		FROM sqlite_master m JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND p.pk > 0 AND ? <> '' ORDER BY m.name, p.pk`
}

func (d *sqliteSyntax) ForeignKeysDependingOnTableQuery() string {
	return `SELECT 'FK_' || m.name || '_' || f."from" || '_' || f."table", ?1, m.name, f."from", ?1, f."table", f."to"
		FROM sqlite_master m JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table' AND f."table" = ?2`
}

func (d *sqliteSyntax) ObjectIDQuery() string {
	return `SELECT rootpage FROM sqlite_master WHERE ?1 <> '' AND name = ?2`
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE Customer (Id INTEGER NOT NULL PRIMARY KEY, Email TEXT)`,
		`CREATE TABLE "Order" (Id INTEGER NOT NULL PRIMARY KEY, CustomerId INTEGER NOT NULL REFERENCES Customer(Id), Note TEXT)`,
		`CREATE TABLE OrderStatus (Id INTEGER NOT NULL PRIMARY KEY, Name TEXT NOT NULL)`,
		`INSERT INTO Customer (Id, Email) VALUES (1, 'a@example.com')`,
		`INSERT INTO OrderStatus (Id, Name) VALUES (1, 'Placed')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}
	return db
}

func orderStatusEnum() schema.EnumInfo {
	return schema.EnumInfo{
		Table:    schema.TableInfo{Schema: "main", Name: "OrderStatus"},
		TypeName: "OrderStatus",
		KeyType:  schema.DataType{Base: "int"},
		Members:  []schema.EnumMember{{Name: "Placed", Value: 1}, {Name: "Shipped", Value: 2}},
	}
}

func TestSnapshot(t *testing.T) {
	db := openTestDB(t)
	in := inspect.New(db, &sqliteSyntax{})
	ctx := context.Background()

	snap, err := in.Snapshot(ctx, []string{"main", "missing"}, []schema.EnumInfo{orderStatusEnum()})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if len(snap.Schemas) != 1 || snap.Schemas[0] != "main" {
		t.Errorf("expected only schema main, got %v", snap.Schemas)
	}
	if len(snap.Tables) != 3 {
		t.Fatalf("expected 3 tables, got %v", snap.Tables)
	}

	customer, ok := snap.Table("MAIN", "customer")
	if !ok {
		t.Fatal("Customer table not found case-insensitively")
	}
	if !snap.IsPopulated(customer) {
		t.Error("Customer should be populated")
	}
	order, _ := snap.Table("main", "Order")
	if snap.IsPopulated(order) {
		t.Error("Order should be empty")
	}

	cols := snap.ColumnsOf(order)
	if len(cols) != 3 {
		t.Fatalf("expected 3 Order columns, got %v", cols)
	}
	if !cols[0].PrimaryKey || cols[0].Nullable {
		t.Errorf("Order.Id should be a non-nullable primary key column: %+v", cols[0])
	}
	if !cols[1].ForeignKey {
		t.Errorf("Order.CustomerId should be marked as foreign key: %+v", cols[1])
	}
	if cols[2].Type.Base != "varchar" || !cols[2].Type.IsMax() || !cols[2].Nullable {
		t.Errorf("Order.Note should normalize to nullable varchar(max): %+v", cols[2])
	}

	if len(snap.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key, got %v", snap.ForeignKeys)
	}
	fk := snap.ForeignKeys[0]
	if fk.Child.Table != "Order" || fk.Child.Name != "CustomerId" || fk.Parent.Table != "Customer" || fk.Parent.Name != "Id" {
		t.Errorf("unexpected foreign key %+v", fk)
	}
	if !fk.Parent.PrimaryKey {
		t.Error("parent column should carry its introspected properties")
	}

	pk, ok := snap.PrimaryKeyOf(customer)
	if !ok || len(pk.Columns) != 1 || pk.Columns[0] != "Id" {
		t.Errorf("unexpected Customer primary key %+v", pk)
	}

	values := snap.EnumValues[schema.TableKey("main", "OrderStatus")]
	if !values[1] || values[2] {
		t.Errorf("expected only enum value 1 present, got %v", values)
	}
}

func TestSnapshotCanceled(t *testing.T) {
	db := openTestDB(t)
	in := inspect.New(db, &sqliteSyntax{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := in.Snapshot(ctx, []string{"main"}, nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestExistenceChecks(t *testing.T) {
	db := openTestDB(t)
	in := inspect.New(db, &sqliteSyntax{})
	ctx := context.Background()

	schemaName, err := in.CurrentSchema(ctx)
	if err != nil || schemaName != "main" {
		t.Fatalf("CurrentSchema = %q, %v", schemaName, err)
	}

	ok, err := in.TableExists(ctx, schema.TableInfo{Schema: "main", Name: "Customer"})
	if err != nil || !ok {
		t.Errorf("TableExists(Customer) = %v, %v", ok, err)
	}
	ok, err = in.TableExists(ctx, schema.TableInfo{Schema: "main", Name: "Invoice"})
	if err != nil || ok {
		t.Errorf("TableExists(Invoice) = %v, %v", ok, err)
	}
	ok, err = in.ColumnExists(ctx, schema.ColumnInfo{Schema: "main", Table: "Customer", Name: "Email"})
	if err != nil || !ok {
		t.Errorf("ColumnExists(Customer.Email) = %v, %v", ok, err)
	}
}

func TestResolverCachesLookups(t *testing.T) {
	db := openTestDB(t)
	r := inspect.NewResolver(db, &sqliteSyntax{})
	ctx := context.Background()
	customer := schema.TableInfo{Schema: "main", Name: "Customer"}

	id, ok, err := r.ObjectID(ctx, customer)
	if err != nil || !ok || id == 0 {
		t.Fatalf("ObjectID(Customer) = %d, %v, %v", id, ok, err)
	}

	if _, err := db.Exec(`DROP TABLE "Order"`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DROP TABLE Customer`); err != nil {
		t.Fatal(err)
	}
	cached, ok, err := r.ObjectID(ctx, customer)
	if err != nil || !ok || cached != id {
		t.Errorf("expected cached id %d, got %d, %v, %v", id, cached, ok, err)
	}

	r.Forget(customer)
	_, ok, err = r.ObjectID(ctx, customer)
	if err != nil || ok {
		t.Errorf("expected dropped table to resolve to nothing, got %v, %v", ok, err)
	}
}
