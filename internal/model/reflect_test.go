package model_test

import (
	"database/sql"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"db-merge/internal/dialect"
	"db-merge/internal/model"
	"db-merge/internal/schema"
)

type TableA struct {
	FirstName string `merge:"primaryKey;size:50"`
	LastName  string `merge:"primaryKey;size:50"`
}

type Customer struct {
	_        model.Meta `merge:"schema:sales;unique:Email"`
	Id       int64      `merge:"primaryKey;identity"`
	Email    string     `merge:"size:200"`
	Name     *string    `merge:"size:100"`
	Notes    string
	Secret   string `merge:"-"`
	internal int
}

type OrderStatus int32

func (OrderStatus) EnumMembers() []schema.EnumMember {
	return []schema.EnumMember{{Name: "Placed", Value: 1}, {Name: "Shipped", Value: 2}, {Name: "OnHold", Value: 3}}
}

func (OrderStatus) LookupTable() (string, string) { return "sales", "OrderStatus" }

type Audit struct {
	CreatedUtc time.Time
	UpdatedUtc sql.NullTime
}

type Order struct {
	_          model.Meta `merge:"table:Orders;schema:sales;cluster:identity;foreignKey:CustomerId->Customer.Id"`
	Key        uuid.UUID  `merge:"primaryKey"`
	Seq        int64      `merge:"identity"`
	CustomerId int64
	Status     OrderStatus
	Total      decimal.Decimal `merge:"precision:12;scale:2"`
	Discount   decimal.NullDecimal
	ReturnKey  uuid.NullUUID
	Audit
}

type Ignored struct {
	_ model.Meta `merge:"-"`
	X int
}

type Color int

func (Color) EnumMembers() []schema.EnumMember { return []schema.EnumMember{{Name: "Red", Value: 1}} }

type Palette struct {
	Id    int `merge:"primaryKey"`
	Color Color
}

func TestReflectTableA(t *testing.T) {
	d := &dialect.MSSQLDialect{}
	db, err := model.Reflect(d, model.Options{DefaultSchema: "dbo"}, TableA{})
	if err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}
	if len(db.Tables) != 1 || db.Tables[0].Schema != "dbo" || db.Tables[0].Name != "TableA" {
		t.Fatalf("unexpected tables %v", db.Tables)
	}
	cols := db.ColumnsOf(db.Tables[0])
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}
	for _, c := range cols {
		if c.Nullable || c.Type != (schema.DataType{Base: "nvarchar", Length: 50}) || !c.PrimaryKey {
			t.Errorf("unexpected column %+v", c)
		}
	}
	pk, ok := db.PrimaryKeyOf(db.Tables[0])
	if !ok || !reflect.DeepEqual(pk.Columns, []string{"FirstName", "LastName"}) || !pk.Clustered {
		t.Errorf("unexpected primary key %+v", pk)
	}
}

func TestReflectRelations(t *testing.T) {
	d := &dialect.MSSQLDialect{}
	db, err := model.Reflect(d, model.Options{DefaultSchema: "dbo"}, &Order{}, Customer{})
	if err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}

	orders, ok := db.Table("sales", "Orders")
	if !ok {
		t.Fatal("Orders table missing")
	}
	if orders.Cluster != schema.ClusterIdentity || orders.ModelType != reflect.TypeOf(Order{}) {
		t.Errorf("unexpected table info %+v", orders)
	}

	var names []string
	byName := make(map[string]schema.ColumnInfo)
	for _, c := range db.ColumnsOf(orders) {
		names = append(names, c.Name)
		byName[c.Name] = c
	}
	want := []string{"Key", "Seq", "CustomerId", "Status", "Total", "Discount", "ReturnKey", "CreatedUtc", "UpdatedUtc"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("columns = %v, want %v", names, want)
	}
	if byName["Key"].Type.Base != "uniqueidentifier" {
		t.Errorf("uuid mapped to %v", byName["Key"].Type)
	}
	if byName["Total"].Type != (schema.DataType{Base: "decimal", Precision: 12, Scale: 2}) {
		t.Errorf("decimal mapped to %v", byName["Total"].Type)
	}
	if byName["Status"].Type.Base != "int" || !byName["Status"].ForeignKey {
		t.Errorf("enum column mapped to %+v", byName["Status"])
	}
	if !byName["Discount"].Nullable || byName["Discount"].Type.Base != "decimal" {
		t.Errorf("decimal.NullDecimal mapped to %+v", byName["Discount"])
	}
	if !byName["ReturnKey"].Nullable || byName["ReturnKey"].Type.Base != "uniqueidentifier" {
		t.Errorf("uuid.NullUUID mapped to %+v", byName["ReturnKey"])
	}
	if !byName["UpdatedUtc"].Nullable || byName["CreatedUtc"].Nullable {
		t.Error("sql.NullTime should be nullable and time.Time not")
	}
	if !byName["Seq"].Identity {
		t.Error("Seq should be an identity column")
	}

	pk, _ := db.PrimaryKeyOf(orders)
	if pk.Clustered {
		t.Error("primary key must not be clustered when clustering on identity")
	}

	fks := make(map[string]schema.ForeignKeyInfo)
	for _, fk := range db.ForeignKeys {
		fks[fk.Name] = fk
	}
	if fk, ok := fks["FK_Orders_CustomerId_Customer"]; !ok || fk.Parent.Schema != "sales" || fk.Parent.Name != "Id" {
		t.Errorf("class-level foreign key not resolved: %+v", fks)
	}
	if fk, ok := fks["FK_Orders_Status_OrderStatus"]; !ok || fk.Parent.Table != "OrderStatus" || fk.Parent.Name != schema.EnumIDColumn {
		t.Errorf("enum foreign key not resolved: %+v", fks)
	}

	if len(db.Enums) != 1 || len(db.Enums[0].Members) != 3 || db.Enums[0].Table.Name != "OrderStatus" {
		t.Errorf("unexpected enums %+v", db.Enums)
	}

	customer, _ := db.Table("sales", "Customer")
	ccols := db.ColumnsOf(customer)
	if len(ccols) != 4 {
		t.Fatalf("Customer should map 4 columns, got %v", ccols)
	}
	if !ccols[2].Nullable || ccols[2].Type.Length != 100 {
		t.Errorf("pointer column should be nullable with its size: %+v", ccols[2])
	}
	if ccols[3].Type != (schema.DataType{Base: "nvarchar", Length: schema.MaxLength}) {
		t.Errorf("untagged string should be nvarchar(max): %+v", ccols[3])
	}
	uq := db.UniqueKeysOf(customer)
	if len(uq) != 1 || uq[0].Name != "UQ_Customer_Email" {
		t.Errorf("unexpected unique keys %+v", uq)
	}
}

func TestReflectSkipsNonModels(t *testing.T) {
	d := &dialect.PostgresDialect{}
	db, err := model.Reflect(d, model.Options{DefaultSchema: "public"},
		Ignored{},
		42,
		struct{ X int }{},
		reflect.TypeOf((*io.Reader)(nil)).Elem(),
		nil,
	)
	if err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}
	if len(db.Tables) != 0 {
		t.Errorf("expected no tables, got %v", db.Tables)
	}
}

func TestReflectEnumWithoutLookupTable(t *testing.T) {
	_, err := model.Reflect(&dialect.MSSQLDialect{}, model.Options{}, Palette{})
	if !errors.Is(err, model.ErrMissingLookupTable) {
		t.Fatalf("expected ErrMissingLookupTable, got %v", err)
	}
}

func TestReflectUnknownReference(t *testing.T) {
	type Dangling struct {
		Id      int `merge:"primaryKey"`
		OtherId int `merge:"foreignKey:Other.Id"`
	}
	_, err := model.Reflect(&dialect.MysqlDialect{}, model.Options{DefaultSchema: "shop"}, Dangling{})
	if !errors.Is(err, model.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func TestReflectInvalidTag(t *testing.T) {
	type Broken struct {
		Id int `merge:"primaryKey;size:abc"`
	}
	_, err := model.Reflect(&dialect.MysqlDialect{}, model.Options{}, Broken{})
	if !errors.Is(err, model.ErrInvalidTag) {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
}

func TestReflectReportsProgress(t *testing.T) {
	var events []string
	var last float64
	opts := model.Options{
		DefaultSchema: "dbo",
		Progress: func(description string, percent float64) {
			events = append(events, description)
			last = percent
		},
	}
	if _, err := model.Reflect(&dialect.MSSQLDialect{}, opts, TableA{}, Customer{}); err != nil {
		t.Fatal(err)
	}
	want := []string{"analyzing model class 1 of 2", "analyzing model class 2 of 2"}
	if !reflect.DeepEqual(events, want) || last != 100 {
		t.Errorf("events = %v (last %v), want %v", events, last, want)
	}
}
