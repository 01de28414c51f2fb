package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"

	"db-merge/internal/dialect"
	"db-merge/internal/engine"
	"db-merge/internal/merge"
	"db-merge/internal/schema"
)

// rawAction runs fixed statements so the executor can be driven against SQLite.
type rawAction struct {
	desc  string
	stmts []string
}

func (a rawAction) Object() merge.ObjectKind           { return merge.ObjectTable }
func (a rawAction) Kind() merge.ActionKind             { return merge.Alter }
func (a rawAction) Description() string                { return a.desc }
func (a rawAction) Validate() error                    { return nil }
func (a rawAction) Statements(dialect.Syntax) []string { return append([]string(nil), a.stmts...) }

type internalAction struct {
	rawAction
}

func (internalAction) Internal() bool { return true }

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "merge.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rowCount(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestExecuteRunsStatementsInOrder(t *testing.T) {
	db := openSQLite(t)

	var traced []string
	var events []engine.Event
	ex := &engine.Executor{
		Syntax:   &dialect.MysqlDialect{},
		Trace:    func(stmt string) { traced = append(traced, stmt) },
		Progress: func(e engine.Event) { events = append(events, e) },
	}
	actions := []merge.Action{
		rawAction{"Create table Widget", []string{"CREATE TABLE Widget (Id INTEGER PRIMARY KEY, Name TEXT NOT NULL)"}},
		rawAction{"Seed widgets", []string{"INSERT INTO Widget VALUES (1, 'a')", "INSERT INTO Widget VALUES (2, 'b')"}},
		internalAction{rawAction{"Set schema version 3", []string{"CREATE TABLE SchemaVersion (Version INTEGER)", "INSERT INTO SchemaVersion VALUES (3)"}}},
	}
	if err := ex.Execute(context.Background(), db, actions); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if n := rowCount(t, db, "Widget"); n != 2 {
		t.Errorf("Widget rows = %d, want 2", n)
	}
	if n := rowCount(t, db, "SchemaVersion"); n != 1 {
		t.Errorf("internal save did not run")
	}

	want := []string{
		"CREATE TABLE Widget (Id INTEGER PRIMARY KEY, Name TEXT NOT NULL)",
		"INSERT INTO Widget VALUES (1, 'a')",
		"INSERT INTO Widget VALUES (2, 'b')",
	}
	if !reflect.DeepEqual(traced, want) {
		t.Errorf("traced = %v\nwant %v", traced, want)
	}

	if len(events) != 4 || events[0].Percent != 0 || events[3].Percent != 100 {
		t.Errorf("unexpected progress events %+v", events)
	}
}

func TestExecuteHaltsOnFirstFailure(t *testing.T) {
	db := openSQLite(t)
	ex := &engine.Executor{Syntax: &dialect.MysqlDialect{}}
	actions := []merge.Action{
		rawAction{"Create table A", []string{"CREATE TABLE A (Id INTEGER)"}},
		rawAction{"Broken", []string{"ALTER TABLE Missing ADD COLUMN X INTEGER"}},
		rawAction{"Create table B", []string{"CREATE TABLE B (Id INTEGER)"}},
	}

	err := ex.Execute(context.Background(), db, actions)
	var execErr *engine.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.Action != "Broken" || execErr.Command != "ALTER TABLE Missing ADD COLUMN X INTEGER" {
		t.Errorf("unexpected error details %+v", execErr)
	}

	rowCount(t, db, "A")
	if err := db.QueryRow("SELECT COUNT(*) FROM B").Scan(new(int)); err == nil {
		t.Error("statements after the failure must not run")
	}
}

func TestExecuteRejectsInvalidActions(t *testing.T) {
	db := openSQLite(t)
	tbl := schema.TableInfo{Schema: "main", Name: "Bad"}
	col := schema.ColumnInfo{Schema: "main", Table: "Bad", Name: "Id", Type: schema.DataType{Base: "int"}, Nullable: true}
	actions := []merge.Action{
		rawAction{"Create table A", []string{"CREATE TABLE A (Id INTEGER)"}},
		merge.CreateTable{
			Table:   tbl,
			Columns: []schema.ColumnInfo{col},
			Keys:    []schema.KeyInfo{{Table: tbl, Name: "PK_Bad", Kind: schema.PrimaryKey, Columns: []string{"Id"}}},
		},
	}

	err := (&engine.Executor{Syntax: &dialect.MysqlDialect{}}).Execute(context.Background(), db, actions)
	if !errors.Is(err, merge.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM A").Scan(new(int)); err == nil {
		t.Error("nothing may run when validation fails")
	}
}

func TestExecuteHonorsCanceledContext(t *testing.T) {
	db := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&engine.Executor{Syntax: &dialect.MysqlDialect{}}).Execute(ctx, db, []merge.Action{
		rawAction{"Create table A", []string{"CREATE TABLE A (Id INTEGER)"}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWithoutTrace(t *testing.T) {
	db := openSQLite(t)
	var traced int
	ex := &engine.Executor{Syntax: &dialect.MysqlDialect{}, Trace: func(string) { traced++ }}
	ctx := engine.WithoutTrace(context.Background())
	if err := ex.Execute(ctx, db, []merge.Action{rawAction{"noop", []string{"SELECT 1"}}}); err != nil {
		t.Fatal(err)
	}
	if traced != 0 {
		t.Errorf("trace ran %d times under WithoutTrace", traced)
	}
}

// deniedSyntax reports every server error as a refused privilege.
type deniedSyntax struct {
	dialect.MysqlDialect
}

func (deniedSyntax) IsPermissionError(error) bool { return true }

func TestExecutePermissionErrorNamesAction(t *testing.T) {
	db := openSQLite(t)
	ex := &engine.Executor{Syntax: &deniedSyntax{}}
	err := ex.Execute(context.Background(), db, []merge.Action{
		rawAction{"Create table A", []string{"CREATE TABLE A (Id INTEGER)"}},
		rawAction{"Alter table Missing", []string{"ALTER TABLE Missing ADD COLUMN X INTEGER"}},
	})

	var permErr *engine.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if permErr.Action != "Alter table Missing" || permErr.Command != "ALTER TABLE Missing ADD COLUMN X INTEGER" {
		t.Errorf("unexpected error details %+v", permErr)
	}
	if !errors.Is(err, engine.ErrPermission) || permErr.Err == nil || !errors.Is(err, permErr.Err) {
		t.Errorf("PermissionError should unwrap to ErrPermission and its cause")
	}
}
