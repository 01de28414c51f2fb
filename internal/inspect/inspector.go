package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"db-merge/internal/dialect"
	"db-merge/internal/schema"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Inspector reads the live schema of a database into descriptors.
type Inspector struct {
	q      Querier
	d      dialect.Syntax
	Logger *slog.Logger
}

func New(q Querier, d dialect.Syntax) *Inspector {
	return &Inspector{q: q, d: d, Logger: slog.Default()}
}

// CurrentSchema returns the schema unqualified names resolve to on this connection.
func (in *Inspector) CurrentSchema(ctx context.Context) (string, error) {
	var name sql.NullString
	if err := in.q.QueryRowContext(ctx, in.d.CurrentSchemaQuery()).Scan(&name); err != nil {
		return "", fmt.Errorf("failed to query current schema: %w", err)
	}
	return name.String, nil
}

// Snapshot reads schemas, tables, columns, keys and foreign keys of the given schemas,
// whether each table holds rows, and which members of the given enums are already stored.
func (in *Inspector) Snapshot(ctx context.Context, schemas []string, enums []schema.EnumInfo) (*schema.Database, error) {
	db := &schema.Database{
		Populated:  make(map[string]bool),
		EnumValues: make(map[string]map[int64]bool),
	}

	// Normalized keys for case-insensitive matching
	tableMap := make(map[string]schema.TableInfo)
	colMap := make(map[string]int)

	for _, s := range schemas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exists, err := in.count(ctx, in.d.SchemaExistsQuery(), s)
		if err != nil {
			return nil, fmt.Errorf("failed to check schema %s: %w", s, err)
		}
		if exists == 0 {
			in.Logger.Debug("schema not found", "schema", s)
			continue
		}
		db.Schemas = append(db.Schemas, s)

		tables, err := in.tables(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			tableMap[t.Key()] = t
			db.Tables = append(db.Tables, t)
		}

		cols, err := in.columns(ctx, s, tableMap)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			colMap[c.Key()] = len(db.Columns)
			db.Columns = append(db.Columns, c)
		}

		keys, err := in.keys(ctx, s, tableMap)
		if err != nil {
			return nil, err
		}
		db.Keys = append(db.Keys, keys...)
	}

	for _, k := range db.Keys {
		if k.Kind != schema.PrimaryKey {
			continue
		}
		for _, name := range k.Columns {
			if i, ok := colMap[schema.TableKey(k.Table.Schema, k.Table.Name)+"."+strings.ToLower(name)]; ok {
				db.Columns[i].PrimaryKey = true
			}
		}
	}

	seen := make(map[string]bool)
	for _, t := range db.Tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fks, err := in.ForeignKeysDependingOn(ctx, t)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			id := strings.ToLower(fk.Name) + "|" + fk.Child.Key()
			if seen[id] {
				continue
			}
			i, ok := colMap[fk.Child.Key()]
			if !ok {
				in.Logger.Debug("skipping foreign key from uninspected table", "name", fk.Name, "child", fk.Child.String())
				continue
			}
			seen[id] = true
			db.Columns[i].ForeignKey = true
			fk.Child = db.Columns[i]
			if j, ok := colMap[fk.Parent.Key()]; ok {
				fk.Parent = db.Columns[j]
			}
			db.ForeignKeys = append(db.ForeignKeys, fk)
		}

		populated, err := in.HasRows(ctx, t)
		if err != nil {
			return nil, err
		}
		db.Populated[t.Key()] = populated
	}

	for _, e := range enums {
		if _, ok := tableMap[e.Table.Key()]; !ok {
			continue
		}
		values := make(map[int64]bool)
		for _, m := range e.Members {
			n, err := in.count(ctx, in.d.EnumValueExistsQuery(e), m.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to check enum value %s.%s: %w", e.TypeName, m.Name, err)
			}
			if n > 0 {
				values[m.Value] = true
			}
		}
		db.EnumValues[e.Table.Key()] = values
	}

	in.Logger.Debug("snapshot complete",
		"schemas", len(db.Schemas), "tables", len(db.Tables), "columns", len(db.Columns),
		"keys", len(db.Keys), "foreign_keys", len(db.ForeignKeys))
	return db, nil
}

func (in *Inspector) tables(ctx context.Context, schemaName string) ([]schema.TableInfo, error) {
	rows, err := in.q.QueryContext(ctx, in.d.SchemaTablesQuery(), schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []schema.TableInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, schema.TableInfo{Schema: schemaName, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (in *Inspector) columns(ctx context.Context, schemaName string, tableMap map[string]schema.TableInfo) ([]schema.ColumnInfo, error) {
	rows, err := in.q.QueryContext(ctx, in.d.SchemaColumnsQuery(), schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var cols []schema.ColumnInfo
	for rows.Next() {
		var tName, cName, dType, isNull, collation, expr sql.NullString
		var cLen, precision, scale, ordinal sql.NullInt64
		var computed, identity sql.NullBool

		if err := rows.Scan(&tName, &cName, &dType, &cLen, &precision, &scale, &isNull, &computed, &identity, &collation, &expr, &ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan column (table: %s): %w", tName.String, err)
		}
		if !tName.Valid || !cName.Valid {
			continue
		}
		t, ok := tableMap[schema.TableKey(schemaName, tName.String)]
		if !ok {
			continue
		}
		dt := in.d.NormalizeType(schema.DataType{
			Base:      dType.String,
			Length:    int(cLen.Int64),
			Precision: int(precision.Int64),
			Scale:     int(scale.Int64),
			Collation: collation.String,
		})
		cols = append(cols, schema.ColumnInfo{
			Schema:     t.Schema,
			Table:      t.Name,
			Name:       cName.String,
			Type:       dt,
			Nullable:   strings.EqualFold(isNull.String, "YES"),
			Calculated: computed.Bool,
			Expression: expr.String,
			Identity:   identity.Bool,
			Ordinal:    int(ordinal.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

func (in *Inspector) keys(ctx context.Context, schemaName string, tableMap map[string]schema.TableInfo) ([]schema.KeyInfo, error) {
	rows, err := in.q.QueryContext(ctx, in.d.KeysQuery(), schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var keys []schema.KeyInfo
	index := make(map[string]int)
	for rows.Next() {
		var tName, kName, kind, col sql.NullString
		var ordinal sql.NullInt64
		var clustered sql.NullBool
		if err := rows.Scan(&tName, &kName, &kind, &col, &ordinal, &clustered); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		t, ok := tableMap[schema.TableKey(schemaName, tName.String)]
		if !ok || !kName.Valid {
			continue
		}
		id := t.Key() + "|" + strings.ToLower(kName.String)
		i, ok := index[id]
		if !ok {
			k := schema.KeyInfo{Table: t, Name: kName.String, Kind: schema.UniqueKey, Clustered: clustered.Bool}
			if strings.EqualFold(kind.String, "PRIMARY KEY") {
				k.Kind = schema.PrimaryKey
			}
			i = len(keys)
			index[id] = i
			keys = append(keys, k)
		}
		keys[i].Columns = append(keys[i].Columns, col.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}

// ForeignKeysDependingOn returns the foreign keys whose parent column belongs to t.
func (in *Inspector) ForeignKeysDependingOn(ctx context.Context, t schema.TableInfo) ([]schema.ForeignKeyInfo, error) {
	rows, err := in.q.QueryContext(ctx, in.d.ForeignKeysDependingOnTableQuery(), t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys of %s: %w", t, err)
	}
	defer rows.Close()

	var fks []schema.ForeignKeyInfo
	for rows.Next() {
		var name, cSchema, cTable, cCol, pSchema, pTable, pCol sql.NullString
		if err := rows.Scan(&name, &cSchema, &cTable, &cCol, &pSchema, &pTable, &pCol); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fks = append(fks, schema.ForeignKeyInfo{
			Name:   name.String,
			Child:  schema.ColumnInfo{Schema: cSchema.String, Table: cTable.String, Name: cCol.String, ForeignKey: true},
			Parent: schema.ColumnInfo{Schema: pSchema.String, Table: pTable.String, Name: pCol.String},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys: %w", err)
	}
	return fks, nil
}

// HasRows reports whether t contains at least one row.
func (in *Inspector) HasRows(ctx context.Context, t schema.TableInfo) (bool, error) {
	var exists sql.NullBool
	if err := in.q.QueryRowContext(ctx, in.d.HasRowsQuery(t)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check rows of %s: %w", t, err)
	}
	return exists.Bool, nil
}

// TableExists checks a single table without taking a full snapshot.
func (in *Inspector) TableExists(ctx context.Context, t schema.TableInfo) (bool, error) {
	n, err := in.count(ctx, in.d.TableExistsQuery(), t.Schema, t.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", t, err)
	}
	return n > 0, nil
}

// ColumnExists checks a single column without taking a full snapshot.
func (in *Inspector) ColumnExists(ctx context.Context, c schema.ColumnInfo) (bool, error) {
	n, err := in.count(ctx, in.d.ColumnExistsQuery(), c.Schema, c.Table, c.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check column %s: %w", c, err)
	}
	return n > 0, nil
}

func (in *Inspector) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n sql.NullInt64
	if err := in.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}
