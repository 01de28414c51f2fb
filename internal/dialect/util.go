package dialect

import (
	"fmt"
	"strings"

	"db-merge/internal/schema"
)

// GeneratePlaceholders is a helper function to create a slice of placeholder strings.
// It takes the number of placeholders needed and a function that returns the placeholder for a given index.
// It returns a comma-separated string of the generated placeholders.
func GeneratePlaceholders(count int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(i)
	}
	return strings.Join(placeholders, ", ")
}

// quoteList quotes and joins column names.
func quoteList(quote func(string) string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

// StringLiteral renders s as a single-quoted SQL literal.
func StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sizedType renders base with its length or precision suffix, using maxWord for
// unbounded lengths.
func sizedType(dt schema.DataType, maxWord string) string {
	switch {
	case dt.Length == schema.MaxLength:
		if maxWord == "" {
			return dt.Base
		}
		return fmt.Sprintf("%s(%s)", dt.Base, maxWord)
	case dt.Length > 0:
		return fmt.Sprintf("%s(%d)", dt.Base, dt.Length)
	case dt.Precision > 0:
		return fmt.Sprintf("%s(%d,%d)", dt.Base, dt.Precision, dt.Scale)
	default:
		return dt.Base
	}
}

// normalizeCommon keeps length only for sized types and precision only for exact
// numerics, so introspected and declared types compare equal.
func normalizeCommon(dt schema.DataType, sized, exact map[string]bool) schema.DataType {
	dt.Base = strings.ToLower(dt.Base)
	if !sized[dt.Base] {
		dt.Length = 0
	}
	if !exact[dt.Base] {
		dt.Precision = 0
		dt.Scale = 0
	}
	return dt
}

// enumColumns builds the id/name column pair of an enum lookup table.
func enumColumns(e schema.EnumInfo, nameType schema.DataType) []schema.ColumnInfo {
	return []schema.ColumnInfo{
		{Schema: e.Table.Schema, Table: e.Table.Name, Name: schema.EnumIDColumn, Type: e.KeyType, PrimaryKey: true},
		{Schema: e.Table.Schema, Table: e.Table.Name, Name: schema.EnumNameColumn, Type: nameType},
	}
}

func enumKey(e schema.EnumInfo) schema.KeyInfo {
	return schema.KeyInfo{
		Table:     e.Table,
		Name:      schema.PrimaryKeyName(e.Table.Name),
		Kind:      schema.PrimaryKey,
		Columns:   []string{schema.EnumIDColumn},
		Clustered: true,
	}
}

// sharedTypeNames lists the Go type names every dialect maps.
var sharedTypeNames = []string{
	"string", "bool", "int", "int8", "int16", "int32", "int64",
	"uint8", "uint16", "uint32", "uint64", "float32", "float64",
	"time.Time", "[]uint8", "uuid.UUID", "decimal.Decimal",
}
