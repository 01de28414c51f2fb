package model

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"db-merge/internal/dialect"
	"db-merge/internal/schema"
)

var (
	metaType        = reflect.TypeOf(Meta{})
	enumType        = reflect.TypeOf((*Enum)(nil)).Elem()
	lookupTableType = reflect.TypeOf((*LookupTable)(nil)).Elem()
)

// Null wrappers map to the Go type they carry and are always nullable.
var nullTypes = map[reflect.Type]string{
	reflect.TypeOf(uuid.NullUUID{}):       "uuid.UUID",
	reflect.TypeOf(decimal.NullDecimal{}): "decimal.Decimal",
	reflect.TypeOf(sql.NullString{}):      "string",
	reflect.TypeOf(sql.NullBool{}):        "bool",
	reflect.TypeOf(sql.NullByte{}):        "uint8",
	reflect.TypeOf(sql.NullInt16{}):       "int16",
	reflect.TypeOf(sql.NullInt32{}):       "int32",
	reflect.TypeOf(sql.NullInt64{}):       "int64",
	reflect.TypeOf(sql.NullFloat64{}):     "float64",
	reflect.TypeOf(sql.NullTime{}):        "time.Time",
}

// Reflect builds the target database from model types. Each model is a struct value,
// a pointer to one, or a reflect.Type. Interfaces, non-struct kinds, unnamed struct
// types and types marked `merge:"-"` are skipped.
func Reflect(d dialect.Syntax, opts Options, models ...any) (*schema.Database, error) {
	var tables []TableDecl
	var enums []EnumDecl
	seen := make(map[reflect.Type]bool)
	typeMap := d.TypeMap()

	for i, m := range models {
		opts.report(fmt.Sprintf("analyzing model class %d of %d", i+1, len(models)), float64(i+1)/float64(len(models))*100)

		t, ok := m.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(m)
		}
		if t == nil {
			continue
		}
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct || t.Name() == "" || seen[t] {
			opts.logger().Debug("skipping model candidate", "type", t.String())
			continue
		}
		seen[t] = true

		td, skip, err := reflectTable(t, typeMap, &enums)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		tables = append(tables, td)
	}
	return Build(d, opts, tables, enums)
}

func reflectTable(t reflect.Type, typeMap map[string]schema.DataType, enums *[]EnumDecl) (TableDecl, bool, error) {
	td := TableDecl{Name: t.Name(), Type: t}

	if f, ok := metaField(t); ok {
		tag := f.Tag.Get(schema.TagName)
		if strings.TrimSpace(tag) == "-" {
			return td, true, nil
		}
		if err := applyClassTag(&td, tag); err != nil {
			return td, false, fmt.Errorf("%s: %w", t.Name(), err)
		}
	}

	if err := reflectFields(t, typeMap, &td, enums); err != nil {
		return td, false, err
	}
	return td, false, nil
}

func metaField(t reflect.Type) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.Type == metaType {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func applyClassTag(td *TableDecl, tag string) error {
	for _, opt := range parseTag(tag) {
		switch opt.key {
		case "table":
			td.Name = opt.value
		case "schema":
			td.Schema = opt.value
		case "cluster":
			switch strings.ToLower(opt.value) {
			case "primarykey":
				td.Cluster = schema.ClusterPrimaryKey
			case "identity":
				td.Cluster = schema.ClusterIdentity
			default:
				return fmt.Errorf("%w: cluster:%s", ErrInvalidTag, opt.value)
			}
		case "foreignkey":
			// Col->Table.Col, comma separated
			for _, link := range strings.Split(opt.value, ",") {
				col, ref, ok := strings.Cut(strings.TrimSpace(link), "->")
				if !ok || col == "" || ref == "" {
					return fmt.Errorf("%w: foreignKey:%s", ErrInvalidTag, link)
				}
				td.ForeignKeys = append(td.ForeignKeys, ForeignKeyDecl{Column: strings.TrimSpace(col), References: strings.TrimSpace(ref)})
			}
		case "unique":
			// A,B for one key, | between keys
			for _, group := range strings.Split(opt.value, "|") {
				var cols []string
				for _, c := range strings.Split(group, ",") {
					if c = strings.TrimSpace(c); c != "" {
						cols = append(cols, c)
					}
				}
				if len(cols) == 0 {
					return fmt.Errorf("%w: unique:%s", ErrInvalidTag, opt.value)
				}
				td.Uniques = append(td.Uniques, UniqueDecl{Columns: cols})
			}
		case "clusteredunique":
			for i := range td.Uniques {
				td.Uniques[i].Clustered = true
			}
		default:
			return fmt.Errorf("%w: unknown class option %q", ErrInvalidTag, opt.key)
		}
	}
	return nil
}

func reflectFields(t reflect.Type, typeMap map[string]schema.DataType, td *TableDecl, enums *[]EnumDecl) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type == metaType {
			continue
		}
		tag := f.Tag.Get(schema.TagName)
		if strings.TrimSpace(tag) == "-" {
			continue
		}

		ft := f.Type
		if f.Anonymous {
			base := ft
			if base.Kind() == reflect.Pointer {
				base = base.Elem()
			}
			if _, mapped := typeMap[base.String()]; !mapped && base.Kind() == reflect.Struct && nullTypes[base] == "" {
				if err := reflectFields(base, typeMap, td, enums); err != nil {
					return err
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}

		cd := ColumnDecl{Name: schema.FieldColumnName(f)}
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
			cd.Nullable = true
		}

		if enumName, ok, err := reflectEnum(ft, enums); err != nil {
			return fmt.Errorf("%s.%s: %w", td.Name, f.Name, err)
		} else if ok {
			cd.Enum = enumName
		} else {
			cd.GoType = goTypeName(ft, typeMap)
			if cd.GoType == "" {
				return fmt.Errorf("%w: %s.%s has type %s", ErrUnsupportedType, td.Name, f.Name, f.Type)
			}
			if _, isNull := nullTypes[ft]; isNull {
				cd.Nullable = true
			}
		}

		if err := applyFieldTag(&cd, tag); err != nil {
			return fmt.Errorf("%s.%s: %w", td.Name, f.Name, err)
		}
		td.Columns = append(td.Columns, cd)
	}
	return nil
}

// goTypeName returns the type map key for t, or "" when t cannot be mapped.
func goTypeName(t reflect.Type, typeMap map[string]schema.DataType) string {
	if name, ok := nullTypes[t]; ok {
		return name
	}
	if _, ok := typeMap[t.String()]; ok {
		return t.String()
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return "[]uint8"
	}
	if _, ok := typeMap[t.Kind().String()]; ok {
		return t.Kind().String()
	}
	return ""
}

func reflectEnum(t reflect.Type, enums *[]EnumDecl) (string, bool, error) {
	if !t.Implements(enumType) {
		return "", false, nil
	}
	name := t.String()
	for _, e := range *enums {
		if e.TypeName == name {
			return name, true, nil
		}
	}
	if !t.Implements(lookupTableType) {
		return "", false, fmt.Errorf("%w: %s", ErrMissingLookupTable, name)
	}
	zero := reflect.Zero(t).Interface()
	s, table := zero.(LookupTable).LookupTable()
	*enums = append(*enums, EnumDecl{
		Schema:    s,
		Table:     table,
		TypeName:  name,
		KeyGoType: t.Kind().String(),
		Members:   zero.(Enum).EnumMembers(),
	})
	return name, true, nil
}

func applyFieldTag(cd *ColumnDecl, tag string) error {
	for _, opt := range parseTag(tag) {
		var err error
		switch opt.key {
		case "column":
			// handled by schema.FieldColumnName
		case "primarykey":
			cd.PrimaryKey = true
		case "identity", "autoincrement":
			cd.Identity = true
		case "unique":
			cd.Unique = true
			cd.UniqueName = opt.value
		case "clustered":
			cd.Clustered = true
		case "nullable":
			cd.Nullable = true
		case "notnull":
			cd.Nullable = false
		case "size":
			cd.Length, err = strconv.Atoi(opt.value)
		case "max":
			cd.Max = true
		case "precision":
			cd.Precision, err = strconv.Atoi(opt.value)
		case "scale":
			cd.Scale, err = strconv.Atoi(opt.value)
		case "collate":
			cd.Collation = opt.value
		case "type":
			cd.SQLType = opt.value
		case "foreignkey", "references":
			cd.References = opt.value
		case "computed":
			cd.Computed = opt.value
		default:
			return fmt.Errorf("%w: unknown option %q", ErrInvalidTag, opt.key)
		}
		if err != nil {
			return fmt.Errorf("%w: %s:%s", ErrInvalidTag, opt.key, opt.value)
		}
	}
	return nil
}

type tagOption struct {
	key   string // lowercased
	value string
}

// parseTag splits a gorm-style tag: `primaryKey;size:50;column:Name`.
func parseTag(tag string) []tagOption {
	var opts []tagOption
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, ":")
		opts = append(opts, tagOption{key: strings.ToLower(strings.TrimSpace(k)), value: strings.TrimSpace(v)})
	}
	return opts
}
