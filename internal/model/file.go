package model

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"db-merge/internal/dialect"
	"db-merge/internal/schema"
)

//go:embed model.cue
var modelCue string

// File is the YAML model file layout.
type File struct {
	DefaultSchema string     `yaml:"default_schema"`
	Tables        []TableDef `yaml:"tables"`
	Enums         []EnumDef  `yaml:"enums"`
}

type TableDef struct {
	Name        string          `yaml:"name"`
	Schema      string          `yaml:"schema"`
	Cluster     string          `yaml:"cluster"`
	Columns     []ColumnDef     `yaml:"columns"`
	Unique      []UniqueDef     `yaml:"unique"`
	ForeignKeys []ForeignKeyDef `yaml:"foreign_keys"`
}

type ColumnDef struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	SQLType    string `yaml:"sql_type"`
	Enum       string `yaml:"enum"`
	Size       int    `yaml:"size"`
	Max        bool   `yaml:"max"`
	Precision  int    `yaml:"precision"`
	Scale      int    `yaml:"scale"`
	Collate    string `yaml:"collate"`
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
	Identity   bool   `yaml:"identity"`
	Unique     bool   `yaml:"unique"`
	UniqueName string `yaml:"unique_name"`
	Clustered  bool   `yaml:"clustered"`
	Computed   string `yaml:"computed"`
	References string `yaml:"references"`
}

type UniqueDef struct {
	Name      string   `yaml:"name"`
	Columns   []string `yaml:"columns"`
	Clustered bool     `yaml:"clustered"`
}

type ForeignKeyDef struct {
	Column     string `yaml:"column"`
	References string `yaml:"references"`
}

type EnumDef struct {
	Name    string      `yaml:"name"`
	Schema  string      `yaml:"schema"`
	Table   string      `yaml:"table"`
	KeyType string      `yaml:"key_type"`
	Members []MemberDef `yaml:"members"`
}

type MemberDef struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// LoadFile reads a YAML model file and builds the target database.
func LoadFile(d dialect.Syntax, opts Options, path string) (*schema.Database, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return Load(d, opts, bytes.NewReader(raw))
}

// Load validates r against the embedded model schema, decodes it and builds the
// target database. A default_schema in the file overrides opts.DefaultSchema.
func Load(d dialect.Syntax, opts Options, r io.Reader) (*schema.Database, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := validateBytes(raw); err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode model file: %w", err)
	}
	if f.DefaultSchema != "" {
		opts.DefaultSchema = f.DefaultSchema
	}

	tables, enums, err := f.decls()
	if err != nil {
		return nil, err
	}
	opts.report(fmt.Sprintf("analyzing model file (%d tables)", len(tables)), 100)
	return Build(d, opts, tables, enums)
}

func (f *File) decls() ([]TableDecl, []EnumDecl, error) {
	var tables []TableDecl
	for _, t := range f.Tables {
		td := TableDecl{Schema: t.Schema, Name: t.Name}
		switch t.Cluster {
		case "", "default":
		case "primaryKey":
			td.Cluster = schema.ClusterPrimaryKey
		case "identity":
			td.Cluster = schema.ClusterIdentity
		default:
			return nil, nil, fmt.Errorf("%w: %s cluster %q", ErrInvalidTag, t.Name, t.Cluster)
		}
		for _, c := range t.Columns {
			td.Columns = append(td.Columns, ColumnDecl{
				Name:       c.Name,
				GoType:     c.Type,
				SQLType:    c.SQLType,
				Enum:       c.Enum,
				Length:     c.Size,
				Max:        c.Max,
				Precision:  c.Precision,
				Scale:      c.Scale,
				Collation:  c.Collate,
				Nullable:   c.Nullable,
				PrimaryKey: c.PrimaryKey,
				Identity:   c.Identity,
				Unique:     c.Unique,
				UniqueName: c.UniqueName,
				Clustered:  c.Clustered,
				Computed:   c.Computed,
				References: c.References,
			})
		}
		for _, u := range t.Unique {
			td.Uniques = append(td.Uniques, UniqueDecl{Name: u.Name, Columns: u.Columns, Clustered: u.Clustered})
		}
		for _, fk := range t.ForeignKeys {
			td.ForeignKeys = append(td.ForeignKeys, ForeignKeyDecl{Column: fk.Column, References: fk.References})
		}
		tables = append(tables, td)
	}

	var enums []EnumDecl
	for _, e := range f.Enums {
		ed := EnumDecl{Schema: e.Schema, Table: e.Table, TypeName: e.Name, KeyGoType: e.KeyType}
		if ed.KeyGoType == "" {
			ed.KeyGoType = "int32"
		}
		for _, m := range e.Members {
			ed.Members = append(ed.Members, schema.EnumMember{Name: m.Name, Value: m.Value})
		}
		enums = append(enums, ed)
	}
	return tables, enums, nil
}

func validateBytes(raw []byte) error {
	cueCtx := cuecontext.New()
	modelSchema := cueCtx.CompileString(modelCue)
	if modelSchema.Err() != nil {
		return fmt.Errorf("building model schema: %w", modelSchema.Err())
	}

	yamlFile, err := cueyaml.Extract("<model>", raw)
	if err != nil {
		return fmt.Errorf("decode yaml to cue: %w", err)
	}

	yamlData := cueCtx.BuildFile(yamlFile)
	if yamlData.Err() != nil {
		return fmt.Errorf("building yaml cue value: %w", yamlData.Err())
	}

	modelField := modelSchema.LookupPath(cue.ParsePath("model"))
	if !modelField.Exists() {
		return errors.New("model value not found in schema")
	}

	unified := modelField.Unify(yamlData)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("model file validation error: %w", err)
	}
	return nil
}
