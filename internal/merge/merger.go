package merge

import (
	"context"
	"fmt"
	"log/slog"

	"db-merge/internal/dialect"
	"db-merge/internal/inspect"
	"db-merge/internal/schema"
)

const (
	DefaultVersionSchema = "meta"
	DefaultVersionTable  = "SchemaVersion"
)

type Options struct {
	// Version is recorded after the merge when greater than zero.
	Version       int
	VersionSchema string
	VersionTable  string
	Progress      func(description string, percent float64)
	Logger        *slog.Logger
}

// Merger compares a target model with a live database.
type Merger struct {
	d    dialect.Syntax
	opts Options
}

func New(d dialect.Syntax, opts Options) *Merger {
	if opts.VersionSchema == "" {
		opts.VersionSchema = DefaultVersionSchema
	}
	if opts.VersionTable == "" {
		opts.VersionTable = DefaultVersionTable
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Merger{d: d, opts: opts}
}

func (m *Merger) versionTable() schema.TableInfo {
	return schema.TableInfo{Schema: m.opts.VersionSchema, Name: m.opts.VersionTable}
}

// Compare snapshots the schemas target uses and returns the validated actions that
// bring them in line with target. Nothing is executed.
func (m *Merger) Compare(ctx context.Context, q inspect.Querier, target *schema.Database) ([]Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.opts.Progress != nil {
		m.opts.Progress("reading database schema", 0)
	}

	in := inspect.New(q, m.d)
	in.Logger = m.opts.Logger
	actual, err := in.Snapshot(ctx, target.SchemaNames(), target.Enums)
	if err != nil {
		return nil, fmt.Errorf("failed to read database schema: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actions, err := Diff(target, actual, DiffOptions{
		VersionTable: m.versionTable(),
		Progress:     m.opts.Progress,
		Logger:       m.opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	if m.opts.Version > 0 {
		actions = append(actions, SetSchemaVersion{
			Schema:  m.opts.VersionSchema,
			Table:   m.opts.VersionTable,
			Version: m.opts.Version,
		})
	}
	if err := Validate(actions); err != nil {
		return nil, err
	}
	m.opts.Logger.Info("comparison finished", "tables", len(target.Tables), "actions", len(actions))
	return actions, nil
}
