package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"db-merge/internal/inspect"
	"db-merge/internal/schema"
)

var inspectSchemas []string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the live schema as the merge engine sees it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in := inspect.New(DB, Syntax)
		in.Logger = slog.Default()

		schemas := inspectSchemas
		if len(schemas) == 0 {
			current, err := in.CurrentSchema(ctx)
			if err != nil {
				return err
			}
			if current == "" {
				current = Syntax.DefaultSchema()
			}
			schemas = []string{current}
		}

		db, err := in.Snapshot(ctx, schemas, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Connected to %s (%s), schemas: %s\n\n", ActiveDB.Name, Syntax.Name(), strings.Join(db.Schemas, ", "))

		ids := inspect.NewResolver(DB, Syntax)
		for _, t := range db.Tables {
			id, ok, err := ids.ObjectID(ctx, t)
			if err != nil {
				return err
			}
			objectID := "-"
			if ok {
				objectID = fmt.Sprint(id)
			}
			rows := "empty"
			if db.IsPopulated(t) {
				rows = "has rows"
			}
			fmt.Printf("%s (id %s, %s)\n", t, objectID, rows)

			for _, c := range db.ColumnsOf(t) {
				fmt.Printf("    %-30s %s\n", c.Name, columnFlags(c))
			}
			for _, k := range db.KeysOf(t) {
				fmt.Printf("    %s %s (%s)\n", k.Kind, k.Name, strings.Join(k.Columns, ", "))
			}
			for _, fk := range db.ForeignKeys {
				if fk.Child.TableKey() == t.Key() {
					fmt.Printf("    foreign key %s: %s -> %s\n", fk.Name, fk.Child.Name, fk.Parent)
				}
			}
		}
		fmt.Printf("\nTotal: %d tables, %d columns, %d foreign keys\n", len(db.Tables), len(db.Columns), len(db.ForeignKeys))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringSliceVarP(&inspectSchemas, "schema", "s", []string{}, "schemas to inspect (default is the current schema)")
}

func columnFlags(c schema.ColumnInfo) string {
	parts := []string{c.Type.String()}
	if c.Type.Collation != "" {
		parts = append(parts, "collate "+c.Type.Collation)
	}
	if c.Nullable {
		parts = append(parts, "null")
	} else {
		parts = append(parts, "not null")
	}
	if c.Identity {
		parts = append(parts, "identity")
	}
	if c.Calculated {
		parts = append(parts, "as "+c.Expression)
	}
	return strings.Join(parts, " ")
}
