package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"db-merge/internal/engine"
	"db-merge/internal/inspect"
	"db-merge/internal/merge"
	"db-merge/internal/model"
)

var (
	modelFile string
	outFile   string
	color     bool
	batches   bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compare the model with the database and print the merge script",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stderr, "Connected to %s (%s)\n", ActiveDB.Name, Syntax.Name())

		actions, err := compare(cmd.Context(), nil)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Println("Database is up to date.")
			return nil
		}

		script, err := engine.Render(Syntax, actions, engine.RenderOptions{Batches: batches})
		if err != nil {
			return err
		}
		if outFile != "" {
			if err := os.WriteFile(outFile, []byte(script), 0o644); err != nil {
				return fmt.Errorf("failed to write script: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Wrote %d actions to %s\n", len(actions), outFile)
			return nil
		}
		return printScript(script)
	},
}

func init() {
	RootCmd.AddCommand(planCmd)

	RootCmd.PersistentFlags().StringVarP(&modelFile, "model", "m", "", "model file (overrides settings.model_file)")
	viper.BindPFlag("settings.model_file", RootCmd.PersistentFlags().Lookup("model"))

	planCmd.Flags().StringVarP(&outFile, "out", "o", "", "write the script to a file instead of stdout")
	planCmd.Flags().BoolVar(&color, "color", false, "highlight the script for terminals")
	planCmd.Flags().BoolVar(&batches, "batches", true, "separate SQL Server statements with GO")
}

func printScript(script string) error {
	if !color {
		fmt.Print(script)
		return nil
	}
	return quick.Highlight(os.Stdout, script, "sql", "terminal", "monokai")
}

// compare loads the model file and diffs it against the connected database.
func compare(ctx context.Context, progress func(description string, percent float64)) ([]merge.Action, error) {
	settings, err := GetSettings()
	if err != nil {
		return nil, err
	}

	schemaName := settings.DefaultSchema
	if schemaName == "" {
		schemaName, err = inspect.New(DB, Syntax).CurrentSchema(ctx)
		if err != nil {
			return nil, err
		}
	}
	if schemaName == "" {
		schemaName = Syntax.DefaultSchema()
	}
	slog.Debug("loading model", "file", settings.ModelFile, "default_schema", schemaName)

	target, err := model.LoadFile(Syntax, model.Options{
		DefaultSchema: schemaName,
		Progress:      progress,
		Logger:        slog.Default(),
	}, settings.ModelFile)
	if err != nil {
		return nil, err
	}

	m := merge.New(Syntax, merge.Options{
		Version:       settings.SchemaVersion,
		VersionSchema: settings.VersionSchema,
		Progress:      progress,
		Logger:        slog.Default(),
	})
	return m.Compare(ctx, DB, target)
}
