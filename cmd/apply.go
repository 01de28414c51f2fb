package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"db-merge/internal/engine"
)

var dryRun bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Compare the model with the database and execute the merge",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Connected to %s (%s)\n", ActiveDB.Name, Syntax.Name())
		start := time.Now()

		uiprogress.Start()
		bar := uiprogress.AddBar(100).AppendCompleted().PrependElapsed()
		var step atomic.Value
		step.Store("Comparing")
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return fmt.Sprintf("%-40.40s", step.Load())
		})
		// comparison fills the first half of the bar, execution the second
		report := func(offset float64) func(engine.Event) {
			return func(e engine.Event) {
				step.Store(e.Description)
				bar.Set(int(offset + e.Percent/2))
			}
		}

		actions, err := compare(cmd.Context(), engine.NewReporter(report(0)).Func())
		if err != nil {
			uiprogress.Stop()
			return err
		}
		if len(actions) == 0 {
			bar.Set(100)
			uiprogress.Stop()
			fmt.Println("Database is up to date.")
			return nil
		}

		if dryRun {
			uiprogress.Stop()
			slog.Info("dry run, nothing will be executed")
			script, err := engine.Render(Syntax, actions, engine.RenderOptions{Batches: true})
			if err != nil {
				return err
			}
			return printScript(script)
		}

		ex := &engine.Executor{
			Syntax:   Syntax,
			Trace:    func(stmt string) { slog.Debug("executing", "sql", stmt) },
			Progress: report(50),
			Logger:   slog.Default(),
		}
		err = ex.Execute(cmd.Context(), DB, actions)
		uiprogress.Stop()

		var permErr *engine.PermissionError
		if errors.As(err, &permErr) {
			return fmt.Errorf("the configured login lacks the rights for this merge: %w", err)
		}
		if err != nil {
			return err
		}

		fmt.Println("\nSummary:")
		for i, a := range actions {
			fmt.Printf("[%02d/%02d] %-8s %s\n", i+1, len(actions), a.Kind(), a.Description())
		}
		fmt.Println("--------------------------------------------------")
		slog.Info("merge done", "actions", len(actions), "elapsed", time.Since(start))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(applyCmd)

	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the script without executing it")
}
