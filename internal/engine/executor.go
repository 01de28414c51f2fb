package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"db-merge/internal/dialect"
	"db-merge/internal/merge"
)

type traceKey struct{}

// WithoutTrace marks ctx so statements executed with it skip the trace callback.
func WithoutTrace(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey{}, true)
}

func traced(ctx context.Context) bool {
	off, _ := ctx.Value(traceKey{}).(bool)
	return !off
}

// Executor runs merge actions against a live database.
type Executor struct {
	Syntax dialect.Syntax
	// Trace receives every statement before it runs, except internal saves.
	Trace    func(stmt string)
	Progress func(Event)
	Logger   *slog.Logger
}

// Execute validates actions and runs their statements in order on a single connection.
// It stops at the first failure; statements already executed are not rolled back.
func (e *Executor) Execute(ctx context.Context, db *sql.DB, actions []merge.Action) error {
	if err := merge.Validate(actions); err != nil {
		return err
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := NewReporter(e.Progress)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer conn.Close()

	executed := 0
	for i, a := range actions {
		actx := ctx
		if s, ok := a.(merge.InternalSave); ok && s.Internal() {
			actx = WithoutTrace(ctx)
		}
		progress.Report(a.Description(), percentOf(i, len(actions)))

		for _, stmt := range a.Statements(e.Syntax) {
			if err := actx.Err(); err != nil {
				return err
			}
			if e.Trace != nil && traced(actx) {
				e.Trace(stmt)
			}
			if _, err := conn.ExecContext(actx, stmt); err != nil {
				logger.Error("statement failed", "action", a.Description(), "err", err)
				if e.Syntax.IsPermissionError(err) {
					return &PermissionError{Command: stmt, Action: a.Description(), Err: err}
				}
				return &ExecutionError{Command: stmt, Action: a.Description(), Err: err}
			}
			executed++
		}
	}

	progress.Report("merge complete", 100)
	logger.Info("merge executed", "actions", len(actions), "statements", executed)
	return nil
}
