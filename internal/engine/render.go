package engine

import (
	"fmt"
	"strings"

	"db-merge/internal/dialect"
	"db-merge/internal/merge"
)

type RenderOptions struct {
	// Batches ends every SQL Server statement with a GO separator.
	Batches bool
}

// Render validates actions and writes them as a reviewable script: one block per
// action, its description and notes as comments, then its statements.
func Render(d dialect.Syntax, actions []merge.Action, opts RenderOptions) (string, error) {
	if err := merge.Validate(actions); err != nil {
		return "", err
	}

	_, batches := d.(*dialect.MSSQLDialect)
	batches = batches && opts.Batches

	var b strings.Builder
	for i, a := range actions {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- %s\n", a.Description())
		if n, ok := a.(merge.Noter); ok {
			for _, note := range n.Notes() {
				fmt.Fprintf(&b, "-- %s\n", note)
			}
		}
		for _, stmt := range a.Statements(d) {
			stmt = strings.TrimRight(stmt, " \t\r\n")
			b.WriteString(stmt)
			if !strings.HasSuffix(stmt, ";") {
				b.WriteString(";")
			}
			b.WriteString("\n")
			if batches {
				b.WriteString("GO\n")
			}
		}
	}
	return b.String(), nil
}
