package merge

import (
	"errors"
	"fmt"
	"strings"

	"db-merge/internal/schema"
)

// ErrInvalidAction is the sentinel every ValidationError unwraps to.
var ErrInvalidAction = errors.New("invalid action")

// ValidationError rejects a whole action before any SQL is generated.
type ValidationError struct {
	Action   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %s", e.Action, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidAction
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) check(problems []string) {
	e.Problems = append(e.Problems, problems...)
}

func (e *ValidationError) err() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// validateKey checks key columns against their definitions: primary key columns must
// be bounded and not nullable, unique key columns must be bounded.
func validateKey(k schema.KeyInfo, cols []schema.ColumnInfo) []string {
	var problems []string
	for _, name := range k.Columns {
		var col *schema.ColumnInfo
		for i := range cols {
			if strings.EqualFold(cols[i].Name, name) {
				col = &cols[i]
				break
			}
		}
		if col == nil {
			problems = append(problems, fmt.Sprintf("%s %s names unknown column %s", k.Kind, k.Name, name))
			continue
		}
		if col.Type.IsMax() {
			problems = append(problems, fmt.Sprintf("%s column %s cannot be max length", k.Kind, col.Name))
		}
		if k.Kind == schema.PrimaryKey && col.Nullable {
			problems = append(problems, fmt.Sprintf("primary key column %s cannot be nullable", col.Name))
		}
	}
	return problems
}

// clusterConflict reports a table cluster marker combined with a clustered unique key.
func clusterConflict(t schema.TableInfo, keys ...schema.KeyInfo) []string {
	if t.Cluster == schema.ClusterDefault {
		return nil
	}
	for _, k := range keys {
		if k.Kind == schema.UniqueKey && k.Clustered {
			return []string{fmt.Sprintf("cluster:%s cannot be combined with a clustered unique key", t.Cluster)}
		}
	}
	return nil
}

// Validate checks every action and joins all failures.
func Validate(actions []Action) error {
	var errs []error
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
