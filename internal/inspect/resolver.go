package inspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"db-merge/internal/dialect"
	"db-merge/internal/schema"
)

// Resolver looks up database object identifiers on first use and caches them for the
// lifetime of the resolver. A missing table resolves to (0, false) and is cached too.
type Resolver struct {
	q     Querier
	d     dialect.Syntax
	cache map[string]sql.NullInt64
}

func NewResolver(q Querier, d dialect.Syntax) *Resolver {
	return &Resolver{q: q, d: d, cache: make(map[string]sql.NullInt64)}
}

// ObjectID returns the engine's identifier for t.
func (r *Resolver) ObjectID(ctx context.Context, t schema.TableInfo) (int64, bool, error) {
	if id, ok := r.cache[t.Key()]; ok {
		return id.Int64, id.Valid, nil
	}
	var id sql.NullInt64
	err := r.q.QueryRowContext(ctx, r.d.ObjectIDQuery(), t.Schema, t.Name).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to resolve object id of %s: %w", t, err)
	}
	r.cache[t.Key()] = id
	return id.Int64, id.Valid, nil
}

// Forget drops a cached identifier, e.g. after the table was dropped or rebuilt.
func (r *Resolver) Forget(t schema.TableInfo) {
	delete(r.cache, t.Key())
}
