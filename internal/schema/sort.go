package schema

import "log/slog"

// Dependencies maps each table key to the keys of the tables it references through
// foreign keys. Self references are ignored.
func Dependencies(fks []ForeignKeyInfo) map[string][]string {
	deps := make(map[string][]string)
	for _, fk := range fks {
		child, parent := fk.Child.TableKey(), fk.Parent.TableKey()
		if child == parent {
			continue
		}
		dup := false
		for _, d := range deps[child] {
			if d == parent {
				dup = true
				break
			}
		}
		if !dup {
			deps[child] = append(deps[child], parent)
		}
	}
	return deps
}

// SortByDependencies orders tables so that referenced tables come before the tables
// referencing them. Dependencies on tables outside the list are treated as satisfied.
// Cycles are broken with a scoring heuristic: fewest unresolved dependencies first,
// preferring tables that take part in a two-way cycle.
func SortByDependencies(tables []TableInfo, fks []ForeignKeyInfo) []TableInfo {
	all := Dependencies(fks)
	inList := make(map[string]bool, len(tables))
	for _, t := range tables {
		inList[t.Key()] = true
	}
	deps := make(map[string][]string, len(tables))
	for _, t := range tables {
		for _, d := range all[t.Key()] {
			if inList[d] {
				deps[t.Key()] = append(deps[t.Key()], d)
			}
		}
	}

	var sorted []TableInfo
	processed := make(map[string]bool)

	for len(sorted) < len(tables) {
		added := false

		// Pass 1: tables whose dependencies are all placed
		for _, t := range tables {
			if processed[t.Key()] {
				continue
			}
			ready := true
			for _, d := range deps[t.Key()] {
				if !processed[d] {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, t)
				processed[t.Key()] = true
				added = true
			}
		}

		if added {
			continue
		}

		// Pass 2: cycle, pick the best candidate to break it
		var best *TableInfo
		bestScore := -1 << 31
		for i := range tables {
			t := tables[i]
			if processed[t.Key()] {
				continue
			}
			score := 0
			for _, d := range deps[t.Key()] {
				if processed[d] {
					continue
				}
				score -= 100
				for _, back := range deps[d] {
					if back == t.Key() {
						score += 500
						break
					}
				}
			}
			if score > bestScore || (score == bestScore && best != nil && t.Key() < best.Key()) {
				bestScore = score
				best = &tables[i]
			}
		}
		if best == nil {
			break
		}
		slog.Debug("breaking circular dependency", "table", best.String(), "score", bestScore)
		sorted = append(sorted, *best)
		processed[best.Key()] = true
	}

	return sorted
}
