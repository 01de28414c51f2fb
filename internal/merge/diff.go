package merge

import (
	"fmt"
	"log/slog"
	"strings"

	"db-merge/internal/schema"
)

// DiffOptions tune Diff.
type DiffOptions struct {
	// VersionTable is never dropped even though no model declares it.
	VersionTable schema.TableInfo
	Progress     func(description string, percent float64)
	Logger       *slog.Logger
}

type columnPair struct {
	from, to schema.ColumnInfo
}

type tableChange struct {
	table    schema.TableInfo
	actual   schema.TableInfo
	added    []schema.ColumnInfo
	deleted  []schema.ColumnInfo
	modified []columnPair
}

func (c *tableChange) empty() bool {
	return len(c.added) == 0 && len(c.deleted) == 0 && len(c.modified) == 0
}

// touches reports whether a deleted or modified column is part of k.
func (c *tableChange) touches(k schema.KeyInfo) bool {
	for _, col := range c.deleted {
		if k.HasColumn(col.Name) {
			return true
		}
	}
	for _, p := range c.modified {
		if k.HasColumn(p.from.Name) {
			return true
		}
	}
	return false
}

type differ struct {
	target, actual *schema.Database
	opts           DiffOptions
	log            *slog.Logger

	actions    []Action
	changes    map[string]*tableChange
	newTables  []schema.TableInfo
	rebuilt    map[string]bool
	dropped    []schema.TableInfo
	droppedFKs map[string]bool
	addedFKs   map[string]bool
}

// Diff computes the ordered actions that turn actual into target:
//
//  1. missing schemas
//  2. foreign key drops
//  3. new tables, referenced tables first
//  4. enum lookup tables and their missing values
//  5. per table column, key and rebuild changes
//  6. foreign key adds
//  7. table drops
//
// Diff performs no I/O.
func Diff(target, actual *schema.Database, opts DiffOptions) ([]Action, error) {
	d := &differ{
		target:     target,
		actual:     actual,
		opts:       opts,
		log:        opts.Logger,
		changes:    make(map[string]*tableChange),
		rebuilt:    make(map[string]bool),
		droppedFKs: make(map[string]bool),
		addedFKs:   make(map[string]bool),
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if err := d.checkTarget(); err != nil {
		return nil, err
	}

	d.report("finding new schemas", 0)
	d.createSchemas()
	d.classify()
	d.report("finding foreign keys to drop", 15)
	d.dropForeignKeys()
	d.report("finding new tables", 30)
	d.createTables()
	d.report("finding enum values", 45)
	d.createEnumTables()
	d.report("finding new columns", 60)
	d.alterTables()
	d.report("finding foreign keys to add", 80)
	d.addForeignKeys()
	d.report("finding tables to drop", 90)
	d.dropTables()
	d.report("comparison complete", 100)

	d.log.Debug("diff complete", "actions", len(d.actions))
	return d.actions, nil
}

func (d *differ) report(description string, percent float64) {
	if d.opts.Progress != nil {
		d.opts.Progress(description, percent)
	}
}

func (d *differ) emit(a Action) {
	d.log.Debug("action", "object", a.Object().String(), "kind", a.Kind().String(), "description", a.Description())
	d.actions = append(d.actions, a)
}

func (d *differ) checkTarget() error {
	seen := make(map[string]bool)
	for _, t := range d.target.Tables {
		if seen[t.Key()] {
			return fmt.Errorf("table %s is declared more than once", t)
		}
		seen[t.Key()] = true
	}
	return nil
}

func (d *differ) createSchemas() {
	for _, s := range d.target.SchemaNames() {
		if !d.actual.HasSchema(s) {
			d.emit(CreateSchema{Name: s})
		}
	}
}

func (d *differ) classify() {
	for _, t := range d.target.Tables {
		at, ok := d.actual.Table(t.Schema, t.Name)
		if !ok {
			d.newTables = append(d.newTables, t)
			continue
		}
		ch := d.compareColumns(t, at)
		d.changes[t.Key()] = ch
		if !ch.empty() && !d.actual.IsPopulated(at) {
			d.rebuilt[t.Key()] = true
		}
	}
	for _, at := range d.actual.Tables {
		if d.target.HasTable(at) || d.target.IsEnumTable(at) {
			continue
		}
		if d.opts.VersionTable.Name != "" && d.opts.VersionTable.Equal(at) {
			continue
		}
		d.dropped = append(d.dropped, at)
	}
}

func (d *differ) compareColumns(t, at schema.TableInfo) *tableChange {
	ch := &tableChange{table: t, actual: at}
	tcols := d.target.ColumnsOf(t)
	acols := d.actual.ColumnsOf(at)

	for _, tc := range tcols {
		var match *schema.ColumnInfo
		for i := range acols {
			if acols[i].Equal(tc) {
				match = &acols[i]
				break
			}
		}
		if match == nil {
			ch.added = append(ch.added, tc)
			continue
		}
		// An undeclared collation accepts whatever the server applied.
		if tc.Type.Collation == "" {
			tc.Type.Collation = match.Type.Collation
		}
		if match.IsAltered(tc) {
			ch.modified = append(ch.modified, columnPair{from: *match, to: tc})
		}
	}
	for _, ac := range acols {
		found := false
		for _, tc := range tcols {
			if tc.Equal(ac) {
				found = true
				break
			}
		}
		if !found {
			ch.deleted = append(ch.deleted, ac)
		}
	}
	return ch
}

func (d *differ) isModified(c schema.ColumnInfo) bool {
	ch, ok := d.changes[c.TableKey()]
	if !ok {
		return false
	}
	for _, p := range ch.modified {
		if p.from.Equal(c) {
			return true
		}
	}
	return false
}

// wanted returns the target foreign key linking the same columns as fk.
func (d *differ) wanted(fk schema.ForeignKeyInfo) (schema.ForeignKeyInfo, bool) {
	for _, t := range d.target.ForeignKeys {
		if t.SameLink(fk) {
			return t, true
		}
	}
	return schema.ForeignKeyInfo{}, false
}

func fkID(fk schema.ForeignKeyInfo) string {
	return fk.Child.TableKey() + "." + strings.ToLower(fk.Name)
}

func (d *differ) dropForeignKey(fk schema.ForeignKeyInfo) {
	if d.droppedFKs[fkID(fk)] {
		return
	}
	d.droppedFKs[fkID(fk)] = true
	d.emit(DropForeignKey{ForeignKey: fk})
}

func (d *differ) addForeignKey(fk schema.ForeignKeyInfo) {
	if d.addedFKs[fkID(fk)] {
		return
	}
	d.addedFKs[fkID(fk)] = true
	d.emit(AddForeignKey{ForeignKey: fk})
}

func (d *differ) dropForeignKeys() {
	for _, fk := range d.actual.ForeignKeys {
		_, ok := d.wanted(fk)
		switch {
		case !ok:
		case d.rebuilt[fk.Child.TableKey()], d.rebuilt[fk.Parent.TableKey()]:
		case d.isModified(fk.Child), d.isModified(fk.Parent):
		default:
			continue
		}
		d.dropForeignKey(fk)
	}
}

func (d *differ) createTables() {
	for _, t := range schema.SortByDependencies(d.newTables, d.target.ForeignKeys) {
		d.emit(CreateTable{Table: t, Columns: d.target.ColumnsOf(t), Keys: d.target.KeysOf(t)})
	}
}

func (d *differ) createEnumTables() {
	for _, e := range d.target.Enums {
		exists := d.actual.HasTable(e.Table)
		present := d.actual.EnumValues[e.Table.Key()]
		var missing []schema.EnumMember
		for _, m := range e.Members {
			if !exists || !present[m.Value] {
				missing = append(missing, m)
			}
		}
		if exists && len(missing) == 0 {
			continue
		}
		d.emit(CreateEnumTable{Enum: e, CreateTable: !exists, Missing: missing})
	}
}

func (d *differ) alterTables() {
	for _, t := range d.target.Tables {
		ch, ok := d.changes[t.Key()]
		if !ok {
			continue
		}
		if d.rebuilt[t.Key()] {
			d.rebuild(ch)
			continue
		}
		d.alterTable(ch)
	}
}

func (d *differ) rebuild(ch *tableChange) {
	a := CreateTable{
		Table:   ch.table,
		Columns: d.target.ColumnsOf(ch.table),
		Keys:    d.target.KeysOf(ch.table),
		Rebuild: true,
	}
	for _, c := range ch.added {
		a.Added = append(a.Added, c.Name)
	}
	for _, p := range ch.modified {
		a.Modified = append(a.Modified, p.to.Name)
	}
	for _, c := range ch.deleted {
		a.Deleted = append(a.Deleted, c.Name)
	}
	d.emit(a)
}

func (d *differ) alterTable(ch *tableChange) {
	t, at := ch.table, ch.actual
	targetCols := d.target.ColumnsOf(t)

	tpk, hasTargetPK := d.target.PrimaryKeyOf(t)
	apk, hasActualPK := d.actual.PrimaryKeyOf(at)
	pkImpact := hasTargetPK != hasActualPK ||
		(hasActualPK && ch.touches(apk)) ||
		(hasTargetPK && hasActualPK && !tpk.SameColumns(apk))

	var dropUnique, addUnique []schema.KeyInfo
	kept := make(map[string]bool)
	for _, au := range d.actual.UniqueKeysOf(at) {
		stillWanted := false
		for _, tu := range d.target.UniqueKeysOf(t) {
			if tu.SameColumns(au) {
				stillWanted = true
				break
			}
		}
		if !stillWanted || ch.touches(au) {
			dropUnique = append(dropUnique, au)
			continue
		}
		kept[strings.ToLower(strings.Join(au.Columns, ","))] = true
	}
	for _, tu := range d.target.UniqueKeysOf(t) {
		if !kept[strings.ToLower(strings.Join(tu.Columns, ","))] {
			addUnique = append(addUnique, tu)
		}
	}

	for _, k := range dropUnique {
		d.emit(DropKey{Key: k})
	}

	if pkImpact {
		var dependents []schema.ForeignKeyInfo
		if hasActualPK {
			for _, fk := range d.actual.ForeignKeys {
				if fk.Parent.TableKey() == at.Key() && apk.HasColumn(fk.Parent.Name) {
					dependents = append(dependents, fk)
					d.dropForeignKey(fk)
				}
			}
			d.emit(DropKey{Key: apk})
		}
		d.emitColumns(ch, true)
		if hasTargetPK {
			d.emit(AddKey{Key: tpk, Columns: targetCols})
		}
		for _, fk := range dependents {
			want, ok := d.wanted(fk)
			if !ok || d.rebuilt[fk.Child.TableKey()] || d.isModified(fk.Child) {
				continue
			}
			d.addForeignKey(want)
		}
	} else {
		d.emitColumns(ch, false)
	}

	for _, k := range addUnique {
		d.emit(AddKey{Key: k, Columns: targetCols})
	}
}

// emitColumns writes column actions. Inside a primary key bracket columns are
// dropped first so a replaced key column can be re-added under the same name.
func (d *differ) emitColumns(ch *tableChange, dropFirst bool) {
	var adds, alters, drops []Action
	for _, c := range ch.added {
		adds = append(adds, AddColumn{Column: c})
	}
	for _, p := range ch.modified {
		alters = append(alters, AlterColumn{From: p.from, To: p.to})
	}
	for _, c := range ch.deleted {
		drops = append(drops, DropColumn{Column: c})
	}
	order := [][]Action{adds, alters, drops}
	if dropFirst {
		order = [][]Action{drops, alters, adds}
	}
	for _, group := range order {
		for _, a := range group {
			d.emit(a)
		}
	}
}

func (d *differ) addForeignKeys() {
	for _, fk := range d.target.ForeignKeys {
		if d.addedFKs[fkID(fk)] {
			continue
		}
		present := false
		for _, afk := range d.actual.ForeignKeys {
			if afk.SameLink(fk) && !d.droppedFKs[fkID(afk)] {
				present = true
				break
			}
		}
		if !present {
			d.addForeignKey(fk)
		}
	}
}

func (d *differ) dropTables() {
	// children before parents
	sorted := schema.SortByDependencies(d.dropped, d.actual.ForeignKeys)
	for i := len(sorted) - 1; i >= 0; i-- {
		d.emit(DropTable{Table: sorted[i]})
	}
}
