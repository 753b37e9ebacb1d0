package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// Differ compares the live schema of one source against the catalog and
// classifies every discrepancy. It never mutates anything.
type Differ struct {
	store  catalog.Store
	insp   introspect.Introspector
	log    *logger.Logger
	client string
	schema string
}

func NewDiffer(store catalog.Store, insp introspect.Introspector, log *logger.Logger, client, schema string) *Differ {
	return &Differ{
		store:  store,
		insp:   insp,
		log:    log,
		client: client,
		schema: schema,
	}
}

// relationProbe is a catalog relation column queued for relation diffing.
type relationProbe struct {
	table  *catalog.Table
	column *catalog.Column
}

// fkState tracks whether a physical FK was matched by the catalog from
// each end. The bt and hm columns of one relation share a single FK, so a
// found-mark from either side must not suppress the other direction.
type fkState struct {
	rel     introspect.RelationInfo
	btFound bool
	hmFound bool
}

func fkKey(childTable, childColumn, parentTable, parentColumn string) string {
	return childTable + "\x00" + childColumn + "\x00" + parentTable + "\x00" + parentColumn
}

func (d *Differ) Diff(ctx context.Context, scope catalog.Scope) ([]TableDiff, error) {
	physTables, err := d.insp.Tables(ctx, d.schema)
	if err != nil {
		return nil, err
	}
	physViews, err := d.insp.Views(ctx, d.schema)
	if err != nil {
		return nil, err
	}
	physRelations, err := d.insp.Relations(ctx, d.schema)
	if err != nil {
		return nil, err
	}
	catTables, err := d.store.ListTables(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog tables: %w", err)
	}

	diffs := make(map[string]*TableDiff)
	ensure := func(tableName, tableID string) *TableDiff {
		td, ok := diffs[tableName]
		if !ok {
			td = &TableDiff{TableName: tableName}
			diffs[tableName] = td
		}
		if td.TableID == "" {
			td.TableID = tableID
		}
		return td
	}

	physTableSet := make(map[string]bool, len(physTables))
	for _, t := range physTables {
		physTableSet[t.Name] = true
	}

	catByName := make(map[string]*catalog.Table)
	catViewByName := make(map[string]*catalog.Table)
	for _, t := range catTables {
		if t.Type == catalog.TypeView {
			catViewByName[t.TableName] = t
		} else {
			catByName[t.TableName] = t
		}
	}

	// physColumns caches introspected columns of matched tables; the m2m
	// integrity check reuses it.
	physColumns := make(map[string][]introspect.ColumnInfo)
	var probes []relationProbe

	for _, phys := range physTables {
		cat, ok := catByName[phys.Name]
		if !ok {
			td := ensure(phys.Name, "")
			td.Changes = append(td.Changes, Change{
				Kind:      ChangeTableNew,
				TableName: phys.Name,
				Message:   fmt.Sprintf("new table %q", phys.Name),
			})
			continue
		}
		cols, err := d.insp.Columns(ctx, phys.Name, d.schema)
		if err != nil {
			return nil, err
		}
		physColumns[phys.Name] = cols

		tableProbes, err := d.diffColumns(ctx, scope, cat, cols, ensure, false)
		if err != nil {
			return nil, err
		}
		probes = append(probes, tableProbes...)
	}

	for name, cat := range catByName {
		if !physTableSet[name] {
			td := ensure(name, cat.ID)
			td.Changes = append(td.Changes, Change{
				Kind:      ChangeTableRemove,
				TableName: name,
				Message:   fmt.Sprintf("table %q no longer exists", name),
			})
			// The vanished table's own relations are still checked so
			// they are torn down ahead of the table itself.
			tableProbes, err := d.relationProbes(ctx, scope, cat)
			if err != nil {
				return nil, err
			}
			probes = append(probes, tableProbes...)
		}
	}

	// Views get the reduced change set: no relations, no props.
	physViewSet := make(map[string]bool, len(physViews))
	for _, v := range physViews {
		physViewSet[v.Name] = true
		cat, ok := catViewByName[v.Name]
		if !ok {
			td := ensure(v.Name, "")
			td.Changes = append(td.Changes, Change{
				Kind:      ChangeViewNew,
				TableName: v.Name,
				Message:   fmt.Sprintf("new view %q", v.Name),
			})
			continue
		}
		cols, err := d.insp.Columns(ctx, v.Name, d.schema)
		if err != nil {
			return nil, err
		}
		if _, err := d.diffColumns(ctx, scope, cat, cols, ensure, true); err != nil {
			return nil, err
		}
	}
	for name, cat := range catViewByName {
		if !physViewSet[name] {
			td := ensure(name, cat.ID)
			td.Changes = append(td.Changes, Change{
				Kind:      ChangeViewRemove,
				TableName: name,
				Message:   fmt.Sprintf("view %q no longer exists", name),
			})
		}
	}

	if err := d.diffRelations(ctx, scope, probes, physRelations, physTableSet, physColumns, ensure); err != nil {
		return nil, err
	}

	out := make([]TableDiff, 0, len(diffs))
	for _, td := range diffs {
		if len(td.Changes) == 0 {
			continue
		}
		SortChanges(td.Changes)
		out = append(out, *td)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

// diffColumns matches catalog columns against the physical column list by
// exact physical name. Virtual columns never produce a column removal:
// relation columns are queued for relation diffing, the rest have no
// physical shadow at all.
func (d *Differ) diffColumns(
	ctx context.Context,
	scope catalog.Scope,
	table *catalog.Table,
	physCols []introspect.ColumnInfo,
	ensure func(string, string) *TableDiff,
	isView bool,
) ([]relationProbe, error) {
	catCols, err := d.store.ListColumns(ctx, scope, table.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog columns for %s: %w", table.TableName, err)
	}

	physByName := make(map[string]*introspect.ColumnInfo, len(physCols))
	for i := range physCols {
		physByName[physCols[i].Name] = &physCols[i]
	}

	catNames := make(map[string]bool, len(catCols))
	var probes []relationProbe

	addKind, removeKind, typeKind := ChangeTableColumnAdd, ChangeTableColumnRemove, ChangeTableColumnType
	if isView {
		addKind, removeKind, typeKind = ChangeViewColumnAdd, ChangeViewColumnRemove, ChangeViewColumnType
	}

	for _, catCol := range catCols {
		if catCol.UIType.IsVirtual() {
			if catCol.UIType == catalog.UITypeLinks && catCol.Relation != nil && !catCol.Relation.Virtual {
				probes = append(probes, relationProbe{table: table, column: catCol})
			}
			continue
		}
		catNames[catCol.ColumnName] = true

		phys, ok := physByName[catCol.ColumnName]
		if !ok {
			td := ensure(table.TableName, table.ID)
			td.Changes = append(td.Changes, Change{
				Kind:       removeKind,
				TableName:  table.TableName,
				ColumnID:   catCol.ID,
				ColumnName: catCol.ColumnName,
				Message:    fmt.Sprintf("column %q no longer exists", catCol.ColumnName),
			})
			continue
		}

		// System columns stay matched so they never look like adds, but
		// their shape is owned by the engine, not the diff.
		if catCol.System {
			continue
		}

		if d.typeChanged(catCol, phys) {
			td := ensure(table.TableName, table.ID)
			td.Changes = append(td.Changes, Change{
				Kind:       typeKind,
				TableName:  table.TableName,
				ColumnID:   catCol.ID,
				ColumnName: catCol.ColumnName,
				NewColumn:  phys,
				Message:    fmt.Sprintf("column %q type changed to %s", catCol.ColumnName, phys.DataType),
			})
		} else if !isView && propsChanged(catCol, phys) {
			td := ensure(table.TableName, table.ID)
			td.Changes = append(td.Changes, Change{
				Kind:       ChangeTableColumnProps,
				TableName:  table.TableName,
				ColumnID:   catCol.ID,
				ColumnName: catCol.ColumnName,
				NewColumn:  phys,
				Message:    fmt.Sprintf("column %q properties changed", catCol.ColumnName),
			})
		}
	}

	for i := range physCols {
		if catNames[physCols[i].Name] {
			continue
		}
		td := ensure(table.TableName, table.ID)
		td.Changes = append(td.Changes, Change{
			Kind:       addKind,
			TableName:  table.TableName,
			ColumnName: physCols[i].Name,
			NewColumn:  &physCols[i],
			Message:    fmt.Sprintf("new column %q", physCols[i].Name),
		})
	}

	return probes, nil
}

// relationProbes queues every non-virtual Links column of a table for
// relation diffing. Used for tables with no physical counterpart, whose
// columns never pass through diffColumns.
func (d *Differ) relationProbes(ctx context.Context, scope catalog.Scope, table *catalog.Table) ([]relationProbe, error) {
	cols, err := d.store.ListColumns(ctx, scope, table.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog columns for %s: %w", table.TableName, err)
	}
	var probes []relationProbe
	for _, col := range cols {
		if col.UIType == catalog.UITypeLinks && col.Relation != nil && !col.Relation.Virtual {
			probes = append(probes, relationProbe{table: table, column: col})
		}
	}
	return probes, nil
}

func (d *Differ) typeChanged(catCol *catalog.Column, phys *introspect.ColumnInfo) bool {
	if catCol.DataType != phys.DataType {
		return true
	}
	if isMySQLFamily(d.client) && isEnumOrSet(phys.DataType) {
		return !equalTypeParams(catCol.TypeParams, phys.TypeParams)
	}
	return false
}

func propsChanged(catCol *catalog.Column, phys *introspect.ColumnInfo) bool {
	return catCol.PK != phys.PK ||
		catCol.Required != phys.Required ||
		catCol.Unique != phys.Unique ||
		catCol.AutoIncrement != phys.AutoIncrement
}

// diffRelations checks every queued catalog relation column against the
// physical FK list, then turns FKs never claimed from a given end into
// direction-specific relation adds.
func (d *Differ) diffRelations(
	ctx context.Context,
	scope catalog.Scope,
	probes []relationProbe,
	physRelations []introspect.RelationInfo,
	physTableSet map[string]bool,
	physColumns map[string][]introspect.ColumnInfo,
	ensure func(string, string) *TableDiff,
) error {
	fks := make(map[string]*fkState, len(physRelations))
	for _, rel := range physRelations {
		key := fkKey(rel.ChildTable, rel.ChildColumn, rel.ParentTable, rel.ParentColumn)
		if _, ok := fks[key]; !ok {
			fks[key] = &fkState{rel: rel}
		}
	}

	physColSet := func(tableName string) map[string]bool {
		cols, ok := physColumns[tableName]
		if !ok {
			return nil
		}
		set := make(map[string]bool, len(cols))
		for _, col := range cols {
			set[col.Name] = true
		}
		return set
	}

	for _, probe := range probes {
		rel := probe.column.Relation

		if rel.Type == catalog.RelationManyToMany {
			if err := d.checkM2MIntegrity(ctx, scope, probe, physTableSet, physColSet, ensure); err != nil {
				return err
			}
			continue
		}

		tuple, err := d.resolveFKTuple(ctx, scope, probe)
		if err != nil {
			var refErr *ReferentialInconsistencyError
			if errors.As(err, &refErr) {
				// Endpoint vanished from the catalog: degrade to removal.
				d.log.Warnf("%v, removing relation", refErr)
				d.emitRelationRemove(probe, ensure)
				continue
			}
			return err
		}

		state, ok := fks[tuple]
		if !ok {
			d.emitRelationRemove(probe, ensure)
			continue
		}
		switch rel.Type {
		case catalog.RelationHasMany:
			state.hmFound = true
		default: // bt and oo are both claimed from the child side
			state.btFound = true
		}
	}

	keys := make([]string, 0, len(fks))
	for key := range fks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		state := fks[key]
		rel := state.rel
		if !physTableSet[rel.ChildTable] || !physTableSet[rel.ParentTable] {
			continue
		}
		relCopy := rel
		if !state.btFound {
			td := ensure(rel.ChildTable, "")
			td.Changes = append(td.Changes, Change{
				Kind:         ChangeRelationAdd,
				TableName:    rel.ChildTable,
				Relation:     &relCopy,
				RelationType: catalog.RelationBelongsTo,
				Message:      fmt.Sprintf("new relation %s.%s -> %s.%s", rel.ChildTable, rel.ChildColumn, rel.ParentTable, rel.ParentColumn),
			})
		}
		if !state.hmFound {
			td := ensure(rel.ParentTable, "")
			td.Changes = append(td.Changes, Change{
				Kind:         ChangeRelationAdd,
				TableName:    rel.ParentTable,
				Relation:     &relCopy,
				RelationType: catalog.RelationHasMany,
				Message:      fmt.Sprintf("new relation %s.%s <- %s.%s", rel.ParentTable, rel.ParentColumn, rel.ChildTable, rel.ChildColumn),
			})
		}
	}
	return nil
}

func (d *Differ) emitRelationRemove(probe relationProbe, ensure func(string, string) *TableDiff) {
	td := ensure(probe.table.TableName, probe.table.ID)
	td.Changes = append(td.Changes, Change{
		Kind:      ChangeRelationRemove,
		TableName: probe.table.TableName,
		ColumnID:  probe.column.ID,
		Message:   fmt.Sprintf("relation column %q lost its physical foreign key", probe.column.Title),
	})
}

// resolveFKTuple maps a bt/hm/oo relation column back onto the physical
// (childTable, childColumn, parentTable, parentColumn) tuple it expects.
func (d *Differ) resolveFKTuple(ctx context.Context, scope catalog.Scope, probe relationProbe) (string, error) {
	rel := probe.column.Relation

	childCol, err := d.store.GetColumn(ctx, scope, rel.ChildColumnID)
	if err != nil {
		return "", d.refErr(err, probe.column.ID, "child column "+rel.ChildColumnID)
	}
	parentCol, err := d.store.GetColumn(ctx, scope, rel.ParentColumnID)
	if err != nil {
		return "", d.refErr(err, probe.column.ID, "parent column "+rel.ParentColumnID)
	}
	childTable, err := d.store.GetTable(ctx, scope, childCol.TableID)
	if err != nil {
		return "", d.refErr(err, probe.column.ID, "child table "+childCol.TableID)
	}
	parentTable, err := d.store.GetTable(ctx, scope, parentCol.TableID)
	if err != nil {
		return "", d.refErr(err, probe.column.ID, "parent table "+parentCol.TableID)
	}

	return fkKey(childTable.TableName, childCol.ColumnName, parentTable.TableName, parentCol.ColumnName), nil
}

func (d *Differ) refErr(err error, relationColumnID, missing string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return &ReferentialInconsistencyError{RelationColumnID: relationColumnID, Missing: missing}
	}
	return err
}

// checkM2MIntegrity verifies that a virtual m2m relation still has its
// junction table, both junction-side columns and the parent table. Any
// missing piece retires the whole m2m column.
func (d *Differ) checkM2MIntegrity(
	ctx context.Context,
	scope catalog.Scope,
	probe relationProbe,
	physTableSet map[string]bool,
	physColSet func(string) map[string]bool,
	ensure func(string, string) *TableDiff,
) error {
	rel := probe.column.Relation
	emit := func(reason string) {
		td := ensure(probe.table.TableName, probe.table.ID)
		td.Changes = append(td.Changes, Change{
			Kind:      ChangeVirtualM2MRemove,
			TableName: probe.table.TableName,
			ColumnID:  probe.column.ID,
			Message:   fmt.Sprintf("many-to-many column %q: %s", probe.column.Title, reason),
		})
	}

	junction, err := d.store.GetTable(ctx, scope, rel.JunctionTableID)
	if errors.Is(err, catalog.ErrNotFound) {
		emit("junction table is gone")
		return nil
	}
	if err != nil {
		return err
	}
	if !physTableSet[junction.TableName] {
		emit(fmt.Sprintf("junction table %q is gone", junction.TableName))
		return nil
	}

	parentCol, err := d.store.GetColumn(ctx, scope, rel.ParentColumnID)
	if errors.Is(err, catalog.ErrNotFound) {
		emit("parent column is gone")
		return nil
	}
	if err != nil {
		return err
	}
	parentTable, err := d.store.GetTable(ctx, scope, parentCol.TableID)
	if errors.Is(err, catalog.ErrNotFound) {
		emit("parent table is gone")
		return nil
	}
	if err != nil {
		return err
	}
	if !physTableSet[parentTable.TableName] {
		emit(fmt.Sprintf("parent table %q is gone", parentTable.TableName))
		return nil
	}

	junctionCols := physColSet(junction.TableName)
	for _, junctionColID := range []string{rel.JunctionChildColumnID, rel.JunctionParentColumnID} {
		col, err := d.store.GetColumn(ctx, scope, junctionColID)
		if errors.Is(err, catalog.ErrNotFound) {
			emit("junction column is gone")
			return nil
		}
		if err != nil {
			return err
		}
		if junctionCols == nil || !junctionCols[col.ColumnName] {
			emit(fmt.Sprintf("junction column %q is gone", col.ColumnName))
			return nil
		}
	}
	return nil
}
