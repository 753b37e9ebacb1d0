package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// Applier turns an ordered change list into catalog mutations. It expects
// to run against a transactional store so a failing change rolls back the
// whole source.
type Applier struct {
	store   catalog.Store
	insp    introspect.Introspector
	log     *logger.Logger
	inv     *Invalidator
	limiter *Limiter
	client  string
	schema  string
}

func NewApplier(store catalog.Store, insp introspect.Introspector, log *logger.Logger, limiter *Limiter, client, schema string) *Applier {
	return &Applier{
		store:   store,
		insp:    insp,
		log:     log,
		inv:     NewInvalidator(store, log),
		limiter: limiter,
		client:  client,
		schema:  schema,
	}
}

// Apply runs every table's changes in order, then materializes relation
// adds in a second pass once all endpoint tables carry their final column
// lists.
func (a *Applier) Apply(ctx context.Context, scope catalog.Scope, diffs []TableDiff) error {
	var relationAdds []Change

	for _, td := range diffs {
		for _, ch := range td.Changes {
			if ch.Kind == ChangeRelationAdd {
				relationAdds = append(relationAdds, ch)
				continue
			}
			if err := a.applyChange(ctx, scope, ch); err != nil {
				return fmt.Errorf("%s on %s: %w", ch.Kind, ch.TableName, err)
			}
		}
	}

	for _, ch := range relationAdds {
		if err := a.applyRelationAdd(ctx, scope, ch); err != nil {
			return fmt.Errorf("%s on %s: %w", ch.Kind, ch.TableName, err)
		}
	}
	return nil
}

func (a *Applier) applyChange(ctx context.Context, scope catalog.Scope, ch Change) error {
	switch ch.Kind {
	case ChangeTableNew:
		return a.applyTableNew(ctx, scope, ch, catalog.TypeTable)
	case ChangeViewNew:
		return a.applyTableNew(ctx, scope, ch, catalog.TypeView)
	case ChangeTableRemove, ChangeViewRemove:
		return a.applyTableRemove(ctx, scope, ch)
	case ChangeTableColumnAdd, ChangeViewColumnAdd:
		return a.applyColumnAdd(ctx, scope, ch)
	case ChangeTableColumnType, ChangeViewColumnType:
		return a.applyColumnType(ctx, scope, ch)
	case ChangeTableColumnProps:
		return a.applyColumnProps(ctx, scope, ch)
	case ChangeTableColumnRemove, ChangeViewColumnRemove:
		return a.applyColumnRemove(ctx, scope, ch)
	case ChangeRelationRemove, ChangeVirtualM2MRemove:
		return a.applyRelationRemove(ctx, scope, ch)
	default:
		a.log.Warnf("Skipping unknown change kind %q on %s", ch.Kind, ch.TableName)
		return nil
	}
}

func (a *Applier) applyTableNew(ctx context.Context, scope catalog.Scope, ch Change, tableType catalog.TableType) error {
	existing, err := a.store.ListTables(ctx, scope)
	if err != nil {
		return err
	}

	table := &catalog.Table{
		ID:        uuid.NewString(),
		BaseID:    scope.BaseID,
		SourceID:  scope.SourceID,
		Title:     ch.TableName,
		TableName: ch.TableName,
		Type:      tableType,
		Order:     len(existing) + 1,
	}
	if err := a.store.InsertTable(ctx, scope, table); err != nil {
		return err
	}

	physCols, err := a.insp.Columns(ctx, ch.TableName, a.schema)
	if err != nil {
		return err
	}

	cols := make([]*catalog.Column, 0, len(physCols))
	for i := range physCols {
		col, err := a.buildColumn(table.ID, &physCols[i], cols, len(cols)+1)
		if err != nil {
			return err
		}
		cols = append(cols, col)
	}
	markDisplayValue(cols)
	for _, col := range cols {
		if err := a.store.InsertColumn(ctx, scope, col); err != nil {
			return err
		}
	}
	a.log.Infof("Registered %s %q with %d columns", tableType, ch.TableName, len(cols))
	return nil
}

func (a *Applier) applyTableRemove(ctx context.Context, scope catalog.Scope, ch Change) error {
	table, err := a.store.GetTableByName(ctx, scope, ch.TableName)
	if err != nil {
		return err
	}
	cols, err := a.store.ListColumns(ctx, scope, table.ID)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if err := a.inv.ColumnRemoved(ctx, scope, col.ID); err != nil {
			return err
		}
		if err := a.store.DeleteColumn(ctx, scope, col.ID); err != nil {
			return err
		}
	}
	views, err := a.store.ListViews(ctx, scope, table.ID)
	if err != nil {
		return err
	}
	for _, view := range views {
		viewCols, err := a.store.ListViewColumns(ctx, scope, view.ID)
		if err != nil {
			return err
		}
		for _, vc := range viewCols {
			if err := a.store.DeleteViewColumn(ctx, scope, vc.ID); err != nil {
				return err
			}
		}
		if err := a.store.DeleteView(ctx, scope, view.ID); err != nil {
			return err
		}
	}
	if err := a.store.DeleteTable(ctx, scope, table.ID); err != nil {
		return err
	}
	a.log.Infof("Dropped %s %q from the catalog", table.Type, table.TableName)
	return nil
}

func (a *Applier) applyColumnAdd(ctx context.Context, scope catalog.Scope, ch Change) error {
	table, err := a.store.GetTableByName(ctx, scope, ch.TableName)
	if err != nil {
		return err
	}
	cols, err := a.store.ListColumns(ctx, scope, table.ID)
	if err != nil {
		return err
	}
	col, err := a.buildColumn(table.ID, ch.NewColumn, cols, nextOrder(cols))
	if err != nil {
		return err
	}
	return a.store.InsertColumn(ctx, scope, col)
}

func (a *Applier) applyColumnType(ctx context.Context, scope catalog.Scope, ch Change) error {
	col, err := a.store.GetColumn(ctx, scope, ch.ColumnID)
	if err != nil {
		return err
	}
	phys := ch.NewColumn
	col.UIType = uiTypeFor(phys)
	col.DataType = phys.DataType
	col.TypeParams = append([]string(nil), phys.TypeParams...)
	col.Length = phys.Length
	col.Precision = phys.Precision
	if err := a.store.UpdateColumn(ctx, scope, col); err != nil {
		return err
	}
	return a.inv.ColumnTypeChanged(ctx, scope, col.ID)
}

func (a *Applier) applyColumnProps(ctx context.Context, scope catalog.Scope, ch Change) error {
	col, err := a.store.GetColumn(ctx, scope, ch.ColumnID)
	if err != nil {
		return err
	}
	phys := ch.NewColumn
	col.PK = phys.PK
	col.Required = phys.Required
	col.Unique = phys.Unique
	col.AutoIncrement = phys.AutoIncrement
	return a.store.UpdateColumn(ctx, scope, col)
}

func (a *Applier) applyColumnRemove(ctx context.Context, scope catalog.Scope, ch Change) error {
	if err := a.inv.ColumnRemoved(ctx, scope, ch.ColumnID); err != nil {
		return err
	}
	return a.store.DeleteColumn(ctx, scope, ch.ColumnID)
}

// applyRelationRemove retires a Links column whose physical FK (or, for
// m2m, junction plumbing) is gone. Dependents cascade first.
func (a *Applier) applyRelationRemove(ctx context.Context, scope catalog.Scope, ch Change) error {
	if err := a.inv.ColumnRemoved(ctx, scope, ch.ColumnID); err != nil {
		return err
	}
	return a.store.DeleteColumn(ctx, scope, ch.ColumnID)
}

// applyRelationAdd materializes one direction of a physical FK as a Links
// column. It runs in the deferred pass, after every endpoint table exists.
func (a *Applier) applyRelationAdd(ctx context.Context, scope catalog.Scope, ch Change) error {
	rel := ch.Relation

	childTable, err := a.store.GetTableByName(ctx, scope, rel.ChildTable)
	if err != nil {
		return fmt.Errorf("child table %q: %w", rel.ChildTable, err)
	}
	parentTable, err := a.store.GetTableByName(ctx, scope, rel.ParentTable)
	if err != nil {
		return fmt.Errorf("parent table %q: %w", rel.ParentTable, err)
	}
	childCols, err := a.store.ListColumns(ctx, scope, childTable.ID)
	if err != nil {
		return err
	}
	parentCols, err := a.store.ListColumns(ctx, scope, parentTable.ID)
	if err != nil {
		return err
	}
	childCol := columnByName(childCols, rel.ChildColumn)
	if childCol == nil {
		return fmt.Errorf("child column %s.%s: %w", rel.ChildTable, rel.ChildColumn, catalog.ErrNotFound)
	}
	parentCol := columnByName(parentCols, rel.ParentColumn)
	if parentCol == nil {
		return fmt.Errorf("parent column %s.%s: %w", rel.ParentTable, rel.ParentColumn, catalog.ErrNotFound)
	}

	return a.limiter.Do(ctx, a.client, func() error {
		switch ch.RelationType {
		case catalog.RelationHasMany:
			title, err := uniqueTitle(pluralTitle(childTable.Title), parentCols)
			if err != nil {
				return err
			}
			links := &catalog.Column{
				ID:      uuid.NewString(),
				TableID: parentTable.ID,
				Title:   title,
				UIType:  catalog.UITypeLinks,
				Order:   nextOrder(parentCols),
				Relation: &catalog.RelationOptions{
					Type:           catalog.RelationHasMany,
					ChildColumnID:  childCol.ID,
					ParentColumnID: parentCol.ID,
				},
			}
			if err := a.store.InsertColumn(ctx, scope, links); err != nil {
				return err
			}
			a.log.Infof("Linked %s -> %s (%s)", parentTable.TableName, childTable.TableName, title)
			return nil
		default:
			title, err := uniqueTitle(singularTitle(parentTable.Title), childCols)
			if err != nil {
				return err
			}
			links := &catalog.Column{
				ID:      uuid.NewString(),
				TableID: childTable.ID,
				Title:   title,
				UIType:  catalog.UITypeLinks,
				Order:   nextOrder(childCols),
				Relation: &catalog.RelationOptions{
					Type:           ch.RelationType,
					ChildColumnID:  childCol.ID,
					ParentColumnID: parentCol.ID,
				},
			}
			if err := a.store.InsertColumn(ctx, scope, links); err != nil {
				return err
			}
			// The raw FK scalar moves behind the Links column.
			if !childCol.System {
				childCol.System = true
				if err := a.store.UpdateColumn(ctx, scope, childCol); err != nil {
					return err
				}
			}
			a.log.Infof("Linked %s -> %s (%s)", childTable.TableName, parentTable.TableName, title)
			return nil
		}
	})
}

// buildColumn maps a physical column onto a fresh catalog column with a
// collision-free title.
func (a *Applier) buildColumn(tableID string, phys *introspect.ColumnInfo, siblings []*catalog.Column, order int) (*catalog.Column, error) {
	title, err := uniqueTitle(phys.Name, siblings)
	if err != nil {
		return nil, err
	}
	return &catalog.Column{
		ID:            uuid.NewString(),
		TableID:       tableID,
		ColumnName:    phys.Name,
		Title:         title,
		UIType:        uiTypeFor(phys),
		DataType:      phys.DataType,
		TypeParams:    append([]string(nil), phys.TypeParams...),
		Length:        phys.Length,
		Precision:     phys.Precision,
		PK:            phys.PK,
		Required:      phys.Required,
		Unique:        phys.Unique,
		AutoIncrement: phys.AutoIncrement,
		Order:         order,
	}, nil
}

// markDisplayValue picks the column shown as a record's label: the first
// non-pk, non-system scalar, falling back to the first column.
func markDisplayValue(cols []*catalog.Column) {
	if len(cols) == 0 {
		return
	}
	for _, col := range cols {
		if !col.PK && !col.System && !col.UIType.IsVirtual() {
			col.PV = true
			return
		}
	}
	cols[0].PV = true
}

func columnByName(cols []*catalog.Column, name string) *catalog.Column {
	for _, col := range cols {
		if !col.UIType.IsVirtual() && col.ColumnName == name {
			return col
		}
	}
	return nil
}

func nextOrder(cols []*catalog.Column) int {
	max := 0
	for _, col := range cols {
		if col.Order > max {
			max = col.Order
		}
	}
	return max + 1
}
