package sync

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// errFieldNotFound is the user-visible marker placed on a formula whose
// input disappeared. The column survives so it can be repaired.
const errFieldNotFound = "Field not found"

// virtualHandler reacts to upstream column changes for one virtual kind.
type virtualHandler interface {
	// DependsOn reports whether col reads from the given column.
	DependsOn(col *catalog.Column, columnID string) bool
	// OnDependencyRemoved repairs or condemns col. It returns true when
	// col must be deleted, false when it was patched in place.
	OnDependencyRemoved(col *catalog.Column) (remove bool)
	// OnDependencyTypeChanged returns true when col was patched and needs
	// an update write.
	OnDependencyTypeChanged(col *catalog.Column) (update bool)
}

type formulaHandler struct{}

func (formulaHandler) DependsOn(col *catalog.Column, columnID string) bool {
	if col.Formula == nil {
		return false
	}
	return col.Formula.Parsed.References(columnID)
}

func (formulaHandler) OnDependencyRemoved(col *catalog.Column) bool {
	msg := errFieldNotFound
	col.Error = &msg
	col.Formula.Parsed = nil
	return false
}

func (formulaHandler) OnDependencyTypeChanged(col *catalog.Column) bool {
	// Force a re-parse so the expression is checked against the new type.
	if col.Formula.Parsed == nil {
		return false
	}
	col.Formula.Parsed = nil
	return true
}

type lookupHandler struct{}

func (lookupHandler) DependsOn(col *catalog.Column, columnID string) bool {
	if col.Lookup == nil {
		return false
	}
	return col.Lookup.RelationColumnID == columnID || col.Lookup.TargetColumnID == columnID
}

func (lookupHandler) OnDependencyRemoved(*catalog.Column) bool { return true }

func (lookupHandler) OnDependencyTypeChanged(*catalog.Column) bool { return false }

type rollupHandler struct{}

func (rollupHandler) DependsOn(col *catalog.Column, columnID string) bool {
	if col.Rollup == nil {
		return false
	}
	return col.Rollup.RelationColumnID == columnID || col.Rollup.TargetColumnID == columnID
}

func (rollupHandler) OnDependencyRemoved(*catalog.Column) bool { return true }

func (rollupHandler) OnDependencyTypeChanged(*catalog.Column) bool { return false }

// Button columns carry the same expression options as formulas and fail
// the same way.
var virtualHandlers = map[catalog.UIType]virtualHandler{
	catalog.UITypeFormula: formulaHandler{},
	catalog.UITypeButton:  formulaHandler{},
	catalog.UITypeLookup:  lookupHandler{},
	catalog.UITypeRollup:  rollupHandler{},
}

// Invalidator propagates the loss or reshape of a column through every
// derived column in the source. Lookups and rollups are torn down, formulas
// are kept but flagged. Removals cascade: a deleted lookup takes its own
// dependents with it.
type Invalidator struct {
	store catalog.Store
	log   *logger.Logger
}

func NewInvalidator(store catalog.Store, log *logger.Logger) *Invalidator {
	return &Invalidator{store: store, log: log}
}

// ColumnRemoved invalidates everything in scope that depended on the
// removed column. Callers delete the column itself; this only handles the
// fallout.
func (iv *Invalidator) ColumnRemoved(ctx context.Context, scope catalog.Scope, columnID string) error {
	return iv.columnRemoved(ctx, scope, columnID, map[string]bool{columnID: true})
}

func (iv *Invalidator) columnRemoved(ctx context.Context, scope catalog.Scope, columnID string, seen map[string]bool) error {
	if err := iv.dropViewColumns(ctx, scope, columnID); err != nil {
		return err
	}
	cols, err := iv.allColumns(ctx, scope)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if seen[col.ID] {
			continue
		}
		handler, ok := virtualHandlers[col.UIType]
		if !ok || !handler.DependsOn(col, columnID) {
			continue
		}
		if handler.OnDependencyRemoved(col) {
			iv.log.Infof("Removing derived column %q, its input is gone", col.Title)
			if err := iv.store.DeleteColumn(ctx, scope, col.ID); err != nil {
				return fmt.Errorf("failed to delete derived column %s: %w", col.ID, err)
			}
			seen[col.ID] = true
			if err := iv.columnRemoved(ctx, scope, col.ID, seen); err != nil {
				return err
			}
			continue
		}
		iv.log.Infof("Flagging column %q, its input is gone", col.Title)
		if err := iv.store.UpdateColumn(ctx, scope, col); err != nil {
			return fmt.Errorf("failed to flag derived column %s: %w", col.ID, err)
		}
	}
	return nil
}

// ColumnTypeChanged tells dependents the column's type moved underneath
// them. Only formulas care; they drop the cached parse.
func (iv *Invalidator) ColumnTypeChanged(ctx context.Context, scope catalog.Scope, columnID string) error {
	cols, err := iv.allColumns(ctx, scope)
	if err != nil {
		return err
	}
	for _, col := range cols {
		handler, ok := virtualHandlers[col.UIType]
		if !ok || !handler.DependsOn(col, columnID) {
			continue
		}
		if !handler.OnDependencyTypeChanged(col) {
			continue
		}
		if err := iv.store.UpdateColumn(ctx, scope, col); err != nil {
			return fmt.Errorf("failed to update derived column %s: %w", col.ID, err)
		}
	}
	return nil
}

// dropViewColumns removes every view projection of a column that is going
// away.
func (iv *Invalidator) dropViewColumns(ctx context.Context, scope catalog.Scope, columnID string) error {
	tables, err := iv.store.ListTables(ctx, scope)
	if err != nil {
		return err
	}
	for _, table := range tables {
		views, err := iv.store.ListViews(ctx, scope, table.ID)
		if err != nil {
			return err
		}
		for _, view := range views {
			viewCols, err := iv.store.ListViewColumns(ctx, scope, view.ID)
			if err != nil {
				return err
			}
			for _, vc := range viewCols {
				if vc.ColumnID != columnID {
					continue
				}
				if err := iv.store.DeleteViewColumn(ctx, scope, vc.ID); err != nil {
					return fmt.Errorf("failed to delete view column %s: %w", vc.ID, err)
				}
			}
		}
	}
	return nil
}

func (iv *Invalidator) allColumns(ctx context.Context, scope catalog.Scope) ([]*catalog.Column, error) {
	tables, err := iv.store.ListTables(ctx, scope)
	if err != nil {
		return nil, err
	}
	var cols []*catalog.Column
	for _, table := range tables {
		tableCols, err := iv.store.ListColumns(ctx, scope, table.ID)
		if err != nil {
			return nil, err
		}
		cols = append(cols, tableCols...)
	}
	return cols, nil
}
