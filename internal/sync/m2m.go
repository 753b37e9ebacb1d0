package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// maxJunctionColumns caps how wide a table can be and still read as pure
// join plumbing.
const maxJunctionColumns = 5

// M2MDeriver scans the catalog for junction tables and surfaces them as
// many-to-many Links columns on both endpoint tables. The pass is
// idempotent: reruns match existing Links by their junction triple.
type M2MDeriver struct {
	store catalog.Store
	log   *logger.Logger
}

func NewM2MDeriver(store catalog.Store, log *logger.Logger) *M2MDeriver {
	return &M2MDeriver{store: store, log: log}
}

// junctionSide is one leg of a qualified junction: the bt Links column in
// the junction plus the resolved endpoint.
type junctionSide struct {
	fkColumnID  string // junction's raw FK scalar
	parentTable *catalog.Table
	parentPK    *catalog.Column
}

func (m *M2MDeriver) Derive(ctx context.Context, scope catalog.Scope) error {
	tables, err := m.store.ListTables(ctx, scope)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if table.Type != catalog.TypeTable {
			continue
		}
		sides, err := m.qualify(ctx, scope, table)
		if err != nil {
			return err
		}
		if sides[0] == nil || sides[1] == nil {
			if table.MM {
				table.MM = false
				if err := m.store.UpdateTable(ctx, scope, table); err != nil {
					return err
				}
				m.log.Infof("Table %q no longer qualifies as a junction", table.TableName)
			}
			continue
		}
		if !table.MM {
			table.MM = true
			if err := m.store.UpdateTable(ctx, scope, table); err != nil {
				return err
			}
			m.log.Infof("Table %q qualifies as a junction", table.TableName)
		}
		if err := m.link(ctx, scope, table, sides[0], sides[1]); err != nil {
			return err
		}
		if err := m.link(ctx, scope, table, sides[1], sides[0]); err != nil {
			return err
		}
		if err := m.hideReciprocalLinks(ctx, scope, sides); err != nil {
			return err
		}
	}
	return nil
}

// qualify returns the two resolved junction legs when the table is pure
// join plumbing: exactly two belongs-to relations, fewer than five
// physical columns, and a primary key made of exactly the two FK scalars.
func (m *M2MDeriver) qualify(ctx context.Context, scope catalog.Scope, table *catalog.Table) ([2]*junctionSide, error) {
	var none [2]*junctionSide
	cols, err := m.store.ListColumns(ctx, scope, table.ID)
	if err != nil {
		return none, err
	}

	var bt []*catalog.Column
	physical := 0
	pkIDs := make(map[string]bool)
	for _, col := range cols {
		if !col.UIType.IsVirtual() {
			physical++
			if col.PK {
				pkIDs[col.ID] = true
			}
			continue
		}
		if col.UIType == catalog.UITypeLinks && col.Relation != nil &&
			col.Relation.Type == catalog.RelationBelongsTo {
			bt = append(bt, col)
		}
	}
	if len(bt) != 2 || physical >= maxJunctionColumns {
		return none, nil
	}
	if len(pkIDs) != 2 ||
		!pkIDs[bt[0].Relation.ChildColumnID] || !pkIDs[bt[1].Relation.ChildColumnID] {
		return none, nil
	}

	var sides [2]*junctionSide
	for i, col := range bt {
		side, err := m.resolveSide(ctx, scope, col)
		if err != nil {
			return none, err
		}
		if side == nil {
			return none, nil
		}
		sides[i] = side
	}
	return sides, nil
}

func (m *M2MDeriver) resolveSide(ctx context.Context, scope catalog.Scope, btCol *catalog.Column) (*junctionSide, error) {
	parentPK, err := m.store.GetColumn(ctx, scope, btCol.Relation.ParentColumnID)
	if err != nil {
		return nil, fmt.Errorf("junction relation %s: %w", btCol.ID, err)
	}
	parentTable, err := m.store.GetTable(ctx, scope, parentPK.TableID)
	if err != nil {
		return nil, fmt.Errorf("junction relation %s: %w", btCol.ID, err)
	}
	return &junctionSide{
		fkColumnID:  btCol.Relation.ChildColumnID,
		parentTable: parentTable,
		parentPK:    parentPK,
	}, nil
}

// link puts an mm Links column on from's endpoint pointing at to's
// endpoint, unless one for this junction triple already exists.
func (m *M2MDeriver) link(ctx context.Context, scope catalog.Scope, junction *catalog.Table, from, to *junctionSide) error {
	cols, err := m.store.ListColumns(ctx, scope, from.parentTable.ID)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if col.UIType != catalog.UITypeLinks || col.Relation == nil {
			continue
		}
		rel := col.Relation
		if rel.Type == catalog.RelationManyToMany &&
			rel.JunctionTableID == junction.ID &&
			rel.JunctionChildColumnID == from.fkColumnID &&
			rel.JunctionParentColumnID == to.fkColumnID {
			return nil
		}
	}

	title, err := uniqueTitle(pluralTitle(to.parentTable.Title), cols)
	if err != nil {
		return err
	}
	links := &catalog.Column{
		ID:      uuid.NewString(),
		TableID: from.parentTable.ID,
		Title:   title,
		UIType:  catalog.UITypeLinks,
		Order:   nextOrder(cols),
		Relation: &catalog.RelationOptions{
			Type:                   catalog.RelationManyToMany,
			ChildColumnID:          from.parentPK.ID,
			ParentColumnID:         to.parentPK.ID,
			JunctionTableID:        junction.ID,
			JunctionChildColumnID:  from.fkColumnID,
			JunctionParentColumnID: to.fkColumnID,
		},
	}
	if err := m.store.InsertColumn(ctx, scope, links); err != nil {
		return err
	}
	m.log.Infof("Linked %s <-> %s through %s (%s)",
		from.parentTable.TableName, to.parentTable.TableName, junction.TableName, title)
	return nil
}

// hideReciprocalLinks tags the endpoints' has-many columns into the
// junction as system so the mm Links are the visible handle.
func (m *M2MDeriver) hideReciprocalLinks(ctx context.Context, scope catalog.Scope, sides [2]*junctionSide) error {
	fkIDs := map[string]bool{
		sides[0].fkColumnID: true,
		sides[1].fkColumnID: true,
	}
	for _, side := range sides {
		cols, err := m.store.ListColumns(ctx, scope, side.parentTable.ID)
		if err != nil {
			return err
		}
		for _, col := range cols {
			if col.UIType != catalog.UITypeLinks || col.Relation == nil ||
				col.Relation.Type != catalog.RelationHasMany {
				continue
			}
			if !fkIDs[col.Relation.ChildColumnID] || col.System {
				continue
			}
			col.System = true
			if err := m.store.UpdateColumn(ctx, scope, col); err != nil {
				return err
			}
		}
	}
	return nil
}
