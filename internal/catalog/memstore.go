package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemStore is a map-backed Store. It exists so the reconciliation engine
// can be exercised without a live catalog database; InTx takes a snapshot
// and restores it on error, giving the same all-or-nothing contract as
// the SQL store.
type MemStore struct {
	mu          sync.Mutex
	tables      map[string]*Table
	columns     map[string]*Column
	views       map[string]*View
	viewColumns map[string]*ViewColumn
	inTx        bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		tables:      make(map[string]*Table),
		columns:     make(map[string]*Column),
		views:       make(map[string]*View),
		viewColumns: make(map[string]*ViewColumn),
	}
}

func (m *MemStore) GetTable(ctx context.Context, scope Scope, id string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tables[id]
	if !ok || !m.inScope(table, scope) {
		return nil, ErrNotFound
	}
	return table.Clone(), nil
}

func (m *MemStore) GetTableByName(ctx context.Context, scope Scope, tableName string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, table := range m.tables {
		if m.inScope(table, scope) && table.TableName == tableName {
			return table.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) ListTables(ctx context.Context, scope Scope) ([]*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tables []*Table
	for _, table := range m.tables {
		if m.inScope(table, scope) {
			tables = append(tables, table.Clone())
		}
	}
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Order != tables[j].Order {
			return tables[i].Order < tables[j].Order
		}
		return tables[i].TableName < tables[j].TableName
	})
	return tables, nil
}

func (m *MemStore) InsertTable(ctx context.Context, scope Scope, table *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table.ID] = table.Clone()
	return nil
}

func (m *MemStore) UpdateTable(ctx context.Context, scope Scope, table *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table.ID]; !ok {
		return ErrNotFound
	}
	m.tables[table.ID] = table.Clone()
	return nil
}

func (m *MemStore) DeleteTable(ctx context.Context, scope Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[id]; !ok {
		return ErrNotFound
	}
	delete(m.tables, id)
	return nil
}

func (m *MemStore) GetColumn(ctx context.Context, scope Scope, id string) (*Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	column, ok := m.columns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return column.Clone(), nil
}

func (m *MemStore) ListColumns(ctx context.Context, scope Scope, tableID string) ([]*Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var columns []*Column
	for _, column := range m.columns {
		if column.TableID == tableID {
			columns = append(columns, column.Clone())
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i].Order != columns[j].Order {
			return columns[i].Order < columns[j].Order
		}
		return columns[i].Title < columns[j].Title
	})
	return columns, nil
}

func (m *MemStore) InsertColumn(ctx context.Context, scope Scope, column *Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.columns[column.ID] = column.Clone()
	return nil
}

func (m *MemStore) UpdateColumn(ctx context.Context, scope Scope, column *Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.columns[column.ID]; !ok {
		return ErrNotFound
	}
	m.columns[column.ID] = column.Clone()
	return nil
}

func (m *MemStore) DeleteColumn(ctx context.Context, scope Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.columns[id]; !ok {
		return ErrNotFound
	}
	delete(m.columns, id)
	return nil
}

func (m *MemStore) ListViews(ctx context.Context, scope Scope, tableID string) ([]*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var views []*View
	for _, view := range m.views {
		if view.TableID == tableID {
			views = append(views, view.Clone())
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Title < views[j].Title })
	return views, nil
}

func (m *MemStore) InsertView(ctx context.Context, scope Scope, view *View) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.views[view.ID] = view.Clone()
	return nil
}

func (m *MemStore) DeleteView(ctx context.Context, scope Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.views[id]; !ok {
		return ErrNotFound
	}
	delete(m.views, id)
	return nil
}

func (m *MemStore) ListViewColumns(ctx context.Context, scope Scope, viewID string) ([]*ViewColumn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var viewColumns []*ViewColumn
	for _, vc := range m.viewColumns {
		if vc.ViewID == viewID {
			viewColumns = append(viewColumns, vc.Clone())
		}
	}
	sort.Slice(viewColumns, func(i, j int) bool { return viewColumns[i].Order < viewColumns[j].Order })
	return viewColumns, nil
}

func (m *MemStore) InsertViewColumn(ctx context.Context, scope Scope, viewColumn *ViewColumn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viewColumns[viewColumn.ID] = viewColumn.Clone()
	return nil
}

func (m *MemStore) DeleteViewColumn(ctx context.Context, scope Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.viewColumns[id]; !ok {
		return ErrNotFound
	}
	delete(m.viewColumns, id)
	return nil
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	snapshot := m.snapshot()
	m.inTx = true
	m.mu.Unlock()

	err := fn(m)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTx = false
	if err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	tables      map[string]*Table
	columns     map[string]*Column
	views       map[string]*View
	viewColumns map[string]*ViewColumn
}

func (m *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		tables:      make(map[string]*Table, len(m.tables)),
		columns:     make(map[string]*Column, len(m.columns)),
		views:       make(map[string]*View, len(m.views)),
		viewColumns: make(map[string]*ViewColumn, len(m.viewColumns)),
	}
	for id, table := range m.tables {
		snap.tables[id] = table.Clone()
	}
	for id, column := range m.columns {
		snap.columns[id] = column.Clone()
	}
	for id, view := range m.views {
		snap.views[id] = view.Clone()
	}
	for id, vc := range m.viewColumns {
		snap.viewColumns[id] = vc.Clone()
	}
	return snap
}

func (m *MemStore) restore(snap memSnapshot) {
	m.tables = snap.tables
	m.columns = snap.columns
	m.views = snap.views
	m.viewColumns = snap.viewColumns
}

func (m *MemStore) inScope(table *Table, scope Scope) bool {
	if scope.BaseID != "" && table.BaseID != scope.BaseID {
		return false
	}
	if scope.SourceID != "" && table.SourceID != scope.SourceID {
		return false
	}
	return true
}
