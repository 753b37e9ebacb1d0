package catalog

import (
	"context"

	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// CachedStore decorates a Store with the MetaCache. Reads try the cache
// first and fall back to the store; writes go to the store and then fix up
// cache membership. Inside a transaction cache population is suspended and
// touched keys are invalidated after commit, so a rollback can never leave
// a phantom entry behind.
type CachedStore struct {
	store Store
	cache *MetaCache
	log   *logger.Logger
}

func NewCachedStore(store Store, cache *MetaCache, log *logger.Logger) *CachedStore {
	return &CachedStore{store: store, cache: cache, log: log}
}

func (c *CachedStore) GetTable(ctx context.Context, scope Scope, id string) (*Table, error) {
	if value, ok := c.cache.Get(TableKey(id)); ok {
		if table, ok := value.(*Table); ok {
			return table.Clone(), nil
		}
		c.warnInconsistency(TableKey(id))
	}
	table, err := c.store.GetTable(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(TableKey(id), table.Clone())
	return table, nil
}

func (c *CachedStore) GetTableByName(ctx context.Context, scope Scope, tableName string) (*Table, error) {
	if value, ok := c.cache.Get(TableAliasKey(scope, tableName)); ok {
		if id, ok := value.(string); ok {
			return c.GetTable(ctx, scope, id)
		}
		c.warnInconsistency(TableAliasKey(scope, tableName))
	}
	table, err := c.store.GetTableByName(ctx, scope, tableName)
	if err != nil {
		return nil, err
	}
	c.cache.Set(TableAliasKey(scope, tableName), table.ID)
	c.cache.Set(TableKey(table.ID), table.Clone())
	return table, nil
}

func (c *CachedStore) ListTables(ctx context.Context, scope Scope) ([]*Table, error) {
	if value, ok := c.cache.Get(TableListKey(scope)); ok {
		if tables, ok := value.([]*Table); ok {
			return cloneTables(tables), nil
		}
		c.warnInconsistency(TableListKey(scope))
	}
	tables, err := c.store.ListTables(ctx, scope)
	if err != nil {
		return nil, err
	}
	c.cache.Set(TableListKey(scope), cloneTables(tables))
	return tables, nil
}

func (c *CachedStore) InsertTable(ctx context.Context, scope Scope, table *Table) error {
	if err := c.store.InsertTable(ctx, scope, table); err != nil {
		return err
	}
	// Membership changed, the scope list is stale regardless of values.
	c.cache.Del(TableListKey(scope))
	c.cache.Set(TableKey(table.ID), table.Clone())
	c.cache.Set(TableAliasKey(scope, table.TableName), table.ID)
	c.cache.Link(TableListKey(scope), TableKey(table.ID))
	return nil
}

func (c *CachedStore) UpdateTable(ctx context.Context, scope Scope, table *Table) error {
	previous, err := c.store.GetTable(ctx, scope, table.ID)
	if err != nil {
		return err
	}
	if err := c.store.UpdateTable(ctx, scope, table); err != nil {
		return err
	}
	if previous.TableName != table.TableName {
		c.cache.Del(TableAliasKey(scope, previous.TableName))
	}
	c.cache.Set(TableKey(table.ID), table.Clone())
	c.cache.Set(TableAliasKey(scope, table.TableName), table.ID)
	c.cache.Del(TableListKey(scope))
	return nil
}

func (c *CachedStore) DeleteTable(ctx context.Context, scope Scope, id string) error {
	previous, err := c.store.GetTable(ctx, scope, id)
	if err == nil {
		c.cache.Del(TableAliasKey(scope, previous.TableName))
	}
	if err := c.store.DeleteTable(ctx, scope, id); err != nil {
		return err
	}
	c.cache.DeepDelete(TableKey(id), ChildToParent)
	c.cache.Del(TableListKey(scope))
	return nil
}

func (c *CachedStore) GetColumn(ctx context.Context, scope Scope, id string) (*Column, error) {
	if value, ok := c.cache.Get(ColumnKey(id)); ok {
		if column, ok := value.(*Column); ok {
			return column.Clone(), nil
		}
		c.warnInconsistency(ColumnKey(id))
	}
	column, err := c.store.GetColumn(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ColumnKey(id), column.Clone())
	return column, nil
}

func (c *CachedStore) ListColumns(ctx context.Context, scope Scope, tableID string) ([]*Column, error) {
	if value, ok := c.cache.Get(ColumnListKey(tableID)); ok {
		if columns, ok := value.([]*Column); ok {
			return cloneColumns(columns), nil
		}
		c.warnInconsistency(ColumnListKey(tableID))
	}
	columns, err := c.store.ListColumns(ctx, scope, tableID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ColumnListKey(tableID), cloneColumns(columns))
	c.cache.Link(TableKey(tableID), ColumnListKey(tableID))
	return columns, nil
}

func (c *CachedStore) InsertColumn(ctx context.Context, scope Scope, column *Column) error {
	if err := c.store.InsertColumn(ctx, scope, column); err != nil {
		return err
	}
	c.cache.Del(ColumnListKey(column.TableID))
	c.cache.Set(ColumnKey(column.ID), column.Clone())
	c.cache.Link(ColumnListKey(column.TableID), ColumnKey(column.ID))
	return nil
}

func (c *CachedStore) UpdateColumn(ctx context.Context, scope Scope, column *Column) error {
	if err := c.store.UpdateColumn(ctx, scope, column); err != nil {
		return err
	}
	c.cache.Set(ColumnKey(column.ID), column.Clone())
	// Value mutation only, but cached lists embed the values.
	c.cache.Del(ColumnListKey(column.TableID))
	return nil
}

func (c *CachedStore) DeleteColumn(ctx context.Context, scope Scope, id string) error {
	column, err := c.store.GetColumn(ctx, scope, id)
	if err := c.store.DeleteColumn(ctx, scope, id); err != nil {
		return err
	}
	c.cache.DeepDelete(ColumnKey(id), ChildToParent)
	if err == nil {
		c.cache.Del(ColumnListKey(column.TableID))
	}
	return nil
}

func (c *CachedStore) ListViews(ctx context.Context, scope Scope, tableID string) ([]*View, error) {
	if value, ok := c.cache.Get(ViewListKey(tableID)); ok {
		if views, ok := value.([]*View); ok {
			return cloneViews(views), nil
		}
		c.warnInconsistency(ViewListKey(tableID))
	}
	views, err := c.store.ListViews(ctx, scope, tableID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ViewListKey(tableID), cloneViews(views))
	c.cache.Link(TableKey(tableID), ViewListKey(tableID))
	return views, nil
}

func (c *CachedStore) InsertView(ctx context.Context, scope Scope, view *View) error {
	if err := c.store.InsertView(ctx, scope, view); err != nil {
		return err
	}
	c.cache.Del(ViewListKey(view.TableID))
	return nil
}

func (c *CachedStore) DeleteView(ctx context.Context, scope Scope, id string) error {
	if err := c.store.DeleteView(ctx, scope, id); err != nil {
		return err
	}
	c.cache.DeepDelete(ViewColumnListKey(id), ParentToChild)
	return nil
}

func (c *CachedStore) ListViewColumns(ctx context.Context, scope Scope, viewID string) ([]*ViewColumn, error) {
	return c.store.ListViewColumns(ctx, scope, viewID)
}

func (c *CachedStore) InsertViewColumn(ctx context.Context, scope Scope, viewColumn *ViewColumn) error {
	if err := c.store.InsertViewColumn(ctx, scope, viewColumn); err != nil {
		return err
	}
	c.cache.Del(ViewColumnListKey(viewColumn.ViewID))
	return nil
}

func (c *CachedStore) DeleteViewColumn(ctx context.Context, scope Scope, id string) error {
	return c.store.DeleteViewColumn(ctx, scope, id)
}

// InTx runs fn against an uncached transactional store that records every
// key it touches; the recorded keys are invalidated only after a
// successful commit.
func (c *CachedStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	recorder := &txRecorder{}
	err := c.store.InTx(ctx, func(tx Store) error {
		return fn(&txStore{store: tx, recorder: recorder})
	})
	if err != nil {
		return err
	}
	c.flushTouched(recorder)
	return nil
}

func (c *CachedStore) flushTouched(recorder *txRecorder) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for key := range recorder.touched {
		c.cache.Del(key)
	}
}

func (c *CachedStore) warnInconsistency(key string) {
	// Never fatal: the store stays authoritative.
	c.log.Warnf("cache inconsistency at %s, falling back to store", key)
	c.cache.Del(key)
}

func cloneTables(tables []*Table) []*Table {
	out := make([]*Table, len(tables))
	for i, t := range tables {
		out[i] = t.Clone()
	}
	return out
}

func cloneColumns(columns []*Column) []*Column {
	out := make([]*Column, len(columns))
	for i, col := range columns {
		out[i] = col.Clone()
	}
	return out
}

func cloneViews(views []*View) []*View {
	out := make([]*View, len(views))
	for i, v := range views {
		out[i] = v.Clone()
	}
	return out
}
