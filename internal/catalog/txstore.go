package catalog

import (
	"context"
	"sync"
)

type txRecorder struct {
	mu      sync.Mutex
	touched map[string]struct{}
}

func (r *txRecorder) touch(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touched == nil {
		r.touched = make(map[string]struct{})
	}
	for _, key := range keys {
		r.touched[key] = struct{}{}
	}
}

// txStore is the Store handed to InTx callbacks of a CachedStore. Reads
// bypass the cache entirely (the transaction may see uncommitted rows) and
// every mutation records the cache keys to drop after commit.
type txStore struct {
	store    Store
	recorder *txRecorder
}

func (t *txStore) GetTable(ctx context.Context, scope Scope, id string) (*Table, error) {
	return t.store.GetTable(ctx, scope, id)
}

func (t *txStore) GetTableByName(ctx context.Context, scope Scope, tableName string) (*Table, error) {
	return t.store.GetTableByName(ctx, scope, tableName)
}

func (t *txStore) ListTables(ctx context.Context, scope Scope) ([]*Table, error) {
	return t.store.ListTables(ctx, scope)
}

func (t *txStore) InsertTable(ctx context.Context, scope Scope, table *Table) error {
	if err := t.store.InsertTable(ctx, scope, table); err != nil {
		return err
	}
	t.recorder.touch(TableListKey(scope), TableKey(table.ID), TableAliasKey(scope, table.TableName))
	return nil
}

func (t *txStore) UpdateTable(ctx context.Context, scope Scope, table *Table) error {
	if err := t.store.UpdateTable(ctx, scope, table); err != nil {
		return err
	}
	t.recorder.touch(TableListKey(scope), TableKey(table.ID), TableAliasKey(scope, table.TableName))
	return nil
}

func (t *txStore) DeleteTable(ctx context.Context, scope Scope, id string) error {
	if table, err := t.store.GetTable(ctx, scope, id); err == nil {
		t.recorder.touch(TableAliasKey(scope, table.TableName))
	}
	if err := t.store.DeleteTable(ctx, scope, id); err != nil {
		return err
	}
	t.recorder.touch(TableListKey(scope), TableKey(id), ColumnListKey(id), ViewListKey(id))
	return nil
}

func (t *txStore) GetColumn(ctx context.Context, scope Scope, id string) (*Column, error) {
	return t.store.GetColumn(ctx, scope, id)
}

func (t *txStore) ListColumns(ctx context.Context, scope Scope, tableID string) ([]*Column, error) {
	return t.store.ListColumns(ctx, scope, tableID)
}

func (t *txStore) InsertColumn(ctx context.Context, scope Scope, column *Column) error {
	if err := t.store.InsertColumn(ctx, scope, column); err != nil {
		return err
	}
	t.recorder.touch(ColumnListKey(column.TableID), ColumnKey(column.ID))
	return nil
}

func (t *txStore) UpdateColumn(ctx context.Context, scope Scope, column *Column) error {
	if err := t.store.UpdateColumn(ctx, scope, column); err != nil {
		return err
	}
	t.recorder.touch(ColumnListKey(column.TableID), ColumnKey(column.ID))
	return nil
}

func (t *txStore) DeleteColumn(ctx context.Context, scope Scope, id string) error {
	if column, err := t.store.GetColumn(ctx, scope, id); err == nil {
		t.recorder.touch(ColumnListKey(column.TableID))
	}
	if err := t.store.DeleteColumn(ctx, scope, id); err != nil {
		return err
	}
	t.recorder.touch(ColumnKey(id))
	return nil
}

func (t *txStore) ListViews(ctx context.Context, scope Scope, tableID string) ([]*View, error) {
	return t.store.ListViews(ctx, scope, tableID)
}

func (t *txStore) InsertView(ctx context.Context, scope Scope, view *View) error {
	if err := t.store.InsertView(ctx, scope, view); err != nil {
		return err
	}
	t.recorder.touch(ViewListKey(view.TableID))
	return nil
}

func (t *txStore) DeleteView(ctx context.Context, scope Scope, id string) error {
	if err := t.store.DeleteView(ctx, scope, id); err != nil {
		return err
	}
	t.recorder.touch(ViewColumnListKey(id))
	return nil
}

func (t *txStore) ListViewColumns(ctx context.Context, scope Scope, viewID string) ([]*ViewColumn, error) {
	return t.store.ListViewColumns(ctx, scope, viewID)
}

func (t *txStore) InsertViewColumn(ctx context.Context, scope Scope, viewColumn *ViewColumn) error {
	if err := t.store.InsertViewColumn(ctx, scope, viewColumn); err != nil {
		return err
	}
	t.recorder.touch(ViewColumnListKey(viewColumn.ViewID))
	return nil
}

func (t *txStore) DeleteViewColumn(ctx context.Context, scope Scope, id string) error {
	return t.store.DeleteViewColumn(ctx, scope, id)
}

func (t *txStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return t.store.InTx(ctx, func(tx Store) error {
		return fn(&txStore{store: tx, recorder: t.recorder})
	})
}
