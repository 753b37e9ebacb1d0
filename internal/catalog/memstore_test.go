package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreScopeFiltering(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	s1 := Scope{BaseID: "b1", SourceID: "s1"}
	s2 := Scope{BaseID: "b1", SourceID: "s2"}

	require.NoError(t, store.InsertTable(ctx, s1, &Table{ID: "t1", BaseID: "b1", SourceID: "s1", TableName: "one"}))
	require.NoError(t, store.InsertTable(ctx, s2, &Table{ID: "t2", BaseID: "b1", SourceID: "s2", TableName: "one"}))

	tables, err := store.ListTables(ctx, s1)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "t1", tables[0].ID)

	got, err := store.GetTableByName(ctx, s2, "one")
	require.NoError(t, err)
	require.Equal(t, "t2", got.ID)

	_, err = store.GetTable(ctx, s1, "t2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreReturnsClones(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	scope := Scope{BaseID: "b1", SourceID: "s1"}

	require.NoError(t, store.InsertTable(ctx, scope, &Table{ID: "t1", BaseID: "b1", SourceID: "s1", TableName: "one"}))

	got, err := store.GetTable(ctx, scope, "t1")
	require.NoError(t, err)
	got.TableName = "mutated"

	again, err := store.GetTable(ctx, scope, "t1")
	require.NoError(t, err)
	require.Equal(t, "one", again.TableName)
}

func TestMemStoreColumnOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	scope := Scope{BaseID: "b1", SourceID: "s1"}

	require.NoError(t, store.InsertColumn(ctx, scope, &Column{ID: "c2", TableID: "t1", Title: "b", Order: 2}))
	require.NoError(t, store.InsertColumn(ctx, scope, &Column{ID: "c1", TableID: "t1", Title: "a", Order: 1}))

	cols, err := store.ListColumns(ctx, scope, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, []string{cols[0].ID, cols[1].ID})
}

func TestMemStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	scope := Scope{BaseID: "b1", SourceID: "s1"}

	require.NoError(t, store.InsertTable(ctx, scope, &Table{ID: "t1", BaseID: "b1", SourceID: "s1", TableName: "one"}))

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.InsertTable(ctx, scope, &Table{ID: "t2", BaseID: "b1", SourceID: "s1", TableName: "two"}); err != nil {
			return err
		}
		if err := tx.DeleteTable(ctx, scope, "t1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	tables, err := store.ListTables(ctx, scope)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, "t1", tables[0].ID)
}

func TestMemStoreInTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	scope := Scope{BaseID: "b1", SourceID: "s1"}

	err := store.InTx(ctx, func(tx Store) error {
		return tx.InsertTable(ctx, scope, &Table{ID: "t1", BaseID: "b1", SourceID: "s1", TableName: "one"})
	})
	require.NoError(t, err)

	_, err = store.GetTable(ctx, scope, "t1")
	require.NoError(t, err)
}
