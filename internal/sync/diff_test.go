package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
)

func TestDiffEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	svc := newTestService(fi, catalog.NewMemStore())

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	require.Equal(t, []ChangeKind{ChangeTableNew, ChangeRelationAdd}, kindsOf(diffs, "customers"))
	require.Equal(t, []ChangeKind{ChangeTableNew, ChangeRelationAdd}, kindsOf(diffs, "orders"))

	for _, td := range diffs {
		last := td.Changes[len(td.Changes)-1]
		switch td.TableName {
		case "customers":
			require.Equal(t, catalog.RelationHasMany, last.RelationType)
		case "orders":
			require.Equal(t, catalog.RelationBelongsTo, last.RelationType)
		}
	}
}

func TestDiffCleanAfterSync(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	svc := newTestService(fi, catalog.NewMemStore())

	require.NoError(t, svc.ApplyDiff(ctx, testScope()))

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestDiffColumnChanges(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	svc := newTestService(fi, catalog.NewMemStore())
	require.NoError(t, svc.ApplyDiff(ctx, testScope()))

	fi.columns["customers"] = append(fi.columns["customers"], col("email", "text", false))
	fi.dropColumn("orders", "total")
	for i := range fi.columns["customers"] {
		if fi.columns["customers"][i].Name == "name" {
			fi.columns["customers"][i].DataType = "varchar"
			fi.columns["customers"][i].Required = true
		}
	}

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)

	customers := kindsOf(diffs, "customers")
	require.Contains(t, customers, ChangeTableColumnAdd)
	require.Contains(t, customers, ChangeTableColumnType)
	// Type change wins over props for the same column.
	require.NotContains(t, customers, ChangeTableColumnProps)
	require.Equal(t, []ChangeKind{ChangeTableColumnRemove}, kindsOf(diffs, "orders"))
}

func TestDiffPropsOnly(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	svc := newTestService(fi, catalog.NewMemStore())
	require.NoError(t, svc.ApplyDiff(ctx, testScope()))

	for i := range fi.columns["orders"] {
		if fi.columns["orders"][i].Name == "total" {
			fi.columns["orders"][i].Required = true
		}
	}

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Equal(t, []ChangeKind{ChangeTableColumnProps}, kindsOf(diffs, "orders"))
}

func TestDiffTableRemoved(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	require.NoError(t, svc.ApplyDiff(ctx, testScope()))

	fi.dropTable("orders")

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)

	// The customers side loses its has-many link, the orders side goes away
	// with its belongs-to link first.
	require.Equal(t, []ChangeKind{ChangeRelationRemove}, kindsOf(diffs, "customers"))
	orders := kindsOf(diffs, "orders")
	require.Equal(t, []ChangeKind{ChangeRelationRemove, ChangeTableRemove}, orders)

	ordersTable := mustTable(t, store, testScope(), "orders")
	bt := findColumn(tableColumns(t, store, testScope(), ordersTable.ID), "customer")
	require.NotNil(t, bt)
	for _, td := range diffs {
		if td.TableName != "orders" {
			continue
		}
		require.Equal(t, bt.ID, td.Changes[0].ColumnID)
	}
}

func TestDiffRelationDroppedColumnKept(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	svc := newTestService(fi, catalog.NewMemStore())
	require.NoError(t, svc.ApplyDiff(ctx, testScope()))

	// FK constraint dropped, the scalar stays behind.
	fi.relations = nil

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Equal(t, []ChangeKind{ChangeRelationRemove}, kindsOf(diffs, "customers"))
	require.Equal(t, []ChangeKind{ChangeRelationRemove}, kindsOf(diffs, "orders"))
}

func TestDiffViews(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	fi.views = []introspect.ViewInfo{{Name: "active_customers"}}
	fi.columns["active_customers"] = []introspect.ColumnInfo{
		col("id", "integer", false),
		col("name", "text", false),
	}
	svc := newTestService(fi, catalog.NewMemStore())

	diffs, err := svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Equal(t, []ChangeKind{ChangeViewNew}, kindsOf(diffs, "active_customers"))

	require.NoError(t, svc.ApplyDiff(ctx, testScope()))

	fi.columns["active_customers"] = fi.columns["active_customers"][:1]
	diffs, err = svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Equal(t, []ChangeKind{ChangeViewColumnRemove}, kindsOf(diffs, "active_customers"))

	fi.views = nil
	delete(fi.columns, "active_customers")
	diffs, err = svc.ComputeDiff(ctx, testScope())
	require.NoError(t, err)
	require.Equal(t, []ChangeKind{ChangeViewRemove}, kindsOf(diffs, "active_customers"))
}
