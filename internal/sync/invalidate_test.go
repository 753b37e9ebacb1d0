package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
)

// seedDerivedColumns puts a lookup over orders.total on customers, plus a
// formula reading the lookup and a formula reading total directly.
func seedDerivedColumns(t *testing.T, store catalog.Store, scope catalog.Scope) (lookupID, formulaOnLookupID, formulaOnTotalID string) {
	t.Helper()
	ctx := context.Background()

	customers := mustTable(t, store, scope, "customers")
	orders := mustTable(t, store, scope, "orders")
	customerCols := tableColumns(t, store, scope, customers.ID)
	orderCols := tableColumns(t, store, scope, orders.ID)

	hm := findColumn(customerCols, "orders")
	require.NotNil(t, hm)
	total := findByName(orderCols, "total")
	require.NotNil(t, total)

	lookup := &catalog.Column{
		ID:      "col-lookup",
		TableID: customers.ID,
		Title:   "Order Totals",
		UIType:  catalog.UITypeLookup,
		Lookup: &catalog.LookupOptions{
			RelationColumnID: hm.ID,
			TargetColumnID:   total.ID,
		},
	}
	require.NoError(t, store.InsertColumn(ctx, scope, lookup))

	formulaOnLookup := &catalog.Column{
		ID:      "col-formula-lookup",
		TableID: customers.ID,
		Title:   "Spend",
		UIType:  catalog.UITypeFormula,
		Formula: &catalog.FormulaOptions{
			Formula: "SUM({Order Totals})",
			Parsed: &catalog.ExprNode{
				Kind:  catalog.ExprCall,
				Value: "SUM",
				Children: []*catalog.ExprNode{
					{Kind: catalog.ExprColumn, ColumnID: lookup.ID},
				},
			},
		},
	}
	require.NoError(t, store.InsertColumn(ctx, scope, formulaOnLookup))

	formulaOnTotal := &catalog.Column{
		ID:      "col-formula-total",
		TableID: orders.ID,
		Title:   "Total With Tax",
		UIType:  catalog.UITypeFormula,
		Formula: &catalog.FormulaOptions{
			Formula: "{total} * 1.2",
			Parsed: &catalog.ExprNode{
				Kind:  catalog.ExprBinary,
				Value: "*",
				Children: []*catalog.ExprNode{
					{Kind: catalog.ExprColumn, ColumnID: total.ID},
					{Kind: catalog.ExprLiteral, Value: "1.2"},
				},
			},
		},
	}
	require.NoError(t, store.InsertColumn(ctx, scope, formulaOnTotal))

	return lookup.ID, formulaOnLookup.ID, formulaOnTotal.ID
}

func TestColumnRemovalInvalidatesDependents(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))
	lookupID, formulaOnLookupID, formulaOnTotalID := seedDerivedColumns(t, store, scope)

	fi.dropColumn("orders", "total")
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	// The lookup cascades away; both formulas survive, flagged.
	_, err := store.GetColumn(ctx, scope, lookupID)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	formulaOnTotal, err := store.GetColumn(ctx, scope, formulaOnTotalID)
	require.NoError(t, err)
	require.NotNil(t, formulaOnTotal.Error)
	require.Equal(t, "Field not found", *formulaOnTotal.Error)

	formulaOnLookup, err := store.GetColumn(ctx, scope, formulaOnLookupID)
	require.NoError(t, err)
	require.NotNil(t, formulaOnLookup.Error)
}

func TestRelationRemovalCascadesThroughLookup(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))
	lookupID, formulaOnLookupID, _ := seedDerivedColumns(t, store, scope)

	// FK constraint dropped; the scalar column stays.
	fi.relations = nil
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	customers := mustTable(t, store, scope, "customers")
	require.Nil(t, findColumn(tableColumns(t, store, scope, customers.ID), "orders"))

	_, err := store.GetColumn(ctx, scope, lookupID)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	formulaOnLookup, err := store.GetColumn(ctx, scope, formulaOnLookupID)
	require.NoError(t, err)
	require.NotNil(t, formulaOnLookup.Error)
}

func TestTypeChangeClearsFormulaParseCache(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))
	_, _, formulaOnTotalID := seedDerivedColumns(t, store, scope)

	for i := range fi.columns["orders"] {
		if fi.columns["orders"][i].Name == "total" {
			fi.columns["orders"][i].DataType = "integer"
		}
	}
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	formula, err := store.GetColumn(ctx, scope, formulaOnTotalID)
	require.NoError(t, err)
	require.Nil(t, formula.Error)
	require.Nil(t, formula.Formula.Parsed)
	require.NotEmpty(t, formula.Formula.Formula)
}

func TestColumnRemovalDropsViewColumns(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	orders := mustTable(t, store, scope, "orders")
	total := findByName(tableColumns(t, store, scope, orders.ID), "total")
	require.NotNil(t, total)

	view := &catalog.View{ID: "view-1", TableID: orders.ID, Title: "Grid"}
	require.NoError(t, store.InsertView(ctx, scope, view))
	require.NoError(t, store.InsertViewColumn(ctx, scope, &catalog.ViewColumn{
		ID: "vc-1", ViewID: view.ID, ColumnID: total.ID, Show: true, Order: 1,
	}))

	fi.dropColumn("orders", "total")
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	viewCols, err := store.ListViewColumns(ctx, scope, view.ID)
	require.NoError(t, err)
	require.Empty(t, viewCols)
}
