package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
)

func TestApplyShopSchema(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	customers := mustTable(t, store, scope, "customers")
	orders := mustTable(t, store, scope, "orders")
	require.Equal(t, catalog.TypeTable, customers.Type)

	customerCols := tableColumns(t, store, scope, customers.ID)
	orderCols := tableColumns(t, store, scope, orders.ID)

	name := findColumn(customerCols, "name")
	require.NotNil(t, name)
	require.True(t, name.PV)
	require.Equal(t, catalog.UITypeLongText, name.UIType)

	// The raw FK scalar is hidden behind the belongs-to Links column.
	fkScalar := findByName(orderCols, "customer_id")
	require.NotNil(t, fkScalar)
	require.True(t, fkScalar.System)

	bt := findColumn(orderCols, "customer")
	require.NotNil(t, bt)
	require.Equal(t, catalog.UITypeLinks, bt.UIType)
	require.Equal(t, catalog.RelationBelongsTo, bt.Relation.Type)
	require.Equal(t, fkScalar.ID, bt.Relation.ChildColumnID)

	hm := findColumn(customerCols, "orders")
	require.NotNil(t, hm)
	require.Equal(t, catalog.RelationHasMany, hm.Relation.Type)
	require.Equal(t, fkScalar.ID, hm.Relation.ChildColumnID)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	orders := mustTable(t, store, scope, "orders")
	orderCols := tableColumns(t, store, scope, orders.ID)

	links := 0
	for _, c := range orderCols {
		if c.UIType == catalog.UITypeLinks {
			links++
		}
	}
	require.Equal(t, 1, links)
}

func TestApplyTableRemovedCascades(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	fi.dropTable("orders")
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	_, err := store.GetTableByName(ctx, scope, "orders")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	customers := mustTable(t, store, scope, "customers")
	customerCols := tableColumns(t, store, scope, customers.ID)
	require.Nil(t, findColumn(customerCols, "orders"))
}

func TestApplyJunctionSchema(t *testing.T) {
	ctx := context.Background()
	fi := junctionSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	junction := mustTable(t, store, scope, "order_products")
	require.True(t, junction.MM)

	orders := mustTable(t, store, scope, "orders")
	products := mustTable(t, store, scope, "products")
	orderCols := tableColumns(t, store, scope, orders.ID)
	productCols := tableColumns(t, store, scope, products.ID)

	mmOnOrders := findColumn(orderCols, "products")
	require.NotNil(t, mmOnOrders)
	require.Equal(t, catalog.RelationManyToMany, mmOnOrders.Relation.Type)
	require.Equal(t, junction.ID, mmOnOrders.Relation.JunctionTableID)

	mmOnProducts := findColumn(productCols, "orders")
	require.NotNil(t, mmOnProducts)
	require.Equal(t, catalog.RelationManyToMany, mmOnProducts.Relation.Type)

	// Both mm columns walk the same junction, in opposite directions.
	require.Equal(t, mmOnOrders.Relation.JunctionChildColumnID, mmOnProducts.Relation.JunctionParentColumnID)
	require.Equal(t, mmOnOrders.Relation.JunctionParentColumnID, mmOnProducts.Relation.JunctionChildColumnID)

	// The has-many legs into the junction are demoted to system columns.
	for _, cols := range [][]*catalog.Column{orderCols, productCols} {
		for _, c := range cols {
			if c.UIType == catalog.UITypeLinks && c.Relation.Type == catalog.RelationHasMany {
				require.True(t, c.System)
			}
		}
	}
}

func TestApplyJunctionRerunAddsNothing(t *testing.T) {
	ctx := context.Background()
	fi := junctionSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	orders := mustTable(t, store, scope, "orders")
	orderCols := tableColumns(t, store, scope, orders.ID)

	mm := 0
	for _, c := range orderCols {
		if c.UIType == catalog.UITypeLinks && c.Relation.Type == catalog.RelationManyToMany {
			mm++
		}
	}
	require.Equal(t, 1, mm)
}

func TestApplyJunctionWidensAndDisqualifies(t *testing.T) {
	ctx := context.Background()
	fi := junctionSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	// The junction grows real payload columns and stops being plumbing.
	fi.columns["order_products"] = append(fi.columns["order_products"],
		col("quantity", "integer", false),
		col("unit_price", "numeric", false),
		col("discount", "numeric", false),
	)
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	junction := mustTable(t, store, scope, "order_products")
	require.False(t, junction.MM)
}

func TestApplyJunctionGoneRemovesM2MColumns(t *testing.T) {
	ctx := context.Background()
	fi := junctionSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	fi.dropTable("order_products")
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	orders := mustTable(t, store, scope, "orders")
	products := mustTable(t, store, scope, "products")
	for _, tableID := range []string{orders.ID, products.ID} {
		for _, c := range tableColumns(t, store, scope, tableID) {
			if c.UIType == catalog.UITypeLinks {
				require.NotEqual(t, catalog.RelationManyToMany, c.Relation.Type)
			}
		}
	}
}

func TestApplyTypeChangePreservesIdentity(t *testing.T) {
	ctx := context.Background()
	fi := shopSchema()
	store := catalog.NewMemStore()
	svc := newTestService(fi, store)
	scope := testScope()

	require.NoError(t, svc.ApplyDiff(ctx, scope))

	customers := mustTable(t, store, scope, "customers")
	before := findByName(tableColumns(t, store, scope, customers.ID), "name")
	require.NotNil(t, before)

	for i := range fi.columns["customers"] {
		if fi.columns["customers"][i].Name == "name" {
			fi.columns["customers"][i].DataType = "jsonb"
		}
	}
	require.NoError(t, svc.ApplyDiff(ctx, scope))

	after := findByName(tableColumns(t, store, scope, customers.ID), "name")
	require.NotNil(t, after)
	require.Equal(t, before.ID, after.ID)
	require.Equal(t, before.Title, after.Title)
	require.Equal(t, "jsonb", after.DataType)
	require.Equal(t, catalog.UITypeJSON, after.UIType)
}
