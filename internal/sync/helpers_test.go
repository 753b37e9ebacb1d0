package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// fakeIntrospector serves a canned physical schema.
type fakeIntrospector struct {
	tables    []introspect.TableInfo
	views     []introspect.ViewInfo
	columns   map[string][]introspect.ColumnInfo
	relations []introspect.RelationInfo
}

func (f *fakeIntrospector) Tables(context.Context, string) ([]introspect.TableInfo, error) {
	return f.tables, nil
}

func (f *fakeIntrospector) Views(context.Context, string) ([]introspect.ViewInfo, error) {
	return f.views, nil
}

func (f *fakeIntrospector) Columns(_ context.Context, tableName, _ string) ([]introspect.ColumnInfo, error) {
	return f.columns[tableName], nil
}

func (f *fakeIntrospector) Relations(context.Context, string) ([]introspect.RelationInfo, error) {
	return f.relations, nil
}

func (f *fakeIntrospector) dropTable(name string) {
	var tables []introspect.TableInfo
	for _, t := range f.tables {
		if t.Name != name {
			tables = append(tables, t)
		}
	}
	f.tables = tables
	delete(f.columns, name)

	var rels []introspect.RelationInfo
	for _, r := range f.relations {
		if r.ChildTable != name && r.ParentTable != name {
			rels = append(rels, r)
		}
	}
	f.relations = rels
}

func (f *fakeIntrospector) dropColumn(tableName, columnName string) {
	var cols []introspect.ColumnInfo
	for _, c := range f.columns[tableName] {
		if c.Name != columnName {
			cols = append(cols, c)
		}
	}
	f.columns[tableName] = cols

	var rels []introspect.RelationInfo
	for _, r := range f.relations {
		if (r.ChildTable == tableName && r.ChildColumn == columnName) ||
			(r.ParentTable == tableName && r.ParentColumn == columnName) {
			continue
		}
		rels = append(rels, r)
	}
	f.relations = rels
}

func testScope() catalog.Scope {
	return catalog.Scope{WorkspaceID: "w1", BaseID: "b1", SourceID: "s1"}
}

func newTestService(fi *fakeIntrospector, store catalog.Store) *Service {
	return NewService(store, fi, logger.NewNop(), nil, nil, "postgres", "public")
}

func col(name, dataType string, pk bool) introspect.ColumnInfo {
	return introspect.ColumnInfo{
		Name:     name,
		DataType: dataType,
		PK:       pk,
		Required: pk,
	}
}

func fk(childTable, childColumn, parentTable, parentColumn string) introspect.RelationInfo {
	return introspect.RelationInfo{
		ConstraintName: childTable + "_" + childColumn + "_fkey",
		ChildTable:     childTable,
		ChildColumn:    childColumn,
		ParentTable:    parentTable,
		ParentColumn:   parentColumn,
	}
}

// shopSchema is Scenario A: orders reference customers through a plain FK.
func shopSchema() *fakeIntrospector {
	return &fakeIntrospector{
		tables: []introspect.TableInfo{{Name: "customers"}, {Name: "orders"}},
		columns: map[string][]introspect.ColumnInfo{
			"customers": {
				col("id", "integer", true),
				col("name", "text", false),
			},
			"orders": {
				col("id", "integer", true),
				col("customer_id", "integer", false),
				col("total", "numeric", false),
			},
		},
		relations: []introspect.RelationInfo{
			fk("orders", "customer_id", "customers", "id"),
		},
	}
}

// junctionSchema is Scenario B: order_products joins orders and products.
func junctionSchema() *fakeIntrospector {
	return &fakeIntrospector{
		tables: []introspect.TableInfo{
			{Name: "orders"}, {Name: "products"}, {Name: "order_products"},
		},
		columns: map[string][]introspect.ColumnInfo{
			"orders": {
				col("id", "integer", true),
				col("placed_at", "timestamp", false),
			},
			"products": {
				col("id", "integer", true),
				col("title", "text", false),
			},
			"order_products": {
				col("order_id", "integer", true),
				col("product_id", "integer", true),
			},
		},
		relations: []introspect.RelationInfo{
			fk("order_products", "order_id", "orders", "id"),
			fk("order_products", "product_id", "products", "id"),
		},
	}
}

func mustTable(t *testing.T, store catalog.Store, scope catalog.Scope, name string) *catalog.Table {
	t.Helper()
	table, err := store.GetTableByName(context.Background(), scope, name)
	require.NoError(t, err)
	return table
}

func tableColumns(t *testing.T, store catalog.Store, scope catalog.Scope, tableID string) []*catalog.Column {
	t.Helper()
	cols, err := store.ListColumns(context.Background(), scope, tableID)
	require.NoError(t, err)
	return cols
}

func findColumn(cols []*catalog.Column, title string) *catalog.Column {
	for _, c := range cols {
		if c.Title == title {
			return c
		}
	}
	return nil
}

func findByName(cols []*catalog.Column, columnName string) *catalog.Column {
	for _, c := range cols {
		if !c.UIType.IsVirtual() && c.ColumnName == columnName {
			return c
		}
	}
	return nil
}

func kindsOf(diffs []TableDiff, tableName string) []ChangeKind {
	for _, td := range diffs {
		if td.TableName != tableName {
			continue
		}
		kinds := make([]ChangeKind, 0, len(td.Changes))
		for _, ch := range td.Changes {
			kinds = append(kinds, ch.Kind)
		}
		return kinds
	}
	return nil
}
