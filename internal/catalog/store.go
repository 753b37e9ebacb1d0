package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity does not exist in the store.
var ErrNotFound = errors.New("catalog: not found")

// Store is the persistence boundary for catalog entities. Every call is
// scoped by the tenancy context; implementations must be safe to use from
// a single reconciliation run at a time.
type Store interface {
	GetTable(ctx context.Context, scope Scope, id string) (*Table, error)
	GetTableByName(ctx context.Context, scope Scope, tableName string) (*Table, error)
	ListTables(ctx context.Context, scope Scope) ([]*Table, error)
	InsertTable(ctx context.Context, scope Scope, table *Table) error
	UpdateTable(ctx context.Context, scope Scope, table *Table) error
	DeleteTable(ctx context.Context, scope Scope, id string) error

	GetColumn(ctx context.Context, scope Scope, id string) (*Column, error)
	ListColumns(ctx context.Context, scope Scope, tableID string) ([]*Column, error)
	InsertColumn(ctx context.Context, scope Scope, column *Column) error
	UpdateColumn(ctx context.Context, scope Scope, column *Column) error
	DeleteColumn(ctx context.Context, scope Scope, id string) error

	ListViews(ctx context.Context, scope Scope, tableID string) ([]*View, error)
	InsertView(ctx context.Context, scope Scope, view *View) error
	DeleteView(ctx context.Context, scope Scope, id string) error

	ListViewColumns(ctx context.Context, scope Scope, viewID string) ([]*ViewColumn, error)
	InsertViewColumn(ctx context.Context, scope Scope, viewColumn *ViewColumn) error
	DeleteViewColumn(ctx context.Context, scope Scope, id string) error

	// InTx runs fn against a transactional view of the store. Everything
	// fn does is committed together or rolled back together.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
