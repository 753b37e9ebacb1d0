package introspect

import "context"

// TableInfo is one physical table as reported by the live database.
type TableInfo struct {
	Name string
}

// ViewInfo is one physical view.
type ViewInfo struct {
	Name string
}

// ColumnInfo carries the physical shape of a column. Required mirrors
// NOT NULL; TypeParams holds enum/set labels for engines that have them.
type ColumnInfo struct {
	Name          string
	DataType      string
	TypeParams    []string
	Length        *int
	Precision     *int
	Default       *string
	PK            bool
	Required      bool
	Unique        bool
	AutoIncrement bool
}

// RelationInfo is one physical foreign key, always expressed from the
// child (referencing) side.
type RelationInfo struct {
	ConstraintName string
	ChildTable     string
	ChildColumn    string
	ParentTable    string
	ParentColumn   string
}

// Introspector gives read-only access to a live database's structural
// metadata. Implementations make no ordering guarantees.
type Introspector interface {
	Tables(ctx context.Context, schema string) ([]TableInfo, error)
	Columns(ctx context.Context, tableName, schema string) ([]ColumnInfo, error)
	Views(ctx context.Context, schema string) ([]ViewInfo, error)
	Relations(ctx context.Context, schema string) ([]RelationInfo, error)
}
