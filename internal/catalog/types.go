package catalog

// Scope is the tenancy context every store call is keyed by.
type Scope struct {
	WorkspaceID string
	BaseID      string
	SourceID    string
}

type TableType string

const (
	TypeTable TableType = "table"
	TypeView  TableType = "view"
)

// UIType is the tagged kind of a catalog column. Physical scalar kinds map
// straight onto a database type; virtual kinds have no physical shadow.
type UIType string

const (
	UITypeSingleLineText UIType = "SingleLineText"
	UITypeLongText       UIType = "LongText"
	UITypeNumber         UIType = "Number"
	UITypeDecimal        UIType = "Decimal"
	UITypeCheckbox       UIType = "Checkbox"
	UITypeDate           UIType = "Date"
	UITypeDateTime       UIType = "DateTime"
	UITypeTime           UIType = "Time"
	UITypeYear           UIType = "Year"
	UITypeJSON           UIType = "JSON"
	UITypeAttachment     UIType = "Attachment"
	UITypeSingleSelect   UIType = "SingleSelect"
	UITypeMultiSelect    UIType = "MultiSelect"

	UITypeLinks   UIType = "Links"
	UITypeLookup  UIType = "Lookup"
	UITypeRollup  UIType = "Rollup"
	UITypeFormula UIType = "Formula"
	UITypeButton  UIType = "Button"
	UITypeQrCode  UIType = "QrCode"
	UITypeBarcode UIType = "Barcode"
	UITypeAIText  UIType = "AIText"
)

// IsVirtual reports whether columns of this kind have no physical backing.
func (t UIType) IsVirtual() bool {
	switch t {
	case UITypeLinks, UITypeLookup, UITypeRollup, UITypeFormula,
		UITypeButton, UITypeQrCode, UITypeBarcode, UITypeAIText:
		return true
	}
	return false
}

type RelationType string

const (
	RelationBelongsTo  RelationType = "bt"
	RelationHasMany    RelationType = "hm"
	RelationOneToOne   RelationType = "oo"
	RelationManyToMany RelationType = "mm"
)

type Table struct {
	ID        string
	BaseID    string
	SourceID  string
	Title     string
	TableName string
	Type      TableType
	MM        bool
	Order     int
}

type Column struct {
	ID         string
	TableID    string
	ColumnName string
	Title      string
	UIType     UIType

	DataType   string
	TypeParams []string
	Length     *int
	Precision  *int

	PK            bool
	Required      bool
	Unique        bool
	AutoIncrement bool
	System        bool
	PV            bool
	Order         int

	// Error is a user-visible problem on a derived column ("Field not
	// found"); the column itself survives so users can repair it.
	Error *string

	Relation *RelationOptions
	Lookup   *LookupOptions
	Rollup   *RollupOptions
	Formula  *FormulaOptions
}

// RelationOptions is the colOptions payload of a Links column. The junction
// fields are only set for many-to-many relations.
type RelationOptions struct {
	Type           RelationType
	ChildColumnID  string
	ParentColumnID string

	JunctionTableID        string
	JunctionChildColumnID  string
	JunctionParentColumnID string
	Virtual                bool
}

type LookupOptions struct {
	RelationColumnID string
	TargetColumnID   string
}

type RollupOptions struct {
	RelationColumnID string
	TargetColumnID   string
	Function         string
}

// FormulaOptions caches the parsed expression tree so dependency scans do
// not re-parse. A cleared Parsed forces a re-parse on next evaluation.
type FormulaOptions struct {
	Formula string
	Parsed  *ExprNode
}

type ExprKind string

const (
	ExprCall    ExprKind = "call"
	ExprColumn  ExprKind = "column"
	ExprLiteral ExprKind = "literal"
	ExprBinary  ExprKind = "binary"
)

type ExprNode struct {
	Kind     ExprKind
	Value    string
	ColumnID string
	Children []*ExprNode
}

// ColumnIDs walks the tree and collects every referenced column id.
func (n *ExprNode) ColumnIDs() []string {
	if n == nil {
		return nil
	}
	var ids []string
	if n.Kind == ExprColumn && n.ColumnID != "" {
		ids = append(ids, n.ColumnID)
	}
	for _, child := range n.Children {
		ids = append(ids, child.ColumnIDs()...)
	}
	return ids
}

// References reports whether the tree mentions the given column id.
func (n *ExprNode) References(columnID string) bool {
	if n == nil {
		return false
	}
	if n.Kind == ExprColumn && n.ColumnID == columnID {
		return true
	}
	for _, child := range n.Children {
		if child.References(columnID) {
			return true
		}
	}
	return false
}

// View is a presentation-level projection over a table's columns.
type View struct {
	ID      string
	TableID string
	Title   string
}

type ViewColumn struct {
	ID       string
	ViewID   string
	ColumnID string
	Show     bool
	Order    int
}

func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func (c *Column) Clone() *Column {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TypeParams != nil {
		clone.TypeParams = append([]string(nil), c.TypeParams...)
	}
	clone.Length = cloneInt(c.Length)
	clone.Precision = cloneInt(c.Precision)
	clone.Error = cloneString(c.Error)
	if c.Relation != nil {
		rel := *c.Relation
		clone.Relation = &rel
	}
	if c.Lookup != nil {
		lk := *c.Lookup
		clone.Lookup = &lk
	}
	if c.Rollup != nil {
		ru := *c.Rollup
		clone.Rollup = &ru
	}
	if c.Formula != nil {
		f := *c.Formula
		f.Parsed = c.Formula.Parsed.clone()
		clone.Formula = &f
	}
	return &clone
}

func (n *ExprNode) clone() *ExprNode {
	if n == nil {
		return nil
	}
	clone := *n
	if n.Children != nil {
		clone.Children = make([]*ExprNode, len(n.Children))
		for i, child := range n.Children {
			clone.Children[i] = child.clone()
		}
	}
	return &clone
}

func (v *View) Clone() *View {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

func (vc *ViewColumn) Clone() *ViewColumn {
	if vc == nil {
		return nil
	}
	clone := *vc
	return &clone
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
