package sync

import (
	"sort"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
)

type ChangeKind string

const (
	ChangeTableNew          ChangeKind = "TABLE_NEW"
	ChangeTableRemove       ChangeKind = "TABLE_REMOVE"
	ChangeViewNew           ChangeKind = "VIEW_NEW"
	ChangeViewRemove        ChangeKind = "VIEW_REMOVE"
	ChangeTableColumnAdd    ChangeKind = "TABLE_COLUMN_ADD"
	ChangeViewColumnAdd     ChangeKind = "VIEW_COLUMN_ADD"
	ChangeTableColumnType   ChangeKind = "TABLE_COLUMN_TYPE_CHANGE"
	ChangeViewColumnType    ChangeKind = "VIEW_COLUMN_TYPE_CHANGE"
	ChangeTableColumnProps  ChangeKind = "TABLE_COLUMN_PROPS_CHANGED"
	ChangeTableColumnRemove ChangeKind = "TABLE_COLUMN_REMOVE"
	ChangeViewColumnRemove  ChangeKind = "VIEW_COLUMN_REMOVE"
	ChangeRelationAdd       ChangeKind = "TABLE_RELATION_ADD"
	ChangeRelationRemove    ChangeKind = "TABLE_RELATION_REMOVE"
	ChangeVirtualM2MRemove  ChangeKind = "TABLE_VIRTUAL_M2M_REMOVE"
)

// allChangeKinds fixes the tie-break order for kinds with no dependency
// between them.
var allChangeKinds = []ChangeKind{
	ChangeTableNew,
	ChangeTableRemove,
	ChangeViewNew,
	ChangeViewRemove,
	ChangeTableColumnAdd,
	ChangeViewColumnAdd,
	ChangeTableColumnType,
	ChangeViewColumnType,
	ChangeTableColumnProps,
	ChangeTableColumnRemove,
	ChangeViewColumnRemove,
	ChangeRelationAdd,
	ChangeRelationRemove,
	ChangeVirtualM2MRemove,
}

// kindDependencies is the partial order between change kinds: the key must
// be applied before every kind it maps to. Relation and m2m teardown goes
// first so nothing still references a column or relation that is about to
// be mutated or removed; relation creation goes last so both endpoint
// tables carry their final column lists.
var kindDependencies = buildKindDependencies()

func buildKindDependencies() map[ChangeKind][]ChangeKind {
	deps := map[ChangeKind][]ChangeKind{
		ChangeVirtualM2MRemove: {ChangeRelationRemove},
	}
	for _, kind := range allChangeKinds {
		switch kind {
		case ChangeVirtualM2MRemove, ChangeRelationRemove:
			continue
		case ChangeRelationAdd:
			deps[kind] = nil
		default:
			deps[ChangeVirtualM2MRemove] = append(deps[ChangeVirtualM2MRemove], kind)
			deps[ChangeRelationRemove] = append(deps[ChangeRelationRemove], kind)
			deps[kind] = append(deps[kind], ChangeRelationAdd)
		}
	}
	return deps
}

// kindRank is computed once by topologically sorting the dependency graph.
var kindRank = buildKindRank()

func buildKindRank() map[ChangeKind]int {
	indegree := make(map[ChangeKind]int, len(allChangeKinds))
	for _, kind := range allChangeKinds {
		indegree[kind] = 0
	}
	for _, successors := range kindDependencies {
		for _, succ := range successors {
			indegree[succ]++
		}
	}

	rank := make(map[ChangeKind]int, len(allChangeKinds))
	next := 0
	for len(rank) < len(allChangeKinds) {
		// Deterministic Kahn step: take ready kinds in declaration order.
		progressed := false
		for _, kind := range allChangeKinds {
			if _, done := rank[kind]; done || indegree[kind] != 0 {
				continue
			}
			rank[kind] = next
			next++
			progressed = true
			for _, succ := range kindDependencies[kind] {
				indegree[succ]--
			}
		}
		if !progressed {
			panic("change kind dependency cycle")
		}
	}
	return rank
}

// Change is one classified discrepancy between the physical schema and the
// catalog. Only the fields relevant to the kind are set.
type Change struct {
	Kind      ChangeKind
	TableName string
	Message   string

	// ColumnID points at the affected catalog column, ColumnName at the
	// physical column.
	ColumnID   string
	ColumnName string

	// NewColumn carries the physical shape for add/type/props changes.
	NewColumn *introspect.ColumnInfo

	// Relation carries the physical FK for relation adds; RelationType
	// picks the direction the change materializes.
	Relation     *introspect.RelationInfo
	RelationType catalog.RelationType
}

// TableDiff is the ordered change list for one table.
type TableDiff struct {
	TableID   string
	TableName string
	Changes   []Change
}

// SortChanges orders a table's change list by the precomputed kind ranks.
// The sort is stable so same-kind changes keep their discovery order;
// unknown kinds sink to the end and are skipped by the applier.
func SortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		return rankOf(changes[i].Kind) < rankOf(changes[j].Kind)
	})
}

func rankOf(kind ChangeKind) int {
	if rank, ok := kindRank[kind]; ok {
		return rank
	}
	return len(allChangeKinds)
}
