package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortChangesRemovalFirstRelationAddLast(t *testing.T) {
	changes := []Change{
		{Kind: ChangeRelationAdd, TableName: "a"},
		{Kind: ChangeTableColumnAdd, TableName: "a"},
		{Kind: ChangeRelationRemove, TableName: "a"},
		{Kind: ChangeTableColumnRemove, TableName: "a"},
		{Kind: ChangeVirtualM2MRemove, TableName: "a"},
	}
	SortChanges(changes)

	require.Equal(t, ChangeVirtualM2MRemove, changes[0].Kind)
	require.Equal(t, ChangeRelationRemove, changes[1].Kind)
	require.Equal(t, ChangeRelationAdd, changes[len(changes)-1].Kind)
}

func TestSortChangesStableWithinKind(t *testing.T) {
	changes := []Change{
		{Kind: ChangeTableColumnAdd, ColumnName: "first"},
		{Kind: ChangeRelationRemove},
		{Kind: ChangeTableColumnAdd, ColumnName: "second"},
	}
	SortChanges(changes)

	require.Equal(t, ChangeRelationRemove, changes[0].Kind)
	require.Equal(t, "first", changes[1].ColumnName)
	require.Equal(t, "second", changes[2].ColumnName)
}

func TestSortChangesUnknownKindSinks(t *testing.T) {
	changes := []Change{
		{Kind: ChangeKind("SOMETHING_FUTURE")},
		{Kind: ChangeRelationAdd},
		{Kind: ChangeTableNew},
	}
	SortChanges(changes)

	require.Equal(t, ChangeTableNew, changes[0].Kind)
	require.Equal(t, ChangeRelationAdd, changes[1].Kind)
	require.Equal(t, ChangeKind("SOMETHING_FUTURE"), changes[2].Kind)
}

func TestKindRankCoversEveryKind(t *testing.T) {
	require.Len(t, kindRank, len(allChangeKinds))
	for _, kind := range allChangeKinds {
		_, ok := kindRank[kind]
		require.True(t, ok, "kind %s has no rank", kind)
	}
}
