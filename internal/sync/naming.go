package sync

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
)

const maxAliasAttempts = 1000

// uniqueTitle returns base when it is free, otherwise base with the
// smallest numeric suffix that avoids a collision. Comparison is
// case-insensitive because most engines treat identifiers that way.
func uniqueTitle(base string, columns []*catalog.Column) (string, error) {
	taken := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		taken[strings.ToLower(col.Title)] = struct{}{}
	}

	if _, ok := taken[strings.ToLower(base)]; !ok {
		return base, nil
	}
	for i := 1; i < maxAliasAttempts; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		if _, ok := taken[strings.ToLower(candidate)]; !ok {
			return candidate, nil
		}
	}
	return "", &ValidationError{Entity: "column", Name: base, Reason: "could not generate a unique title"}
}

// singularTitle names the belongs-to side of a relation after the parent.
func singularTitle(tableTitle string) string {
	return inflection.Singular(tableTitle)
}

// pluralTitle names the has-many / links side after the child collection.
func pluralTitle(tableTitle string) string {
	return inflection.Plural(tableTitle)
}
