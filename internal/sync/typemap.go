package sync

import (
	"strings"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
)

// uiTypeFor maps a physical column type onto a catalog UI type. Unknown
// types fall back to single-line text.
func uiTypeFor(info *introspect.ColumnInfo) catalog.UIType {
	dt := strings.ToLower(strings.TrimSpace(info.DataType))

	switch {
	case dt == "integer", dt == "int", dt == "int4", dt == "bigint", dt == "int8",
		dt == "smallint", dt == "int2", dt == "serial", dt == "bigserial",
		dt == "mediumint", dt == "tinyint":
		return catalog.UITypeNumber
	case strings.HasPrefix(dt, "numeric"), strings.HasPrefix(dt, "decimal"),
		dt == "real", dt == "float", dt == "float4", dt == "float8",
		dt == "double precision", dt == "double", dt == "money":
		return catalog.UITypeDecimal
	case dt == "boolean", dt == "bool":
		return catalog.UITypeCheckbox
	case dt == "date":
		return catalog.UITypeDate
	case strings.HasPrefix(dt, "timestamp"), dt == "datetime":
		return catalog.UITypeDateTime
	case strings.HasPrefix(dt, "time"):
		return catalog.UITypeTime
	case dt == "year":
		return catalog.UITypeYear
	case dt == "json", dt == "jsonb":
		return catalog.UITypeJSON
	case dt == "bytea", dt == "blob", dt == "longblob", dt == "mediumblob":
		return catalog.UITypeAttachment
	case dt == "text", dt == "longtext", dt == "mediumtext":
		return catalog.UITypeLongText
	case dt == "enum":
		return catalog.UITypeSingleSelect
	case dt == "set":
		return catalog.UITypeMultiSelect
	default:
		return catalog.UITypeSingleLineText
	}
}

// isMySQLFamily reports whether the client carries enum/set label lists
// that have to be compared as part of a type diff.
func isMySQLFamily(client string) bool {
	switch strings.ToLower(client) {
	case "mysql", "mysql2", "mariadb":
		return true
	}
	return false
}

// isEnumOrSet covers the two parameterized MySQL types.
func isEnumOrSet(dataType string) bool {
	dt := strings.ToLower(strings.TrimSpace(dataType))
	return dt == "enum" || dt == "set"
}

func equalTypeParams(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
