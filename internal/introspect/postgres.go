package introspect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kadirbelkuyu/metasync/internal/database"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// Postgres reads structural metadata from information_schema. It never
// issues DDL or touches table data.
type Postgres struct {
	conn   *database.Connection
	logger *logger.Logger
}

func NewPostgres(conn *database.Connection, logger *logger.Logger) *Postgres {
	return &Postgres{
		conn:   conn,
		logger: logger,
	}
}

func (p *Postgres) Tables(ctx context.Context, schema string) ([]TableInfo, error) {
	query := `
		SELECT t.table_name
		FROM information_schema.tables t
		WHERE t.table_type = 'BASE TABLE'
		AND t.table_schema = $1
	`

	rows, err := p.conn.DB.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, &Error{Op: "tables", Err: err}
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var table TableInfo
		if err := rows.Scan(&table.Name); err != nil {
			return nil, &Error{Op: "tables", Err: err}
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "tables", Err: err}
	}

	p.logger.Debugf("%d tables introspected in schema %s", len(tables), schema)
	return tables, nil
}

func (p *Postgres) Views(ctx context.Context, schema string) ([]ViewInfo, error) {
	query := `
		SELECT v.table_name
		FROM information_schema.views v
		WHERE v.table_schema = $1
	`

	rows, err := p.conn.DB.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, &Error{Op: "views", Err: err}
	}
	defer rows.Close()

	var views []ViewInfo
	for rows.Next() {
		var view ViewInfo
		if err := rows.Scan(&view.Name); err != nil {
			return nil, &Error{Op: "views", Err: err}
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "views", Err: err}
	}

	return views, nil
}

func (p *Postgres) Columns(ctx context.Context, tableName, schema string) ([]ColumnInfo, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.numeric_precision,
			c.is_identity
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
	`

	rows, err := p.conn.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, &Error{Op: "columns", Err: err}
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var isNullable, isIdentity string
		var defaultValue sql.NullString
		var maxLength, precision sql.NullInt64

		err := rows.Scan(
			&col.Name,
			&col.DataType,
			&isNullable,
			&defaultValue,
			&maxLength,
			&precision,
			&isIdentity,
		)
		if err != nil {
			return nil, &Error{Op: "columns", Err: err}
		}

		col.Required = isNullable == "NO"
		if defaultValue.Valid {
			value := defaultValue.String
			col.Default = &value
			if strings.HasPrefix(value, "nextval(") {
				col.AutoIncrement = true
			}
		}
		if isIdentity == "YES" {
			col.AutoIncrement = true
		}
		if maxLength.Valid {
			length := int(maxLength.Int64)
			col.Length = &length
		}
		if precision.Valid {
			prec := int(precision.Int64)
			col.Precision = &prec
		}

		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "columns", Err: err}
	}

	if err := p.markConstraintColumns(ctx, tableName, schema, columns); err != nil {
		return nil, err
	}

	return columns, nil
}

// markConstraintColumns fills the pk/unique flags from key_column_usage.
func (p *Postgres) markConstraintColumns(ctx context.Context, tableName, schema string, columns []ColumnInfo) error {
	query := `
		SELECT kcu.column_name, tc.constraint_type
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
	`

	rows, err := p.conn.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return &Error{Op: "constraints", Err: err}
	}
	defer rows.Close()

	byName := make(map[string]*ColumnInfo, len(columns))
	for i := range columns {
		byName[columns[i].Name] = &columns[i]
	}

	for rows.Next() {
		var columnName, constraintType string
		if err := rows.Scan(&columnName, &constraintType); err != nil {
			return &Error{Op: "constraints", Err: err}
		}
		col, ok := byName[columnName]
		if !ok {
			continue
		}
		switch constraintType {
		case "PRIMARY KEY":
			col.PK = true
		case "UNIQUE":
			col.Unique = true
		}
	}
	return rows.Err()
}

func (p *Postgres) Relations(ctx context.Context, schema string) ([]RelationInfo, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = $1
	`

	rows, err := p.conn.DB.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, &Error{Op: "relations", Err: err}
	}
	defer rows.Close()

	var relations []RelationInfo
	for rows.Next() {
		var rel RelationInfo
		err := rows.Scan(
			&rel.ConstraintName,
			&rel.ChildTable,
			&rel.ChildColumn,
			&rel.ParentTable,
			&rel.ParentColumn,
		)
		if err != nil {
			return nil, &Error{Op: "relations", Err: err}
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "relations", Err: err}
	}

	return relations, nil
}
