package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLStore persists the catalog in Postgres. Per-kind column options are
// stored as one JSON document per column.
type SQLStore struct {
	db querier
	tx *sql.Tx
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the catalog tables when they do not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta_tables (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL DEFAULT '',
			base_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			title TEXT NOT NULL,
			table_name TEXT NOT NULL,
			table_type TEXT NOT NULL,
			mm BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS meta_columns (
			id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL REFERENCES meta_tables(id) ON DELETE CASCADE,
			column_name TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			ui_type TEXT NOT NULL,
			data_type TEXT NOT NULL DEFAULT '',
			length INTEGER,
			precision INTEGER,
			pk BOOLEAN NOT NULL DEFAULT FALSE,
			required BOOLEAN NOT NULL DEFAULT FALSE,
			is_unique BOOLEAN NOT NULL DEFAULT FALSE,
			auto_increment BOOLEAN NOT NULL DEFAULT FALSE,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			pv BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order INTEGER NOT NULL DEFAULT 0,
			col_error TEXT,
			options JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS meta_views (
			id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL REFERENCES meta_tables(id) ON DELETE CASCADE,
			title TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta_view_columns (
			id TEXT PRIMARY KEY,
			view_id TEXT NOT NULL REFERENCES meta_views(id) ON DELETE CASCADE,
			column_id TEXT NOT NULL,
			show BOOLEAN NOT NULL DEFAULT TRUE,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meta_tables_scope ON meta_tables (base_id, source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_meta_columns_table ON meta_columns (table_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate catalog schema: %w", err)
		}
	}
	return nil
}

// columnOptions is the JSON envelope for per-kind column options.
type columnOptions struct {
	TypeParams []string         `json:"type_params,omitempty"`
	Relation   *RelationOptions `json:"relation,omitempty"`
	Lookup     *LookupOptions   `json:"lookup,omitempty"`
	Rollup     *RollupOptions   `json:"rollup,omitempty"`
	Formula    *FormulaOptions  `json:"formula,omitempty"`
}

const tableFields = `id, workspace_id, base_id, source_id, title, table_name, table_type, mm, sort_order`

func (s *SQLStore) GetTable(ctx context.Context, scope Scope, id string) (*Table, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tableFields+` FROM meta_tables WHERE id = $1 AND base_id = $2 AND source_id = $3`,
		id, scope.BaseID, scope.SourceID)
	return scanTable(row)
}

func (s *SQLStore) GetTableByName(ctx context.Context, scope Scope, tableName string) (*Table, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tableFields+` FROM meta_tables WHERE table_name = $1 AND base_id = $2 AND source_id = $3`,
		tableName, scope.BaseID, scope.SourceID)
	return scanTable(row)
}

func (s *SQLStore) ListTables(ctx context.Context, scope Scope) ([]*Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tableFields+` FROM meta_tables WHERE base_id = $1 AND source_id = $2 ORDER BY sort_order, table_name`,
		scope.BaseID, scope.SourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*Table
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, rows.Err()
}

func (s *SQLStore) InsertTable(ctx context.Context, scope Scope, table *Table) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta_tables (`+tableFields+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		table.ID, scope.WorkspaceID, table.BaseID, table.SourceID,
		table.Title, table.TableName, string(table.Type), table.MM, table.Order)
	if err != nil {
		return fmt.Errorf("failed to insert table %s: %w", table.TableName, err)
	}
	return nil
}

func (s *SQLStore) UpdateTable(ctx context.Context, scope Scope, table *Table) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE meta_tables SET title = $2, table_name = $3, table_type = $4, mm = $5, sort_order = $6 WHERE id = $1`,
		table.ID, table.Title, table.TableName, string(table.Type), table.MM, table.Order)
	if err != nil {
		return fmt.Errorf("failed to update table %s: %w", table.ID, err)
	}
	return requireAffected(result)
}

func (s *SQLStore) DeleteTable(ctx context.Context, scope Scope, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM meta_tables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", id, err)
	}
	return requireAffected(result)
}

const columnFields = `id, table_id, column_name, title, ui_type, data_type, length, precision,
	pk, required, is_unique, auto_increment, is_system, pv, sort_order, col_error, options`

func (s *SQLStore) GetColumn(ctx context.Context, scope Scope, id string) (*Column, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columnFields+` FROM meta_columns WHERE id = $1`, id)
	return scanColumn(row)
}

func (s *SQLStore) ListColumns(ctx context.Context, scope Scope, tableID string) ([]*Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columnFields+` FROM meta_columns WHERE table_id = $1 ORDER BY sort_order, title`,
		tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var columns []*Column
	for rows.Next() {
		column, err := scanColumn(rows)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func (s *SQLStore) InsertColumn(ctx context.Context, scope Scope, column *Column) error {
	options, err := marshalOptions(column)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta_columns (`+columnFields+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		column.ID, column.TableID, column.ColumnName, column.Title, string(column.UIType),
		column.DataType, column.Length, column.Precision,
		column.PK, column.Required, column.Unique, column.AutoIncrement,
		column.System, column.PV, column.Order, column.Error, options)
	if err != nil {
		return fmt.Errorf("failed to insert column %s: %w", column.Title, err)
	}
	return nil
}

func (s *SQLStore) UpdateColumn(ctx context.Context, scope Scope, column *Column) error {
	options, err := marshalOptions(column)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE meta_columns SET column_name = $2, title = $3, ui_type = $4, data_type = $5,
			length = $6, precision = $7, pk = $8, required = $9, is_unique = $10,
			auto_increment = $11, is_system = $12, pv = $13, sort_order = $14,
			col_error = $15, options = $16
		WHERE id = $1`,
		column.ID, column.ColumnName, column.Title, string(column.UIType), column.DataType,
		column.Length, column.Precision, column.PK, column.Required, column.Unique,
		column.AutoIncrement, column.System, column.PV, column.Order, column.Error, options)
	if err != nil {
		return fmt.Errorf("failed to update column %s: %w", column.ID, err)
	}
	return requireAffected(result)
}

func (s *SQLStore) DeleteColumn(ctx context.Context, scope Scope, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM meta_columns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete column %s: %w", id, err)
	}
	return requireAffected(result)
}

func (s *SQLStore) ListViews(ctx context.Context, scope Scope, tableID string) ([]*View, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, table_id, title FROM meta_views WHERE table_id = $1 ORDER BY title`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()

	var views []*View
	for rows.Next() {
		var view View
		if err := rows.Scan(&view.ID, &view.TableID, &view.Title); err != nil {
			return nil, fmt.Errorf("failed to read view row: %w", err)
		}
		views = append(views, &view)
	}
	return views, rows.Err()
}

func (s *SQLStore) InsertView(ctx context.Context, scope Scope, view *View) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta_views (id, table_id, title) VALUES ($1, $2, $3)`,
		view.ID, view.TableID, view.Title)
	if err != nil {
		return fmt.Errorf("failed to insert view %s: %w", view.Title, err)
	}
	return nil
}

func (s *SQLStore) DeleteView(ctx context.Context, scope Scope, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM meta_views WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete view %s: %w", id, err)
	}
	return requireAffected(result)
}

func (s *SQLStore) ListViewColumns(ctx context.Context, scope Scope, viewID string) ([]*ViewColumn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, view_id, column_id, show, sort_order FROM meta_view_columns WHERE view_id = $1 ORDER BY sort_order`,
		viewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list view columns: %w", err)
	}
	defer rows.Close()

	var viewColumns []*ViewColumn
	for rows.Next() {
		var vc ViewColumn
		if err := rows.Scan(&vc.ID, &vc.ViewID, &vc.ColumnID, &vc.Show, &vc.Order); err != nil {
			return nil, fmt.Errorf("failed to read view column row: %w", err)
		}
		viewColumns = append(viewColumns, &vc)
	}
	return viewColumns, rows.Err()
}

func (s *SQLStore) InsertViewColumn(ctx context.Context, scope Scope, viewColumn *ViewColumn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta_view_columns (id, view_id, column_id, show, sort_order) VALUES ($1, $2, $3, $4, $5)`,
		viewColumn.ID, viewColumn.ViewID, viewColumn.ColumnID, viewColumn.Show, viewColumn.Order)
	if err != nil {
		return fmt.Errorf("failed to insert view column: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteViewColumn(ctx context.Context, scope Scope, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM meta_view_columns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete view column %s: %w", id, err)
	}
	return requireAffected(result)
}

func (s *SQLStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.tx != nil {
		// Already transactional, reuse the same transaction.
		return fn(s)
	}

	db, ok := s.db.(*sql.DB)
	if !ok {
		return fmt.Errorf("catalog store cannot start a transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &SQLStore{db: tx, tx: tx}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTable(row rowScanner) (*Table, error) {
	var table Table
	var workspaceID, tableType string
	err := row.Scan(&table.ID, &workspaceID, &table.BaseID, &table.SourceID,
		&table.Title, &table.TableName, &tableType, &table.MM, &table.Order)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read table row: %w", err)
	}
	table.Type = TableType(tableType)
	return &table, nil
}

func scanColumn(row rowScanner) (*Column, error) {
	var column Column
	var uiType string
	var options []byte
	err := row.Scan(&column.ID, &column.TableID, &column.ColumnName, &column.Title, &uiType,
		&column.DataType, &column.Length, &column.Precision,
		&column.PK, &column.Required, &column.Unique, &column.AutoIncrement,
		&column.System, &column.PV, &column.Order, &column.Error, &options)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read column row: %w", err)
	}
	column.UIType = UIType(uiType)

	if len(options) > 0 {
		var opts columnOptions
		if err := json.Unmarshal(options, &opts); err != nil {
			return nil, fmt.Errorf("failed to decode column options for %s: %w", column.ID, err)
		}
		column.TypeParams = opts.TypeParams
		column.Relation = opts.Relation
		column.Lookup = opts.Lookup
		column.Rollup = opts.Rollup
		column.Formula = opts.Formula
	}
	return &column, nil
}

func marshalOptions(column *Column) ([]byte, error) {
	opts := columnOptions{
		TypeParams: column.TypeParams,
		Relation:   column.Relation,
		Lookup:     column.Lookup,
		Rollup:     column.Rollup,
		Formula:    column.Formula,
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column options for %s: %w", column.ID, err)
	}
	return data, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
