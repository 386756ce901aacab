// Package introspection reflects table and column metadata from a
// database's INFORMATION_SCHEMA. The result backs entity queries and the
// table browse endpoints.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"databuddy/internal/sqlutil"
)

// Column represents a database column.
type Column struct {
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
}

// Table represents a database table or view.
type Table struct {
	Name    string
	IsView  bool
	Columns []Column
}

// TableName returns the table's name.
func (t Table) TableName() string { return t.Name }

// ColumnNames returns the declared columns in ordinal order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the key column names in ordinal order. Views and
// keyless tables return nil.
func (t Table) PrimaryKey() []string {
	var key []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			key = append(key, c.Name)
		}
	}
	return key
}

// Column looks a column up by name, ignoring case.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Schema represents the reflected schema of one database.
type Schema struct {
	Database string
	Tables   []Table
}

// Table looks a table up by name, ignoring case.
func (s *Schema) Table(name string) (Table, bool) {
	if s == nil {
		return Table{}, false
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames lists the reflected tables and views in name order.
func (s *Schema) TableNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	slices.Sort(names)
	return names
}

// Models returns the base tables that have a primary key. Only these can be
// mapped as entities.
func (s *Schema) Models() []Table {
	if s == nil {
		return nil
	}
	var models []Table
	for _, t := range s.Tables {
		if !t.IsView && len(t.PrimaryKey()) > 0 {
			models = append(models, t)
		}
	}
	return models
}

// Queryer provides query access for schema reflection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Target names the database to reflect. Schema defaults to the database name
// on MySQL, "public" on Postgres and "dbo" on SQL Server.
type Target struct {
	Dialect  sqlutil.Dialect
	Database string
	Schema   string
}

func (t Target) schemaName() string {
	if t.Schema != "" {
		return t.Schema
	}
	switch t.Dialect {
	case sqlutil.Postgres:
		return "public"
	case sqlutil.MSSQL:
		return "dbo"
	default:
		return t.Database
	}
}

// filter restricts an INFORMATION_SCHEMA query to the target. prefix
// qualifies the columns when the query joins several views.
func (t Target) filter(prefix string) sq.Eq {
	if t.Dialect == sqlutil.MySQL {
		return sq.Eq{prefix + "TABLE_SCHEMA": t.Database}
	}
	return sq.Eq{prefix + "TABLE_CATALOG": t.Database, prefix + "TABLE_SCHEMA": t.schemaName()}
}

// Reflect reads every base table and view of the target with their columns
// and primary keys.
func Reflect(ctx context.Context, db Queryer, target Target) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.reflect",
		attribute.String("db.name", target.Database),
		attribute.String("db.system", string(target.Dialect)),
	)
	defer span.End()

	tables, err := getTables(ctx, db, target)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	schema := &Schema{Database: target.Database, Tables: make([]Table, 0, len(tables))}
	for _, table := range tables {
		table.Columns, err = getColumns(ctx, db, target, table.Name)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", table.Name, err)
		}
		if !table.IsView {
			pks, err := getPrimaryKeys(ctx, db, target, table.Name)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to get primary keys for table %s: %w", table.Name, err)
			}
			for i := range table.Columns {
				table.Columns[i].IsPrimaryKey = slices.Contains(pks, table.Columns[i].Name)
			}
		}
		schema.Tables = append(schema.Tables, table)
	}
	span.SetAttributes(attribute.Int("db.table_count", len(schema.Tables)))
	return schema, nil
}

func getTables(ctx context.Context, db Queryer, target Target) ([]Table, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables", attribute.String("db.name", target.Database))
	defer span.End()

	stmt := sq.Select("TABLE_NAME", "TABLE_TYPE").
		From("INFORMATION_SCHEMA.TABLES").
		Where(target.filter("")).
		Where(sq.Eq{"TABLE_TYPE": []string{"BASE TABLE", "VIEW"}}).
		OrderBy("TABLE_NAME")

	var tables []Table
	err := scanEach(ctx, db, target, stmt, func(rows *sql.Rows) error {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return err
		}
		tables = append(tables, Table{Name: name, IsView: strings.EqualFold(tableType, "VIEW")})
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, target Target, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", target.Database),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	stmt := sq.Select("COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE").
		From("INFORMATION_SCHEMA.COLUMNS").
		Where(target.filter("")).
		Where(sq.Eq{"TABLE_NAME": tableName}).
		OrderBy("ORDINAL_POSITION")

	var columns []Column
	err := scanEach(ctx, db, target, stmt, func(rows *sql.Rows) error {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return err
		}
		columns = append(columns, Column{
			Name:       name,
			DataType:   strings.ToLower(dataType),
			IsNullable: strings.EqualFold(nullable, "YES"),
		})
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKeys(ctx context.Context, db Queryer, target Target, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", target.Database),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	stmt := sq.Select("kcu.COLUMN_NAME").
		From("INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc").
		Join("INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME" +
			" AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA AND tc.TABLE_NAME = kcu.TABLE_NAME").
		Where(target.filter("tc.")).
		Where(sq.Eq{"tc.TABLE_NAME": tableName, "tc.CONSTRAINT_TYPE": "PRIMARY KEY"}).
		OrderBy("kcu.ORDINAL_POSITION")

	var keys []string
	err := scanEach(ctx, db, target, stmt, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		keys = append(keys, name)
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return keys, nil
}

func scanEach(ctx context.Context, db Queryer, target Target, stmt sq.SelectBuilder, fn func(*sql.Rows) error) error {
	query, args, err := stmt.PlaceholderFormat(target.Dialect.Placeholder()).ToSql()
	if err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("databuddy/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
