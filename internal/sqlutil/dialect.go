package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect names one of the supported database flavours.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	MSSQL    Dialect = "mssql"
)

// ParseDialect maps a configured db_type onto a Dialect. SQLAlchemy style
// "dialect+driver" names are accepted and the driver suffix ignored.
func ParseDialect(dbType string) (Dialect, error) {
	name := strings.ToLower(strings.TrimSpace(dbType))
	if idx := strings.IndexByte(name, '+'); idx >= 0 {
		name = name[:idx]
	}
	switch name {
	case "mysql", "mariadb", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	default:
		return "", fmt.Errorf("unsupported db_type %q", dbType)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MSSQL:
		return "sqlserver"
	default:
		return "mysql"
	}
}

// Placeholder is the squirrel placeholder format for the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	switch d {
	case Postgres:
		return sq.Dollar
	case MSSQL:
		return sq.AtP
	default:
		return sq.Question
	}
}

// Quote quotes an identifier. Dotted names are quoted part by part so
// "orders.created_at" stays a qualified reference.
func (d Dialect) Quote(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = d.quotePart(part)
	}
	return strings.Join(parts, ".")
}

func (d Dialect) quotePart(part string) string {
	switch d {
	case Postgres:
		return quoteWith(part, `"`, `"`)
	case MSSQL:
		return quoteWith(part, "[", "]")
	default:
		return quoteWith(part, "`", "`")
	}
}

// PaginationSuffix renders LIMIT/OFFSET for dialects squirrel's Limit and
// Offset don't cover. It returns ok=false when squirrel's own clauses apply.
func (d Dialect) PaginationSuffix(limit, offset uint64) (string, bool) {
	if d != MSSQL {
		return "", false
	}
	return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit), true
}
