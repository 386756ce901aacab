// Package dbexec provides the handles queries are materialized against:
// the connection pool itself or a transaction-backed Session.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the subset of *sql.Rows materialization reads.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor runs read queries. Both Pool and *Session satisfy it.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// Pool runs each query on whichever pooled connection is free. Background
// report reads use it; request handlers hold a Session instead.
type Pool struct {
	db *sql.DB
}

func NewPool(db *sql.DB) Pool {
	return Pool{db: db}
}

func (p Pool) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if p.db == nil {
		return nil, sql.ErrConnDone
	}
	return p.db.QueryContext(ctx, query, args...)
}
