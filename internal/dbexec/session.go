package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// TxBeginner opens transactions. *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Session is a unit of work bound to one transaction. It is finished by
// Commit or Rollback and released by Close; Close rolls back anything left
// pending. A Session is not meant to be shared between requests.
type Session struct {
	tx *sql.Tx

	mu       sync.Mutex
	finished bool
	closed   bool
}

// Begin opens a session on db.
func Begin(ctx context.Context, db TxBeginner) (*Session, error) {
	if db == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin session: %w", err)
	}
	return &Session{tx: tx}, nil
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return s.tx.QueryContext(ctx, query, args...)
}

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.tx.ExecContext(ctx, query, args...)
}

// Commit commits the session's transaction.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return sql.ErrTxDone
	}
	s.finished = true
	return s.tx.Commit()
}

// Rollback discards the session's pending work.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return sql.ErrTxDone
	}
	s.finished = true
	return s.tx.Rollback()
}

// Close releases the session. Pending work is rolled back. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := !s.finished
	s.finished = true
	s.mu.Unlock()

	if !pending {
		return nil
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Scope runs fn inside a fresh session. When commit is set the session is
// committed after fn succeeds and rolled back if fn fails. The session is
// always closed, including when fn panics.
func Scope(ctx context.Context, db TxBeginner, commit bool, fn func(context.Context, *Session) error) (err error) {
	s, err := Begin(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close session: %w", closeErr)
		}
	}()

	if err := fn(ctx, s); err != nil {
		if commit {
			if rbErr := s.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
		}
		return err
	}
	if commit {
		if err := s.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("failed to commit session: %w", err)
		}
	}
	return nil
}
