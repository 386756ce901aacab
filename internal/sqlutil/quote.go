// Package sqlutil provides SQL dialect helpers: identifier quoting,
// placeholder formats and the handful of date expressions the interval
// queries need.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier with backticks and escapes any
// backticks within it. This is the MySQL form; use Dialect.Quote for others.
func QuoteIdentifier(name string) string {
	return quoteWith(name, "`", "`")
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

func quoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}
