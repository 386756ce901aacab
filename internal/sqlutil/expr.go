package sqlutil

import (
	"fmt"
	"strings"

	"databuddy/internal/format"
)

// LocalTZConvert shifts a UTC datetime column by offsetMins.
func (d Dialect) LocalTZConvert(column string, offsetMins int) string {
	col := d.Quote(column)
	switch d {
	case Postgres:
		return fmt.Sprintf("(%s + INTERVAL '%d minutes')", col, offsetMins)
	case MSSQL:
		return fmt.Sprintf("DATEADD(minute, %d, %s)", offsetMins, col)
	default:
		return fmt.Sprintf("CONVERT_TZ(%s, '+00:00', %s)", col, QuoteString(format.TZString(offsetMins)))
	}
}

// LocalTZConvertedDate is the calendar date of a UTC datetime column in the
// shifted zone.
func (d Dialect) LocalTZConvertedDate(column string, offsetMins int) string {
	converted := d.LocalTZConvert(column, offsetMins)
	switch d {
	case Postgres:
		return fmt.Sprintf("CAST(%s AS date)", converted)
	case MSSQL:
		return fmt.Sprintf("CAST(%s AS date)", converted)
	default:
		return fmt.Sprintf("DATE(%s)", converted)
	}
}

// DateFormat renders expr with a strftime pattern limited to %Y, %m, %d,
// %H, %M and %S.
func (d Dialect) DateFormat(expr, pattern string) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("to_char(%s, %s)", expr, QuoteString(translate(pattern, postgresTokens)))
	case MSSQL:
		return fmt.Sprintf("FORMAT(%s, %s)", expr, QuoteString(translate(pattern, mssqlTokens)))
	default:
		return fmt.Sprintf("DATE_FORMAT(%s, %s)", expr, QuoteString(pattern))
	}
}

// LocalDateBucket formats the shifted date of column with pattern. It is the
// expression interval queries group by.
func (d Dialect) LocalDateBucket(column string, offsetMins int, pattern string) string {
	return d.DateFormat(d.LocalTZConvertedDate(column, offsetMins), pattern)
}

// NullSafeSum sums column treating NULL as zero.
func (d Dialect) NullSafeSum(column string) string {
	return fmt.Sprintf("SUM(COALESCE(%s, 0))", d.Quote(column))
}

var postgresTokens = map[byte]string{'Y': "YYYY", 'm': "MM", 'd': "DD", 'H': "HH24", 'M': "MI", 'S': "SS"}

var mssqlTokens = map[byte]string{'Y': "yyyy", 'm': "MM", 'd': "dd", 'H': "HH", 'M': "mm", 'S': "ss"}

func translate(pattern string, tokens map[byte]string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' && i+1 < len(pattern) {
			if tok, ok := tokens[pattern[i+1]]; ok {
				b.WriteString(tok)
				i++
				continue
			}
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}
