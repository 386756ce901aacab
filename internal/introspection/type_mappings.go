package introspection

import "strings"

// TypeCategory groups SQL data types by how reports can use them.
type TypeCategory int

const (
	// TypeOther covers text, binary, JSON and anything unrecognised.
	TypeOther TypeCategory = iota
	// TypeNumeric columns can be summed.
	TypeNumeric
	// TypeTemporal columns can be bucketed by day or month.
	TypeTemporal
	// TypeBoolean columns hold true/false flags.
	TypeBoolean
)

// Categorize maps a DATA_TYPE value from MySQL, Postgres or SQL Server onto a
// category. Size specifiers like (10,2) are ignored.
func Categorize(dataType string) TypeCategory {
	if idx := strings.Index(dataType, "("); idx != -1 {
		dataType = dataType[:idx]
	}
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"serial", "bigserial", "float", "double", "double precision", "real",
		"decimal", "numeric", "money", "smallmoney":
		return TypeNumeric
	case "date", "datetime", "datetime2", "smalldatetime", "datetimeoffset",
		"timestamp", "timestamp without time zone", "timestamp with time zone":
		return TypeTemporal
	case "bool", "boolean", "bit":
		return TypeBoolean
	default:
		return TypeOther
	}
}

// NumericColumns returns the summable columns of a table, excluding primary keys.
func NumericColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if !col.IsPrimaryKey && Categorize(col.DataType) == TypeNumeric {
			cols = append(cols, col)
		}
	}
	return cols
}

// TemporalColumns returns the date and timestamp columns of a table.
func TemporalColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if Categorize(col.DataType) == TypeTemporal {
			cols = append(cols, col)
		}
	}
	return cols
}
