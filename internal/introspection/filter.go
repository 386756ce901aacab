package introspection

import (
	"path"
	"strings"
)

// Filter selects which reflected tables are exposed. Patterns are
// case-insensitive globs; an empty allow list allows everything and deny
// rules always win.
type Filter struct {
	AllowTables  []string `mapstructure:"allow_tables"`
	DenyTables   []string `mapstructure:"deny_tables"`
	IncludeViews bool     `mapstructure:"include_views"`
}

// Apply returns a copy of schema holding only the tables f admits.
func (f Filter) Apply(schema *Schema) *Schema {
	if schema == nil {
		return nil
	}
	out := &Schema{Database: schema.Database, Tables: make([]Table, 0, len(schema.Tables))}
	for _, table := range schema.Tables {
		if table.IsView && !f.IncludeViews {
			continue
		}
		if !f.Allows(table.Name) {
			continue
		}
		out.Tables = append(out.Tables, table)
	}
	return out
}

// Allows reports whether a table name passes the allow and deny lists.
func (f Filter) Allows(name string) bool {
	if matchesAny(name, f.DenyTables) {
		return false
	}
	return len(f.AllowTables) == 0 || matchesAny(name, f.AllowTables)
}

func matchesAny(name string, patterns []string) bool {
	name = strings.ToLower(name)
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
