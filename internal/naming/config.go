// Package naming derives display headings and URL path segments from SQL
// table and column names, including pluralization, collision detection and
// reserved segment handling.
package naming

// Config tunes how table names become browse route segments.
type Config struct {
	// PluralOverrides maps a lower-case singular word to the plural used in
	// routes, e.g. {"status": "statuses"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// Uncountable words are kept as-is, e.g. ["inventory", "stock"].
	Uncountable []string `mapstructure:"uncountable"`
}

func DefaultConfig() Config {
	return Config{PluralOverrides: map[string]string{}}
}
