package naming

import (
	"slices"
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural of the last word of a route segment.
// Overrides are keyed in lower case because viper lower-cases map keys.
func (n *Namer) Pluralize(word string) string {
	key := strings.ToLower(word)
	if plural, ok := n.config.PluralOverrides[key]; ok {
		return plural
	}
	if slices.Contains(n.config.Uncountable, key) {
		return word
	}
	return inflection.Plural(word)
}
