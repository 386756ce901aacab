package format

import (
	"strings"
	"time"
)

// Layouts used for interval buckets and their display forms.
const (
	DayLayout          = "%Y-%m-%d"
	MonthLayout        = "%Y-%m"
	DayDisplayLayout   = "%d %b %Y"
	MonthDisplayLayout = "%b %Y"
)

var strftimeToGo = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// GoLayout converts a strftime pattern into a time.Format layout. Unknown
// directives are copied through unchanged.
func GoLayout(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 == len(pattern) {
			b.WriteByte(c)
			continue
		}
		i++
		if layout, ok := strftimeToGo[pattern[i]]; ok {
			b.WriteString(layout)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(pattern[i])
	}
	return b.String()
}

// Strftime formats t with a strftime pattern. Literal text is copied verbatim,
// so digits or month names outside directives are never read as layout tokens.
func Strftime(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 == len(pattern) {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout, ok := strftimeToGo[pattern[i]]; {
		case pattern[i] == '%':
			b.WriteByte('%')
		case ok:
			b.WriteString(t.Format(layout))
		default:
			b.WriteByte('%')
			b.WriteByte(pattern[i])
		}
	}
	return b.String()
}

// ParseStrftime parses value with a strftime pattern. Values without zone
// information are read as UTC.
func ParseStrftime(pattern, value string) (time.Time, error) {
	return time.Parse(GoLayout(pattern), value)
}
