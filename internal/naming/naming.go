package naming

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namer turns SQL names into headings and route segments. Route
// registration is stateful; use one Namer per router build.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new router build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// Humanize turns a column or metric name into a heading.
// Example: "total_amount" -> "Total amount"
func Humanize(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, "_", " "))
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Segment converts a SQL name to a lower-case, hyphenated path segment.
// Example: "OrderItems" -> "orderitems", "order_items" -> "order-items"
func Segment(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// KebabPlural returns the pluralized path segment for a table.
// Example: "order_item" -> "order-items"
func (n *Namer) KebabPlural(tableName string) string {
	parts := strings.Split(Segment(tableName), "-")
	last := len(parts) - 1
	parts[last] = n.Pluralize(parts[last])
	return strings.Join(parts, "-")
}

// RegisterTableRoute registers the browse segment of a table under a data
// source and returns the resolved segment. Segments that shadow a built-in
// route get a "-table" suffix; duplicates get a numeric suffix.
func (n *Namer) RegisterTableRoute(dataSource, tableName string) string {
	segment := n.KebabPlural(tableName)
	if IsReservedSegment(segment) {
		renamed := segment + "-table"
		n.logger.Warn("table route conflicts with reserved segment, auto-suffixed",
			slog.String("datasource", dataSource),
			slog.String("original", segment),
			slog.String("renamed", renamed),
		)
		segment = renamed
	}
	return n.resolver.Register(dataSource, segment, "table:"+tableName)
}

// RegisterReportRoute registers the path segment of a named report.
func (n *Namer) RegisterReportRoute(reportName string) string {
	return n.resolver.Register("reports", Segment(reportName), "report:"+reportName)
}
