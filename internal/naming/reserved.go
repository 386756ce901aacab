package naming

import "strings"

// reservedSegments are path segments the server mounts itself under a data
// source prefix. Table routes must not shadow them.
var reservedSegments = map[string]bool{
	"tables":  true,
	"reports": true,
	"schema":  true,
	"health":  true,
	"metrics": true,
}

// IsReservedSegment reports whether a URL path segment is taken by a built-in route.
func IsReservedSegment(segment string) bool {
	lower := strings.ToLower(segment)
	if strings.HasPrefix(lower, "_") {
		return true
	}
	return reservedSegments[lower]
}
