package naming

import (
	"log/slog"
	"strconv"
)

type routeKey struct {
	scope   string
	segment string
}

// CollisionResolver hands out unique route segments within a scope (a data
// source, or "reports"). The first claimant keeps the plain segment; later
// ones get "-2", "-3" and so on.
type CollisionResolver struct {
	owners map[routeKey]string
	logger *slog.Logger
}

func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{owners: map[routeKey]string{}, logger: logger}
}

// Register claims segment in scope for owner and returns the segment it got.
func (c *CollisionResolver) Register(scope, segment, owner string) string {
	key := routeKey{scope: scope, segment: segment}
	first, taken := c.owners[key]
	if !taken {
		c.owners[key] = owner
		return segment
	}

	for n := 2; ; n++ {
		key.segment = segment + "-" + strconv.Itoa(n)
		if _, taken := c.owners[key]; taken {
			continue
		}
		c.owners[key] = owner
		c.logger.Warn("route segment already taken, auto-suffixed",
			slog.String("scope", scope),
			slog.String("segment", segment),
			slog.String("owner", first),
			slog.String("renamed", key.segment),
			slog.String("for", owner),
		)
		return key.segment
	}
}
