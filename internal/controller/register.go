package controller

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"databuddy/internal/datasource"
)

// Wrapper decorates an endpoint handler, typically with per-endpoint
// middleware. name is the EndpointName of the route.
type Wrapper func(name, dataSource string, h http.Handler) http.Handler

// EndpointName derives a stable identifier from a route path:
// "/api/shop/daily-orders" becomes "api_shop_daily_orders".
func EndpointName(path string) string {
	name := strings.Trim(path, "/")
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, "/", "_")
}

// JoinPath joins a route prefix and path into a rooted path.
func JoinPath(prefix, path string) string {
	prefix = strings.Trim(prefix, "/")
	path = strings.Trim(path, "/")
	switch {
	case prefix == "":
		return "/" + path
	case path == "":
		return "/" + prefix
	default:
		return "/" + prefix + "/" + path
	}
}

// RegisterQueryEndpoints mounts each endpoint under prefix as a GET route.
// Every endpoint's data source must exist in registry.
func RegisterQueryEndpoints(mux *http.ServeMux, registry *datasource.Registry, prefix string, endpoints map[string]QueryEndpoint, wrap Wrapper) error {
	seen := make(map[string]bool, len(endpoints))
	for _, path := range sortedKeys(endpoints) {
		ep := endpoints[path]
		if ep.Query == nil {
			return fmt.Errorf("endpoint %s has no query constructor", path)
		}
		ds, err := registry.Get(ep.DataSource)
		if err != nil {
			return fmt.Errorf("endpoint %s: %w", path, err)
		}
		full := JoinPath(prefix, path)
		if seen[full] {
			return fmt.Errorf("duplicate endpoint %s", full)
		}
		seen[full] = true

		var h http.Handler = NewQueryHandler(ds, ep)
		if wrap != nil {
			h = wrap(EndpointName(full), ds.Name, h)
		}
		mux.Handle("GET "+full, h)
	}
	return nil
}

// RegisterFrameEndpoints mounts each frame endpoint under prefix as a GET route.
func RegisterFrameEndpoints(mux *http.ServeMux, prefix string, endpoints map[string]FrameEndpoint, wrap Wrapper) error {
	seen := make(map[string]bool, len(endpoints))
	for _, path := range sortedKeys(endpoints) {
		ep := endpoints[path]
		if ep.Frame == nil {
			return fmt.Errorf("endpoint %s has no frame function", path)
		}
		full := JoinPath(prefix, path)
		if seen[full] {
			return fmt.Errorf("duplicate endpoint %s", full)
		}
		seen[full] = true

		var h http.Handler = NewFrameHandler(ep)
		if wrap != nil {
			h = wrap(EndpointName(full), "", h)
		}
		mux.Handle("GET "+full, h)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
