// Package controller turns query constructors and frame producers into HTTP
// endpoints that follow the response format and modifier conventions.
package controller

import (
	"context"

	"databuddy/internal/datasource"
	"databuddy/internal/dbexec"
	"databuddy/internal/frame"
	"databuddy/internal/introspection"
	"databuddy/internal/query"
	"databuddy/internal/response"
)

// Env is what a query constructor sees for one request.
type Env struct {
	Session *dbexec.Session
	Source  *datasource.DataSource
}

// Builder returns the data source's query builder.
func (e Env) Builder() *query.Builder { return e.Source.Builder }

// Schema returns the data source's reflected schema, or nil.
func (e Env) Schema() *introspection.Schema { return e.Source.Schema() }

// QueryFunc builds the query for one request. params is nil when the request
// carried no filter_params.
type QueryFunc func(ctx context.Context, env Env, params any) (*query.Query, error)

// QueryEndpoint describes one query-backed route.
type QueryEndpoint struct {
	DataSource string
	Query      QueryFunc
	// NewParams returns a pointer to decode filter_params into. When nil the
	// parameters are passed through as a map.
	NewParams func() any
	// Format is used when the request does not name one. Empty means JSON.
	Format        response.Format
	JSONModifiers map[string]any
	CSVModifiers  map[string]any
	PinModifiers  bool
}

func (e QueryEndpoint) options() response.Options {
	return response.Options{
		JSONModifiers: e.JSONModifiers,
		CSVModifiers:  e.CSVModifiers,
		PinModifiers:  e.PinModifiers,
	}
}

// QueryController is the interface form of a QueryEndpoint.
type QueryController interface {
	DataSourceName() string
	Query(ctx context.Context, env Env, params any) (*query.Query, error)
}

// ParamsProvider is implemented by controllers that accept typed filter params.
type ParamsProvider interface {
	NewParams() any
}

// FormatProvider is implemented by controllers with a non-JSON default format.
type FormatProvider interface {
	ResponseFormat() response.Format
}

// ModifierProvider is implemented by controllers with default modifiers.
type ModifierProvider interface {
	JSONModifiers() map[string]any
	CSVModifiers() map[string]any
}

// EndpointFor adapts a controller to a QueryEndpoint.
func EndpointFor(c QueryController) QueryEndpoint {
	ep := QueryEndpoint{
		DataSource: c.DataSourceName(),
		Query:      c.Query,
	}
	if p, ok := c.(ParamsProvider); ok {
		ep.NewParams = p.NewParams
	}
	if f, ok := c.(FormatProvider); ok {
		ep.Format = f.ResponseFormat()
	}
	if m, ok := c.(ModifierProvider); ok {
		ep.JSONModifiers = m.JSONModifiers()
		ep.CSVModifiers = m.CSVModifiers()
	}
	return ep
}

// FrameFunc produces the frame for one request.
type FrameFunc func(ctx context.Context, params any) (*frame.Frame, error)

// FrameEndpoint describes one frame-backed route.
type FrameEndpoint struct {
	Frame     FrameFunc
	NewParams func() any
	Format    response.Format
}

// FrameController is the interface form of a FrameEndpoint.
type FrameController interface {
	Frame(ctx context.Context, params any) (*frame.Frame, error)
}

// FrameEndpointFor adapts a controller to a FrameEndpoint.
func FrameEndpointFor(c FrameController) FrameEndpoint {
	ep := FrameEndpoint{Frame: c.Frame}
	if p, ok := c.(ParamsProvider); ok {
		ep.NewParams = p.NewParams
	}
	if f, ok := c.(FormatProvider); ok {
		ep.Format = f.ResponseFormat()
	}
	return ep
}
