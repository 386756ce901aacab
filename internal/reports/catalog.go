package reports

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"databuddy/internal/controller"
	"databuddy/internal/datasource"
	"databuddy/internal/frame"
	"databuddy/internal/introspection"
	"databuddy/internal/naming"
	"databuddy/internal/query"
	"databuddy/internal/response"
)

// TablesSegment is the listing route under each data source.
const TablesSegment = "tables"

// Browse is one auto-mapped table exposed as a paginated endpoint.
type Browse struct {
	DataSource string
	Table      string
	// Path is the route below the API prefix: "<data source>/<segment>".
	Path string

	orderBy string
}

func primaryKeyName(t introspection.Table) string {
	if pk := t.PrimaryKey(); len(pk) > 0 {
		return pk[0]
	}
	return ""
}

// Catalog assigns browse routes to the auto-mapped models of every data
// source. Routes are fixed when the catalog is built; requests read the
// current schema.
type Catalog struct {
	registry *datasource.Registry
	browse   []Browse
	routes   map[string]map[string]string
}

// NewCatalog registers a route for every model the registry currently maps.
func NewCatalog(registry *datasource.Registry, namer *naming.Namer) *Catalog {
	c := &Catalog{registry: registry, routes: map[string]map[string]string{}}
	for _, ds := range registry.All() {
		routes := map[string]string{}
		models := ds.Models()
		slices.SortFunc(models, func(a, b introspection.Table) int {
			return strings.Compare(a.Name, b.Name)
		})
		for _, t := range models {
			segment := namer.RegisterTableRoute(ds.Name, t.Name)
			routes[t.Name] = segment
			c.browse = append(c.browse, Browse{
				DataSource: ds.Name,
				Table:      t.Name,
				Path:       DataSourceSegment(ds.Name) + "/" + segment,
				orderBy:    primaryKeyName(t),
			})
		}
		c.routes[ds.Name] = routes
	}
	return c
}

// DataSourceSegment is the path segment of a data source.
func DataSourceSegment(name string) string { return naming.Segment(name) }

// Browses lists the browse routes in registration order.
func (c *Catalog) Browses() []Browse { return append([]Browse(nil), c.browse...) }

// BrowseEndpoints maps each browse path to its query endpoint.
func (c *Catalog) BrowseEndpoints() map[string]controller.QueryEndpoint {
	out := make(map[string]controller.QueryEndpoint, len(c.browse))
	for _, b := range c.browse {
		out[b.Path] = BrowseEndpoint(b.DataSource, b.Table, b.orderBy)
	}
	return out
}

// BrowseEndpoint pages through every column of table, ordered by orderBy
// unless the request asks otherwise. filter_params is a map of column to
// required value.
func BrowseEndpoint(dataSource, table, orderBy string) controller.QueryEndpoint {
	jsonMods := map[string]any{"page": 1}
	csvMods := map[string]any{}
	if orderBy != "" {
		jsonMods["order_by"] = orderBy
		csvMods["order_by"] = orderBy
	}
	return controller.QueryEndpoint{
		DataSource: dataSource,
		Query: func(_ context.Context, env controller.Env, params any) (*query.Query, error) {
			t, err := env.Source.Table(table)
			if err != nil {
				if errors.Is(err, datasource.ErrUnknownTable) || errors.Is(err, datasource.ErrNotReflected) {
					return nil, response.NotFound(fmt.Sprintf("Table %s is not available.", table), err)
				}
				return nil, err
			}
			q := env.Builder().Entity(t)
			filters, _ := params.(map[string]any)
			eq, err := columnFilter(env, t, filters)
			if err != nil {
				return nil, err
			}
			return q.Filter(eq), nil
		},
		JSONModifiers: jsonMods,
		CSVModifiers:  csvMods,
	}
}

func columnFilter(env controller.Env, t introspection.Table, filters map[string]any) (sq.Sqlizer, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	eq := sq.Eq{}
	for name, v := range filters {
		col, ok := t.Column(name)
		if !ok {
			return nil, response.BadRequest(fmt.Sprintf("unknown column %q in filter_params", name), nil)
		}
		// Blank values arrive as nil and mean "no filter", not IS NULL.
		if v == nil {
			continue
		}
		eq[env.Builder().Dialect().Quote(col.Name)] = v
	}
	if len(eq) == 0 {
		return nil, nil
	}
	return eq, nil
}

// ListingEndpoints maps "<data source>/tables" to a frame listing the
// reflected tables of each reflecting data source.
func (c *Catalog) ListingEndpoints() map[string]controller.FrameEndpoint {
	out := map[string]controller.FrameEndpoint{}
	for _, ds := range c.registry.All() {
		if !ds.Reflecting() {
			continue
		}
		name := ds.Name
		out[DataSourceSegment(name)+"/"+TablesSegment] = controller.FrameEndpoint{
			Frame: func(context.Context, any) (*frame.Frame, error) {
				return c.listing(name)
			},
		}
	}
	return out
}

func (c *Catalog) listing(dataSource string) (*frame.Frame, error) {
	ds, err := c.registry.Get(dataSource)
	if err != nil {
		return nil, err
	}
	schema := ds.Schema()
	if schema == nil {
		return nil, response.NotFound(fmt.Sprintf("Data source %s has not been reflected.", dataSource), datasource.ErrNotReflected)
	}

	f := frame.New("table", "kind", "columns", "primary_key", "browse")
	for _, name := range schema.TableNames() {
		t, _ := schema.Table(name)
		kind := "table"
		if t.IsView {
			kind = "view"
		}
		pk := t.PrimaryKey()
		var browse any
		if segment, ok := c.routes[dataSource][t.Name]; ok {
			browse = DataSourceSegment(dataSource) + "/" + segment
		}
		var pkList any
		if len(pk) > 0 {
			pkList = strings.Join(pk, ",")
		}
		f.Append(t.Name, kind, len(t.Columns), pkList, browse)
	}
	return f, nil
}
