package reports

import (
	"context"
	"net/http"
	"net/url"

	"databuddy/internal/controller"
	"databuddy/internal/dashboard"
	"databuddy/internal/frame"
	"databuddy/internal/naming"
	"databuddy/internal/query"
	"databuddy/internal/response"
)

// LayoutArg switches a report page to one row per metric.
const LayoutArg = "layout"

// RegisterDashboardPages adds a data table page per report and a table layout
// page per browse endpoint.
func RegisterDashboardPages(d *dashboard.Dashboard, apiPrefix string, reports []*Report, catalog *Catalog) {
	for _, r := range reports {
		d.AddDataTablePage(r.Path(), r.Title(), dashboard.DataTablePage{
			Heading: r.Title(),
			Table: func(ctx context.Context, req *http.Request) (*dashboard.DataTable, error) {
				return r.DataTable(ctx, req, d.TableOptions(r.Segment))
			},
		})
	}
	if catalog == nil {
		return
	}
	for _, b := range catalog.Browses() {
		d.AddTablePage(b.Path, b.DataSource+" / "+naming.Humanize(b.Table), dashboard.TablePage{
			Heading:     naming.Humanize(b.Table),
			APIEndpoint: controller.JoinPath(apiPrefix, b.Path),
		})
	}
}

// DataTable renders the report for the dashboard. Filters come from the
// page's "filters" argument; "layout=metrics" transposes the table.
func (r *Report) DataTable(ctx context.Context, req *http.Request, opts dashboard.TableOptions) (*dashboard.DataTable, error) {
	args := req.URL.Query()
	var params *Params
	p := &Params{}
	present, err := response.FetchFilterParams(url.Values{response.FilterParamsArg: args[dashboard.DefaultFormID]}, p)
	if err != nil {
		return nil, err
	}
	if present {
		params = p
	}

	f, err := r.Frame(ctx, params)
	if err != nil {
		return nil, err
	}
	if args.Get(LayoutArg) == "metrics" {
		f = dashboard.Transpose(f)
	}
	return intervalTable(r.Interval(), f, opts), nil
}

func intervalTable(interval query.Interval, f *frame.Frame, opts dashboard.TableOptions) *dashboard.DataTable {
	if interval == query.Monthly {
		return dashboard.MonthlyFrameToDataTable(f, opts)
	}
	return dashboard.DailyFrameToDataTable(f, opts)
}
