// Package reports builds the endpoints derived from configuration and
// reflected schemas: date-bucketed reports, table browse endpoints and a
// table listing per data source.
package reports

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"databuddy/internal/config"
	"databuddy/internal/controller"
	"databuddy/internal/datasource"
	"databuddy/internal/dbexec"
	"databuddy/internal/frame"
	"databuddy/internal/naming"
	"databuddy/internal/query"
)

// CountLabel is the column a report's row count is exposed under.
const CountLabel = "count"

// Params narrows a report to a range of local days. Both bounds are inclusive.
type Params struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// Validate rejects inverted ranges.
func (p *Params) Validate() error {
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return errors.New("from must not be after to")
	}
	return nil
}

// Report is one configured interval report.
type Report struct {
	Name    string
	Segment string
	Config  config.ReportConfig
	Source  *datasource.DataSource
}

// Title is the configured title or the humanized report name.
func (r *Report) Title() string {
	if r.Config.Title != "" {
		return r.Config.Title
	}
	return naming.Humanize(r.Name)
}

// Interval is the report's bucket.
func (r *Report) Interval() query.Interval {
	if r.Config.Interval == "month" {
		return query.Monthly
	}
	return query.Daily
}

// Fields are the aggregates projected after the bucket column.
func (r *Report) Fields() []query.Field {
	b := r.Source.Builder
	fields := make([]query.Field, 0, len(r.Config.Sum)+1)
	for _, col := range r.Config.Sum {
		fields = append(fields, b.Sum(col, ""))
	}
	if r.Config.Count {
		fields = append(fields, b.Count(CountLabel))
	}
	return fields
}

// NewParams implements controller.ParamsProvider.
func (r *Report) NewParams() any { return &Params{} }

// Query builds the bucket query for params, which may be nil.
func (r *Report) Query(params *Params) *query.Query {
	return r.Source.Builder.IntervalQuery(r.Config.Table, r.Config.DateColumn, r.Interval(), r.Fields(), r.filters(params)...)
}

// Frame implements controller.FrameController.
func (r *Report) Frame(ctx context.Context, params any) (*frame.Frame, error) {
	p, _ := params.(*Params)
	f, err := frame.ReadInterval(ctx, dbexec.NewPool(r.Source.DB), r.Query(p), r.Interval())
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", r.Name, err)
	}
	return f, nil
}

// filters bounds the date column in UTC. Without an explicit start the
// configured window of days applies.
func (r *Report) filters(p *Params) []sq.Sqlizer {
	b := r.Source.Builder
	col := b.Dialect().Quote(r.Config.DateColumn)
	offset := time.Duration(b.OffsetMins()) * time.Minute

	var filters []sq.Sqlizer
	switch {
	case p != nil && p.From != nil:
		filters = append(filters, sq.GtOrEq{col: localDayStart(*p.From, offset)})
	case r.Config.Days > 0:
		filters = append(filters, sq.GtOrEq{col: b.NDaysAgo(r.Config.Days)})
	}
	if p != nil && p.To != nil {
		filters = append(filters, sq.Lt{col: localDayStart(*p.To, offset).AddDate(0, 0, 1)})
	}
	return filters
}

// localDayStart is the UTC instant at which the given local calendar day begins.
func localDayStart(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(-offset)
}

// Build resolves every configured report against registry, in name order.
func Build(cfg map[string]config.ReportConfig, registry *datasource.Registry, namer *naming.Namer) ([]*Report, error) {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]*Report, 0, len(names))
	for _, name := range names {
		rc := cfg[name]
		ds, err := registry.Get(rc.DataSource)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", name, err)
		}
		out = append(out, &Report{
			Name:    name,
			Segment: namer.RegisterReportRoute(name),
			Config:  rc,
			Source:  ds,
		})
	}
	return out, nil
}

// Path is the report's route below the API prefix.
func (r *Report) Path() string { return "reports/" + r.Segment }

// FrameEndpoints maps each report's path to its endpoint.
func FrameEndpoints(reports []*Report) map[string]controller.FrameEndpoint {
	out := make(map[string]controller.FrameEndpoint, len(reports))
	for _, r := range reports {
		out[r.Path()] = controller.FrameEndpointFor(r)
	}
	return out
}
