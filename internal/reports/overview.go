package reports

import (
	"context"
	"fmt"
	"time"

	"databuddy/internal/controller"
	"databuddy/internal/format"
	"databuddy/internal/frame"
	"databuddy/internal/workers"
)

// OverviewPath is the route of the report overview below the API prefix.
const OverviewPath = "reports"

// Overview runs every report with its default window on at most threads
// goroutines and returns one row per report with its latest bucket.
func Overview(ctx context.Context, reports []*Report, threads int) (*frame.Frame, error) {
	calls := make([]workers.Call, len(reports))
	for i, r := range reports {
		calls[i] = workers.Call{
			Name: r.Name,
			Fn: func(ctx context.Context) (any, error) {
				return r.Frame(ctx, nil)
			},
		}
	}
	results, err := workers.RunInThreads(ctx, threads, calls)
	if err != nil {
		return nil, err
	}

	f := frame.New("report", "title", "interval", "periods", "latest_period")
	for i, res := range results {
		r := reports[i]
		fr, ok := res.Value.(*frame.Frame)
		if !ok {
			return nil, fmt.Errorf("report %s returned %T", r.Name, res.Value)
		}
		var latest any
		if n := fr.Len(); n > 0 {
			if t, ok := fr.Index[n-1].(time.Time); ok {
				latest = format.Strftime(t, r.Interval().Pattern)
			}
		}
		f.Append(r.Name, r.Title(), r.Interval().Label, fr.Len(), latest)
	}
	return f, nil
}

// OverviewEndpoint serves Overview.
func OverviewEndpoint(reports []*Report, threads int) controller.FrameEndpoint {
	return controller.FrameEndpoint{
		Frame: func(ctx context.Context, _ any) (*frame.Frame, error) {
			return Overview(ctx, reports, threads)
		},
	}
}
