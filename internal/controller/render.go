package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"databuddy/internal/datasource"
	"databuddy/internal/dbexec"
	"databuddy/internal/logging"
	"databuddy/internal/observability"
	"databuddy/internal/response"
)

var errNoQuery = errors.New("query constructor returned no query")

// RenderQueryResponse runs the endpoint's constructor inside a read-only
// session and renders the result. The session is always released.
func RenderQueryResponse(ctx context.Context, ds *datasource.DataSource, ep QueryEndpoint, args url.Values) (*response.Payload, error) {
	format, err := response.SelectFormat("", args, ep.Format)
	if err != nil {
		return nil, err
	}
	params, err := decodeParams(args, ep.NewParams)
	if err != nil {
		return nil, err
	}

	var payload *response.Payload
	err = dbexec.Scope(ctx, ds.DB, false, func(ctx context.Context, s *dbexec.Session) error {
		q, err := ep.Query(ctx, Env{Session: s, Source: ds}, params)
		if err != nil {
			return err
		}
		if q == nil {
			return errNoQuery
		}
		payload, err = response.FromQuery(ctx, s, q, format, ep.options(), args)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// RenderFrameResponse produces the endpoint's frame and renders it.
func RenderFrameResponse(ctx context.Context, ep FrameEndpoint, args url.Values) (*response.Payload, error) {
	format, err := response.SelectFormat("", args, ep.Format)
	if err != nil {
		return nil, err
	}
	params, err := decodeParams(args, ep.NewParams)
	if err != nil {
		return nil, err
	}
	f, err := ep.Frame(ctx, params)
	if err != nil {
		return nil, err
	}
	return response.FromFrame(f, format)
}

// decodeParams returns nil when the request has no filter_params.
func decodeParams(args url.Values, newParams func() any) (any, error) {
	if newParams == nil {
		var raw map[string]any
		if _, err := response.FetchFilterParams(args, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
		return raw, nil
	}
	target := newParams()
	present, err := response.FetchFilterParams(args, target)
	if err != nil || !present {
		return nil, err
	}
	return target, nil
}

// NewQueryHandler serves ep against ds.
func NewQueryHandler(ds *datasource.DataSource, ep QueryEndpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := RenderQueryResponse(r.Context(), ds, ep, r.URL.Query())
		writePayload(w, r, payload, err)
	})
}

// NewFrameHandler serves ep.
func NewFrameHandler(ep FrameEndpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := RenderFrameResponse(r.Context(), ep, r.URL.Query())
		writePayload(w, r, payload, err)
	})
}

func writePayload(w http.ResponseWriter, r *http.Request, payload *response.Payload, err error) {
	logger := logging.FromContext(r.Context())
	if err != nil {
		httpErr := response.AsHTTPError(err)
		if httpErr.Code >= http.StatusInternalServerError {
			logger.Error("query endpoint failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("query endpoint rejected request",
				slog.String("path", r.URL.Path),
				slog.Int("status", httpErr.Code),
				slog.String("error", err.Error()),
			)
		}
		response.WriteError(w, err)
		return
	}

	observability.RecordRowsFromContext(r.Context(), payload.RowCount)
	if err := payload.WriteTo(w); err != nil {
		logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}
