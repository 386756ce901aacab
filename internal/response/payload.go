package response

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"databuddy/internal/dbexec"
	"databuddy/internal/frame"
	"databuddy/internal/query"
)

// Payload is a rendered response ready to be written.
type Payload struct {
	Format      Format
	ContentType string
	Body        []byte
	// Rows holds the materialized rows for Dict payloads.
	Rows []query.Row
	// RowCount is the number of rows rendered into Body.
	RowCount int
}

// WriteTo writes the payload with a 200 status.
func (p *Payload) WriteTo(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", p.ContentType)
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(p.Body)
	return err
}

// Options configure query rendering.
type Options struct {
	// JSONModifiers and CSVModifiers are caller overrides per format. Dict
	// uses the JSON overrides.
	JSONModifiers map[string]any
	CSVModifiers  map[string]any
	// PinModifiers stops request arguments from overriding modifiers.
	PinModifiers bool
}

func (o Options) modifiers(f Format, args url.Values) query.Modifiers {
	overrides := o.JSONModifiers
	if f == CSV {
		overrides = o.CSVModifiers
	}
	return query.ResolveModifiers(overrides, !o.PinModifiers, args)
}

// Rows resolves modifiers, applies them to q and materializes the result.
func Rows(ctx context.Context, exec dbexec.QueryExecutor, q *query.Query, mods query.Modifiers) ([]query.Row, error) {
	return query.Materialize(ctx, exec, q.Apply(mods))
}

// JSONEnvelope counts q unpaged, then materializes the modified query.
func JSONEnvelope(ctx context.Context, exec dbexec.QueryExecutor, q *query.Query, mods query.Modifiers) (Envelope, error) {
	total, err := query.Count(ctx, exec, q)
	if err != nil {
		return Envelope{}, err
	}
	rows, err := Rows(ctx, exec, q, mods)
	if err != nil {
		return Envelope{}, err
	}
	return NewEnvelope(rows, NewMeta(total, q.Columns(), mods)), nil
}

// FromQuery renders q in format f.
func FromQuery(ctx context.Context, exec dbexec.QueryExecutor, q *query.Query, f Format, opts Options, args url.Values) (*Payload, error) {
	mods := opts.modifiers(f, args)
	switch f {
	case JSON:
		env, err := JSONEnvelope(ctx, exec, q, mods)
		if err != nil {
			return nil, err
		}
		return jsonPayload(f, env, len(env.Data), nil)
	case CSV:
		rows, err := Rows(ctx, exec, q, mods)
		if err != nil {
			return nil, err
		}
		text, err := CSVText(q.Columns(), rows)
		if err != nil {
			return nil, err
		}
		return &Payload{Format: f, ContentType: f.ContentType(), Body: []byte(text), RowCount: len(rows)}, nil
	case Dict:
		rows, err := Rows(ctx, exec, q, mods)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []query.Row{}
		}
		return jsonPayload(f, rows, len(rows), rows)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, f)
	}
}

// FromFrame renders a frame. JSON wraps the records in the success envelope
// without pagination; CSV includes the index as the first column.
func FromFrame(f *frame.Frame, format Format) (*Payload, error) {
	records := f.Records()
	switch format {
	case JSON:
		env := NewEnvelope(records, Meta{TotalItems: f.Len(), Columns: f.AllColumns()})
		return jsonPayload(format, env, len(records), nil)
	case CSV:
		text, err := CSVText(f.AllColumns(), records)
		if err != nil {
			return nil, err
		}
		return &Payload{Format: format, ContentType: format.ContentType(), Body: []byte(text), RowCount: len(records)}, nil
	case Dict:
		return jsonPayload(format, records, len(records), records)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

func jsonPayload(f Format, body any, count int, rows []query.Row) (*Payload, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return &Payload{Format: f, ContentType: f.ContentType(), Body: encoded, Rows: rows, RowCount: count}, nil
}
