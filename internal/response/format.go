// Package response renders materialized query results as JSON envelopes, CSV
// text or plain row lists, and writes the failure envelope for errors.
package response

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Format selects the response rendering.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	Dict Format = "dict"
)

// FormatArg is the request argument that picks a format.
const FormatArg = "format"

// ErrInvalidFormat is returned for a format name outside JSON, CSV and Dict.
var ErrInvalidFormat = errors.New("invalid response format")

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case JSON, CSV, Dict:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, name)
	}
}

// SelectFormat picks the explicit format when given, else the request's
// "format" argument, else fallback, else JSON.
func SelectFormat(explicit Format, args url.Values, fallback Format) (Format, error) {
	if explicit != "" {
		return ParseFormat(string(explicit))
	}
	if requested := args.Get(FormatArg); requested != "" {
		return ParseFormat(requested)
	}
	if fallback != "" {
		return ParseFormat(string(fallback))
	}
	return JSON, nil
}

// ContentType is the MIME type a format is served with.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}
