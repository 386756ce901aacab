package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"databuddy/internal/format"
	"databuddy/internal/response"
)

// DefaultFormID is the request argument carrying the filter form as JSON.
const DefaultFormID = "filters"

// TargetDBArg is forwarded from the page to its API endpoint.
const TargetDBArg = "target_db"

// Filter is one input of a table layout page's filter form.
type Filter struct {
	Name  string
	Label string
	// Type is the HTML input type. Empty means text.
	Type  string
	Value any
}

// InputType returns the HTML input type.
func (f Filter) InputType() string {
	if f.Type == "" {
		return "text"
	}
	return f.Type
}

// DisplayValue renders Value for an input's value attribute.
func (f Filter) DisplayValue() string {
	switch v := f.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.DateOnly)
	default:
		return fmt.Sprint(v)
	}
}

// TablePage is a page that renders the rows of a JSON query endpoint.
type TablePage struct {
	Heading string
	// APIEndpoint is the path of the JSON endpoint the page reads.
	APIEndpoint string
	Filters     []Filter
	// FormID names the filter form and its request argument. Empty means "filters".
	FormID string
}

type tableLayoutView struct {
	APIURL  string
	Filters []Filter
	FormID  string
}

// RenderTableLayout renders page. Filter values are pre-filled from the JSON
// in the form's request argument, and the API URL carries target_db plus the
// filters renamed to filter_params.
func (d *Dashboard) RenderTableLayout(w http.ResponseWriter, r *http.Request, page TablePage) error {
	formID := page.FormID
	if formID == "" {
		formID = DefaultFormID
	}
	args := r.URL.Query()

	filters := append([]Filter(nil), page.Filters...)
	if raw := args.Get(formID); raw != "" {
		var values map[string]any
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return response.BadRequest(formID+" must be a JSON object", err)
		}
		for i := range filters {
			if v, ok := values[filters[i].Name]; ok {
				filters[i].Value = v
			}
		}
	}

	view := tableLayoutView{
		APIURL:  SetQueryParams(page.APIEndpoint, forwardedArgs(args, formID)),
		Filters: filters,
		FormID:  formID,
	}
	return d.render(w, r, "table_layout.html", page.Heading, view)
}

// forwardedArgs keeps target_db and the filter form, renaming the latter to
// filter_params. Empty values are dropped.
func forwardedArgs(args url.Values, formID string) url.Values {
	out := url.Values{}
	if v := args.Get(TargetDBArg); v != "" {
		out.Set(TargetDBArg, v)
	}
	if v := args.Get(formID); v != "" {
		out.Set(response.FilterParamsArg, v)
	}
	return out
}

// SetQueryParams replaces the given query arguments on rawURL and keeps the rest.
func SetQueryParams(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FormatDatetime formats a time with a strftime pattern. nil renders as "".
func FormatDatetime(v any, pattern string) string {
	switch t := v.(type) {
	case time.Time:
		return format.Strftime(t, pattern)
	case *time.Time:
		if t == nil {
			return ""
		}
		return format.Strftime(*t, pattern)
	default:
		return ""
	}
}

// TemplateFuncs returns the functions available to dashboard templates.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"set_query_params": func(rawURL string, pairs ...string) (string, error) {
			if len(pairs)%2 != 0 {
				return "", fmt.Errorf("set_query_params needs key/value pairs, got %d values", len(pairs))
			}
			params := url.Values{}
			for i := 0; i < len(pairs); i += 2 {
				params.Set(pairs[i], pairs[i+1])
			}
			return SetQueryParams(rawURL, params), nil
		},
		"format_datetime": FormatDatetime,
	}
}
