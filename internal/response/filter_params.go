package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// FilterParamsArg is the request argument holding JSON encoded filter parameters.
const FilterParamsArg = "filter_params"

// Validator is implemented by filter parameter types with cross-field rules.
type Validator interface {
	Validate() error
}

// FetchFilterParams decodes the filter_params argument into target, which
// must be a pointer. It reports whether parameters were present; an absent,
// empty or null argument leaves target untouched. Malformed JSON, unknown
// keys, type mismatches and Validate failures are 400 errors.
func FetchFilterParams(args url.Values, target any) (bool, error) {
	raw := strings.TrimSpace(args.Get(FilterParamsArg))
	if raw == "" || raw == "null" {
		return false, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return false, BadRequest("filter_params must be a JSON object", err)
	}
	if target == nil || decoded == nil {
		return decoded != nil, nil
	}
	// Blank form fields arrive as "" and mean "no filter".
	for k, v := range decoded {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			decoded[k] = nil
		}
	}

	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(stringToTimeHook()),
	})
	if err != nil {
		return false, fmt.Errorf("failed to build filter params decoder: %w", err)
	}
	if err := md.Decode(decoded); err != nil {
		return false, BadRequest("invalid filter_params", err)
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return false, BadRequest(err.Error(), err)
		}
	}
	return true, nil
}

var filterTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func stringToTimeHook() mapstructure.DecodeHookFuncType {
	timeType := reflect.TypeOf(time.Time{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != timeType {
			return data, nil
		}
		s := data.(string)
		for _, layout := range filterTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as a date or timestamp", s)
	}
}
