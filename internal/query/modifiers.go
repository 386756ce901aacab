// Package query builds report queries, applies request-driven modifiers
// (pagination, ordering, grouping) and materializes results as ordered rows.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Modifier keys recognised in caller overrides and request arguments.
const (
	KeyPage    = "page"
	KeyPerPage = "per_page"
	KeyLimit   = "limit"
	KeyOffset  = "offset"
	KeyOrderBy = "order_by"
	KeySort    = "sort"
	KeyGroupBy = "group_by"
)

// ModifierKeys lists the recognised keys in their canonical order.
var ModifierKeys = []string{KeyPage, KeyPerPage, KeyLimit, KeyOffset, KeyOrderBy, KeySort, KeyGroupBy}

// DefaultPerPage is the page size used when none is given.
const DefaultPerPage = 20

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Modifiers is the normalized set of query modifiers. Nil pointers and empty
// strings mean "not set".
type Modifiers struct {
	Page    *int
	PerPage *int
	Limit   *int
	Offset  *int
	OrderBy string
	Sort    string
	GroupBy []string
}

// DefaultModifiers returns the baseline every resolution starts from.
func DefaultModifiers() Modifiers {
	perPage := DefaultPerPage
	return Modifiers{PerPage: &perPage, Sort: SortAsc}
}

// ResolveModifiers merges caller overrides over the defaults and, when
// allowRequest is set, request arguments over both. Unknown keys are
// dropped. Integer-valued modifiers that are absent, empty or unparseable
// resolve to nil; a nil or non-positive per_page falls back to the default.
func ResolveModifiers(overrides map[string]any, allowRequest bool, args url.Values) Modifiers {
	m := DefaultModifiers()
	for _, key := range ModifierKeys {
		if v, ok := overrides[key]; ok {
			m.set(key, v)
		}
	}
	if allowRequest {
		for _, key := range ModifierKeys {
			if vals, ok := args[key]; ok && len(vals) > 0 {
				m.set(key, vals[0])
			}
		}
	}
	if m.PerPage == nil || *m.PerPage <= 0 {
		perPage := DefaultPerPage
		m.PerPage = &perPage
	}
	return m
}

func (m *Modifiers) set(key string, v any) {
	switch key {
	case KeyPage:
		m.Page = castInt(v)
	case KeyPerPage:
		m.PerPage = castInt(v)
	case KeyLimit:
		m.Limit = castInt(v)
	case KeyOffset:
		m.Offset = castInt(v)
	case KeyOrderBy:
		m.OrderBy = strings.TrimSpace(castString(v))
	case KeySort:
		m.Sort = normalizeSort(castString(v))
	case KeyGroupBy:
		m.GroupBy = splitList(v)
	}
}

// Paginated reports whether page based pagination applies.
func (m Modifiers) Paginated() bool {
	return m.Page != nil && *m.Page > 0
}

// PageSize is the effective per_page value.
func (m Modifiers) PageSize() int {
	if m.PerPage == nil || *m.PerPage <= 0 {
		return DefaultPerPage
	}
	return *m.PerPage
}

// AsMap exposes the modifiers under their canonical keys. Unset values are nil.
func (m Modifiers) AsMap() map[string]any {
	out := map[string]any{
		KeyPage:    intOrNil(m.Page),
		KeyPerPage: intOrNil(m.PerPage),
		KeyLimit:   intOrNil(m.Limit),
		KeyOffset:  intOrNil(m.Offset),
		KeyOrderBy: nil,
		KeySort:    m.Sort,
		KeyGroupBy: nil,
	}
	if m.OrderBy != "" {
		out[KeyOrderBy] = m.OrderBy
	}
	if len(m.GroupBy) > 0 {
		out[KeyGroupBy] = append([]string(nil), m.GroupBy...)
	}
	return out
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func castInt(v any) *int {
	var n int
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case *int:
		if x == nil {
			return nil
		}
		n = *x
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

func castString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func normalizeSort(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), SortDesc) {
		return SortDesc
	}
	return SortAsc
}

func splitList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(x, ",")
	case []string:
		raw = x
	default:
		return nil
	}
	var out []string
	for _, part := range raw {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
