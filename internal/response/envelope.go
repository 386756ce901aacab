package response

import (
	"databuddy/internal/query"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Meta describes a JSON result set. Page fields are present only for paged results.
type Meta struct {
	TotalItems int      `json:"total_items"`
	Columns    []string `json:"columns"`
	Page       *int     `json:"page,omitempty"`
	PerPage    *int     `json:"per_page,omitempty"`
	TotalPages *int     `json:"total_pages,omitempty"`
}

// NewMeta builds Meta for total unpaged rows. Pagination fields follow m.
func NewMeta(total int, columns []string, m query.Modifiers) Meta {
	meta := Meta{TotalItems: total, Columns: columns}
	if meta.Columns == nil {
		meta.Columns = []string{}
	}
	if !m.Paginated() {
		return meta
	}
	page := *m.Page
	perPage := m.PageSize()
	totalPages := (total + perPage - 1) / perPage
	meta.Page = &page
	meta.PerPage = &perPage
	meta.TotalPages = &totalPages
	return meta
}

// Envelope is the JSON success body.
type Envelope struct {
	Status string      `json:"status"`
	Data   []query.Row `json:"data"`
	Meta   Meta        `json:"meta"`
}

// NewEnvelope wraps rows. A nil slice is rendered as an empty array.
func NewEnvelope(rows []query.Row, meta Meta) Envelope {
	if rows == nil {
		rows = []query.Row{}
	}
	return Envelope{Status: StatusSuccess, Data: rows, Meta: meta}
}
