// Package dashboard serves the HTML pages that sit on top of the JSON query
// endpoints: a table layout page per endpoint, server rendered data tables
// for report frames, and a navigation index.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"databuddy/internal/config"
	"databuddy/internal/format"
	"databuddy/internal/logging"
	"databuddy/internal/response"
)

//go:embed templates/*.html
var templateFS embed.FS

// Link is one entry on the dashboard index.
type Link struct {
	Label string
	URL   string
}

// DataTablePage renders a table produced per request.
type DataTablePage struct {
	Heading string
	// IndexCol is the column placed first in CSV downloads. Empty means the
	// table's first column.
	IndexCol string
	Table    func(ctx context.Context, r *http.Request) (*DataTable, error)
}

type dataTableView struct {
	Table     *DataTable
	Generated *time.Time
}

type route struct {
	path    string
	handler http.Handler
}

// Dashboard renders pages under a URL prefix.
type Dashboard struct {
	cfg        config.DashboardConfig
	prefix     string
	formatter  format.Formatter
	fieldTypes FieldTypes
	templates  map[string]*template.Template
	now        func() time.Time

	mu     sync.Mutex
	links  []Link
	routes []route
}

// New parses the embedded templates.
func New(cfg config.DashboardConfig) (*Dashboard, error) {
	templates := make(map[string]*template.Template, 3)
	for _, page := range []string{"index.html", "table_layout.html", "data_table.html"} {
		tmpl, err := template.New(page).Funcs(TemplateFuncs()).ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse dashboard template %s: %w", page, err)
		}
		templates[page] = tmpl
	}

	types := make(FieldTypes, len(cfg.FieldTypes))
	for field, kind := range cfg.FieldTypes {
		types[field] = format.FieldType(kind)
	}
	title := cfg.Title
	if title == "" {
		title = "Databuddy"
	}
	cfg.Title = title

	return &Dashboard{
		cfg:        cfg,
		prefix:     strings.TrimRight("/"+strings.Trim(cfg.URLPrefix, "/"), "/"),
		formatter:  format.NewFormatter(cfg.CurrencySymbol),
		fieldTypes: types,
		templates:  templates,
		now:        time.Now,
	}, nil
}

// Prefix is the mount point without a trailing slash. It is empty when the
// dashboard is mounted at the root.
func (d *Dashboard) Prefix() string { return d.prefix }

// TableOptions returns conversion options carrying the configured field
// types and currency symbol.
func (d *Dashboard) TableOptions(id string) TableOptions {
	return TableOptions{ID: id, FieldTypes: d.fieldTypes, Formatter: d.formatter}
}

// AddTablePage registers a table layout page at prefix/path and lists it on the index.
func (d *Dashboard) AddTablePage(path, label string, page TablePage) {
	d.add(path, label, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := d.RenderTableLayout(w, r, page); err != nil {
			d.fail(w, r, err)
		}
	}))
}

// AddDataTablePage registers a server rendered table at prefix/path.
// "?format=csv" downloads the table instead.
func (d *Dashboard) AddDataTablePage(path, label string, page DataTablePage) {
	d.add(path, label, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dt, err := page.Table(r.Context(), r)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		if strings.EqualFold(r.URL.Query().Get(response.FormatArg), string(response.CSV)) {
			indexCol := page.IndexCol
			if indexCol == "" && len(dt.Columns) > 0 {
				indexCol = dt.Columns[0].ID
			}
			payload, err := dt.CSV(indexCol)
			if err != nil {
				d.fail(w, r, err)
				return
			}
			_ = payload.WriteTo(w)
			return
		}
		generated := d.now()
		if err := d.render(w, r, "data_table.html", page.Heading, dataTableView{Table: dt, Generated: &generated}); err != nil {
			d.fail(w, r, err)
		}
	}))
}

func (d *Dashboard) add(path, label string, h http.Handler) {
	full := d.prefix + "/" + strings.Trim(path, "/")
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, Link{Label: label, URL: full})
	d.routes = append(d.routes, route{path: full, handler: h})
}

// Links returns the registered pages in registration order.
func (d *Dashboard) Links() []Link {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Link(nil), d.links...)
}

// Mount registers the index and every page on mux. wrap may be nil.
func (d *Dashboard) Mount(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(h http.Handler) http.Handler { return h }
	}
	index := wrap(http.HandlerFunc(d.serveIndex))
	mux.Handle("GET "+d.prefix+"/{$}", index)
	if d.prefix != "" {
		mux.Handle("GET "+d.prefix, index)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rt := range d.routes {
		mux.Handle("GET "+rt.path, wrap(rt.handler))
	}
}

func (d *Dashboard) serveIndex(w http.ResponseWriter, r *http.Request) {
	if err := d.render(w, r, "index.html", "", d.Links()); err != nil {
		d.fail(w, r, err)
	}
}

type pageData struct {
	Title        string
	Prefix       string
	Heading      string
	NavMenuItems []config.NavMenuItem
	RequestURL   string
	Page         any
}

// render buffers the page; nothing is written when execution fails.
func (d *Dashboard) render(w http.ResponseWriter, r *http.Request, name, heading string, page any) error {
	tmpl, ok := d.templates[name]
	if !ok {
		return fmt.Errorf("unknown dashboard template %s", name)
	}
	var buf bytes.Buffer
	err := tmpl.ExecuteTemplate(&buf, "base", pageData{
		Title:        d.cfg.Title,
		Prefix:       d.prefix,
		Heading:      heading,
		NavMenuItems: d.cfg.NavMenuItems,
		RequestURL:   r.URL.RequestURI(),
		Page:         page,
	})
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

func (d *Dashboard) fail(w http.ResponseWriter, r *http.Request, err error) {
	if response.AsHTTPError(err).Code >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("dashboard page failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	response.WriteError(w, err)
}
