package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"databuddy/internal/config"
	"databuddy/internal/logging"
	"databuddy/internal/observability"
	"databuddy/internal/query"
)

// Registry holds the open data sources by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*DataSource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]*DataSource{}}
}

// Add registers ds under its name, replacing any previous entry.
func (r *Registry) Add(ds *DataSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[ds.Name] = ds
}

// Get returns the named data source.
func (r *Registry) Get(name string) (*DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownDataSource)
	}
	return ds, nil
}

// QueryBuilder returns the query builder of the named data source.
func (r *Registry) QueryBuilder(name string) (*query.Builder, error) {
	ds, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return ds.Builder, nil
}

// Names lists the registered data sources in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered data sources ordered by name.
func (r *Registry) All() []*DataSource {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DataSource, 0, len(names))
	for _, name := range names {
		out = append(out, r.sources[name])
	}
	return out
}

// ReflectAll re-reads the schema of every source that reflects metadata.
// Every source is attempted; the errors are joined.
func (r *Registry) ReflectAll(ctx context.Context, metrics *observability.ReflectionMetrics, trigger string) error {
	var errs []error
	for _, ds := range r.All() {
		if !ds.Reflecting() {
			continue
		}
		if err := ds.Reflect(ctx, metrics, trigger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every data source.
func (r *Registry) Close() error {
	var errs []error
	for _, ds := range r.All() {
		if err := ds.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ds.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Prepare opens every configured data source and reflects the ones that ask
// for metadata. On failure the sources opened so far are closed.
func Prepare(ctx context.Context, cfg *config.Config, opts Options, metrics *observability.ReflectionMetrics) (*Registry, error) {
	registry := NewRegistry()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	for _, name := range cfg.DataSourceNames() {
		dsCfg := cfg.DataSources[name]
		dsCfg.Name = name

		dsOpts := opts
		dsOpts.Pool = cfg.PoolFor(name)
		dsOpts.TimedeltaMins = cfg.TimedeltaMins

		ds, err := Open(ctx, dsCfg, dsOpts)
		if err != nil {
			_ = registry.Close()
			return nil, err
		}
		registry.Add(ds)

		if ds.Reflecting() {
			if err := ds.Reflect(logging.WithLogger(ctx, logger), metrics, "startup"); err != nil {
				_ = registry.Close()
				return nil, err
			}
		}
	}
	return registry, nil
}
