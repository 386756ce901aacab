package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"databuddy/internal/logging"
)

type releaser struct {
	name    string
	release func(context.Context) error
}

// cleanupStack releases whatever Init acquired, newest first, so the HTTP
// server drains before the pools it queries are closed.
type cleanupStack struct {
	items []releaser
}

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	s.items = append(s.items, releaser{name: name, release: release})
}

// run releases every item even when earlier ones fail and returns the joined
// failures.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		if logger != nil {
			logger.Debug("releasing", slog.String("component", item.name))
		}
		err := item.release(ctx)
		if err == nil {
			continue
		}
		if logger != nil {
			logger.Warn("release failed",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
		}
		errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
	}
	s.items = nil
	return errors.Join(errs...)
}

// Shutdown stops the listener and closes every data source. Only the first
// call does any work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.cleanup = cleanupStack{}
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})

	return a.shutdownErr
}
