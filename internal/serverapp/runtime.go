package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// StopReason tells the caller why WaitForStop returned.
type StopReason string

const (
	StopSignal      StopReason = "signal"
	StopServerError StopReason = "server_error"
)

var errServerStopped = errors.New("server stopped unexpectedly")

// Start launches the HTTP listener in the background and returns the channel
// its terminal error is delivered on. Calling Start twice returns the same
// channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case !a.initialized:
		return nil, errors.New("app is not initialized")
	case a.started:
		return a.serverErrors, nil
	}

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the listener fails.
// A nil serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (StopReason, error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait on: no signal or server error channel")
	}

	// Receiving from a nil channel blocks, so a missing side never wins.
	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	case err := <-serverErrors:
		if err == nil {
			err = errServerStopped
		}
		return StopServerError, fmt.Errorf("server failed: %w", err)
	}
}
