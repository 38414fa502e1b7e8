package panicerr

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so a panic inside it comes back as an error instead of
// taking the process down.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// Loop adapts a named background loop for a conc.WaitGroup: panics are
// recovered and any terminal error other than plain context cancellation is
// logged. Loops are expected to run until their context ends.
func Loop(logger *slog.Logger, name string, fn func() error) func() {
	return func() {
		if err := Safe(fn)(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background loop stopped",
				slog.String("loop", name),
				slog.String("error", err.Error()))
		}
	}
}
