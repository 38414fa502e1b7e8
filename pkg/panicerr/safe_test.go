package panicerr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeRecoversPanic(t *testing.T) {
	fn := Safe(func() error {
		panic("boom")
	})
	err := fn()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSafePassesThroughError(t *testing.T) {
	sentinel := errors.New("loop broke")
	err := Safe(func() error { return sentinel })()
	assert.ErrorIs(t, err, sentinel)
}

func TestSafeNilOnSuccess(t *testing.T) {
	assert.NoError(t, Safe(func() error { return nil })())
}

func TestLoopSwallowsContextCanceled(t *testing.T) {
	ran := false
	Loop(slog.New(slog.NewTextHandler(io.Discard, nil)), "test", func() error {
		ran = true
		return context.Canceled
	})()
	assert.True(t, ran)
}

func TestLoopRecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Loop(slog.New(slog.NewTextHandler(io.Discard, nil)), "test", func() error {
			panic("boom")
		})()
	})
}
