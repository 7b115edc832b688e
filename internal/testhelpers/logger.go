// Package testhelpers holds helpers shared by the package tests.
package testhelpers

import (
	"io"
	"log/slog"

	"github.com/myrjola/trainengine/internal/logging"
)

// NewLogger returns a debug level logger writing to sink, typically a [Writer].
func NewLogger(sink io.Writer) *slog.Logger {
	return slog.New(logging.NewContextHandler(slog.NewTextHandler(sink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	})))
}
