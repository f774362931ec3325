package cmd

import (
	"log/slog"
	"os"
)

// ProvideLogger builds the process-wide structured JSON logger, composing
// cleanly alongside the otelslog bridge subscriber sink.
func ProvideLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With(slog.String("service", ServiceName))
}
