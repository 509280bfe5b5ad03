package logging

import (
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

// Setup installs a JSON slog handler as the default logger and sizes
// GOMAXPROCS to the container quota. debug adds source locations and debug
// level output.
func Setup(program string, debug bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	addSource := false
	if debug {
		level = slog.LevelDebug
		addSource = true
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     level,
		}),
	).With("component", program)
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...))
	})); err != nil {
		return nil, fmt.Errorf("set maxprocs: %w", err)
	}
	return logger, nil
}
