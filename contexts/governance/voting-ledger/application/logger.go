package application

import "log/slog"

// LogModule is the module attribute on every voting-ledger log line.
const LogModule = "governance/voting-ledger"

// ResolveLogger falls back to the process default when logger is nil.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
